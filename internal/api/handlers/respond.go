package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/johnngondi/vito/internal/logger"
	"github.com/johnngondi/vito/internal/queue"
	"github.com/johnngondi/vito/internal/services"
	"github.com/johnngondi/vito/internal/state"
	"github.com/johnngondi/vito/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, queue.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, state.ErrInvalidTransition),
		errors.Is(err, services.ErrKeyAlreadyDeployed),
		errors.Is(err, services.ErrBackupFileBusy):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError writes err with the status it maps to. Internal errors are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg(msg)
		http.Error(w, msg, status)
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
