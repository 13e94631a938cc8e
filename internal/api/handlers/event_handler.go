package handlers

import (
	"net/http"
	"strconv"

	"github.com/johnngondi/vito/internal/services"
)

// EventHandler handles HTTP requests related to system events.
type EventHandler struct {
	service services.EventServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.EventServiceProvider) *EventHandler {
	return &EventHandler{service: service}
}

// GetRecent handles the request to get recent activity/events.
func (h *EventHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20 // Default limit
	}

	events, err := h.service.GetRecentEvents(r.Context(), limit)
	if err != nil {
		writeError(w, r, "Failed to retrieve events", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
