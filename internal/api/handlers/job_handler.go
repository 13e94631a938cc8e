package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/johnngondi/vito/internal/models"
	"github.com/rs/zerolog/log"
)

// JobAdmin is the part of the queue exposed to operators.
type JobAdmin interface {
	ListDead(ctx context.Context, limit int) ([]models.Job, error)
	Retry(ctx context.Context, id int64) error
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// JobHandler lets operators inspect and retry dead jobs.
type JobHandler struct {
	jobs JobAdmin
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobs JobAdmin) *JobHandler {
	return &JobHandler{jobs: jobs}
}

func (h *JobHandler) GetDead(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	dead, err := h.jobs.ListDead(r.Context(), limit)
	if err != nil {
		writeError(w, r, "Failed to retrieve dead jobs", err)
		return
	}
	if dead == nil {
		dead = []models.Job{}
	}
	writeJSON(w, http.StatusOK, dead)
}

// Retry puts a dead job back in its lane.
func (h *JobHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid job id", http.StatusBadRequest)
		return
	}
	if err := h.jobs.Retry(r.Context(), id); err != nil {
		writeError(w, r, "Failed to retry job", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Purge deletes dead jobs older than the olderThan duration, 7 days by default.
func (h *JobHandler) Purge(w http.ResponseWriter, r *http.Request) {
	age := 7 * 24 * time.Hour
	if raw := r.URL.Query().Get("olderThan"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			http.Error(w, "Invalid olderThan duration", http.StatusBadRequest)
			return
		}
		age = d
	}
	n, err := h.jobs.Purge(r.Context(), time.Now().Add(-age))
	if err != nil {
		writeError(w, r, "Failed to purge dead jobs", err)
		return
	}
	log.Info().Int64("jobs", n).Msg("Purged dead jobs")
	writeJSON(w, http.StatusOK, map[string]int64{"purged": n})
}
