package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/johnngondi/vito/internal/services"
)

// BackupHandler handles HTTP requests related to backups.
type BackupHandler struct {
	service services.BackupServiceProvider
}

// NewBackupHandler creates a new BackupHandler.
func NewBackupHandler(service services.BackupServiceProvider) *BackupHandler {
	return &BackupHandler{service: service}
}

// GetAllForServer handles the request to get all backups for a server.
func (h *BackupHandler) GetAllForServer(w http.ResponseWriter, r *http.Request) {
	backups, err := h.service.ListBackups(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "Failed to retrieve backups", err)
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

// Create handles the request to create a new backup definition.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateBackupRequest
	if !decode(w, r, &req) {
		return
	}
	req.ServerID = chi.URLParam(r, "id")
	b, err := h.service.CreateBackup(r.Context(), req)
	if err != nil {
		writeError(w, r, "Failed to create backup", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *BackupHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.GetBackup(r.Context(), chi.URLParam(r, "backupID"))
	if err != nil {
		writeError(w, r, "Failed to retrieve backup", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteBackup(r.Context(), chi.URLParam(r, "backupID")); err != nil {
		writeError(w, r, "Failed to delete backup", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Run starts a manual run. The response is the file in creating.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.Run(r.Context(), chi.URLParam(r, "backupID"))
	if err != nil {
		writeError(w, r, "Failed to run backup", err)
		return
	}
	writeJSON(w, http.StatusAccepted, f)
}

func (h *BackupHandler) Pause(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Pause(r.Context(), chi.URLParam(r, "backupID"))
	if err != nil {
		writeError(w, r, "Failed to pause backup", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BackupHandler) Resume(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Resume(r.Context(), chi.URLParam(r, "backupID"))
	if err != nil {
		writeError(w, r, "Failed to resume backup", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BackupHandler) GetFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.service.ListFiles(r.Context(), chi.URLParam(r, "backupID"))
	if err != nil {
		writeError(w, r, "Failed to retrieve backup files", err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *BackupHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteFile(r.Context(), chi.URLParam(r, "fileID")); err != nil {
		writeError(w, r, "Failed to delete backup file", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
