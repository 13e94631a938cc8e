package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/services"
	"github.com/samber/lo"
)

// StorageHandler handles storage providers and the databases that can be backed up.
type StorageHandler struct {
	storage   services.StorageServiceProvider
	databases services.DatabaseServiceProvider
}

// NewStorageHandler creates a new StorageHandler.
func NewStorageHandler(storage services.StorageServiceProvider, databases services.DatabaseServiceProvider) *StorageHandler {
	return &StorageHandler{storage: storage, databases: databases}
}

// GetProviders lists storage providers with their secrets redacted.
func (h *StorageHandler) GetProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.storage.ListStorageProviders(r.Context())
	if err != nil {
		writeError(w, r, "Failed to retrieve storage providers", err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(providers, func(p models.StorageProvider, _ int) models.StorageProvider {
		return p.Redacted()
	}))
}

func (h *StorageHandler) GetProvider(w http.ResponseWriter, r *http.Request) {
	p, err := h.storage.GetStorageProvider(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "Failed to retrieve storage provider", err)
		return
	}
	writeJSON(w, http.StatusOK, p.Redacted())
}

func (h *StorageHandler) CreateProvider(w http.ResponseWriter, r *http.Request) {
	var p models.StorageProvider
	if !decode(w, r, &p) {
		return
	}
	created, err := h.storage.CreateStorageProvider(r.Context(), p)
	if err != nil {
		writeError(w, r, "Failed to create storage provider", err)
		return
	}
	writeJSON(w, http.StatusCreated, created.Redacted())
}

func (h *StorageHandler) GetDatabases(w http.ResponseWriter, r *http.Request) {
	dbs, err := h.databases.ListDatabases(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "Failed to retrieve databases", err)
		return
	}
	if dbs == nil {
		dbs = []models.Database{}
	}
	writeJSON(w, http.StatusOK, dbs)
}

func (h *StorageHandler) CreateDatabase(w http.ResponseWriter, r *http.Request) {
	var d models.Database
	if !decode(w, r, &d) {
		return
	}
	d.ServerID = chi.URLParam(r, "id")
	created, err := h.databases.CreateDatabase(r.Context(), d)
	if err != nil {
		writeError(w, r, "Failed to create database", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
