package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/services"
)

// ServerHandler handles HTTP requests related to servers.
type ServerHandler struct {
	service services.ServerServiceProvider
}

// NewServerHandler creates a new ServerHandler.
func NewServerHandler(service services.ServerServiceProvider) *ServerHandler {
	return &ServerHandler{service: service}
}

// GetAll handles the request to get all servers.
func (h *ServerHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	servers, err := h.service.ListServers(r.Context())
	if err != nil {
		writeError(w, r, "Failed to retrieve servers", err)
		return
	}
	if servers == nil {
		servers = []models.Server{}
	}
	writeJSON(w, http.StatusOK, servers)
}

// Get handles the request to get a single server by its ID.
func (h *ServerHandler) Get(w http.ResponseWriter, r *http.Request) {
	server, err := h.service.GetServer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "Failed to retrieve server", err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

// Create handles the request to create a new server.
func (h *ServerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var server models.Server
	if !decode(w, r, &server) {
		return
	}
	created, err := h.service.CreateServer(r.Context(), server)
	if err != nil {
		writeError(w, r, "Failed to create server", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
