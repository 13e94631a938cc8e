package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/services"
)

// SshKeyHandler handles the key library and the keys deployed to servers.
type SshKeyHandler struct {
	service services.SshKeyServiceProvider
}

// NewSshKeyHandler creates a new SshKeyHandler.
func NewSshKeyHandler(service services.SshKeyServiceProvider) *SshKeyHandler {
	return &SshKeyHandler{service: service}
}

// SshKeyPayload is the body for creating a key.
type SshKeyPayload struct {
	Name      string `json:"name"`
	PublicKey string `json:"publicKey"`
}

// DeployKeyPayload is the body for deploying an existing key.
type DeployKeyPayload struct {
	KeyID string `json:"keyId"`
}

func (h *SshKeyHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.ListSshKeys(r.Context())
	if err != nil {
		writeError(w, r, "Failed to retrieve ssh keys", err)
		return
	}
	if keys == nil {
		keys = []models.SshKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (h *SshKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload SshKeyPayload
	if !decode(w, r, &payload) {
		return
	}
	key, err := h.service.CreateSshKey(r.Context(), payload.Name, payload.PublicKey)
	if err != nil {
		writeError(w, r, "Failed to create ssh key", err)
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

// GetForServer lists the keys linked to a server with their status.
func (h *SshKeyHandler) GetForServer(w http.ResponseWriter, r *http.Request) {
	links, err := h.service.ListServerKeys(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "Failed to retrieve server ssh keys", err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// DeployNew creates a key and deploys it to the server.
func (h *SshKeyHandler) DeployNew(w http.ResponseWriter, r *http.Request) {
	var payload SshKeyPayload
	if !decode(w, r, &payload) {
		return
	}
	link, err := h.service.AddNewKeyToServer(r.Context(), chi.URLParam(r, "id"), payload.Name, payload.PublicKey)
	if err != nil {
		writeError(w, r, "Failed to deploy ssh key", err)
		return
	}
	writeJSON(w, http.StatusAccepted, link)
}

// DeployExisting deploys a key from the library to the server.
func (h *SshKeyHandler) DeployExisting(w http.ResponseWriter, r *http.Request) {
	var payload DeployKeyPayload
	if !decode(w, r, &payload) {
		return
	}
	link, err := h.service.AddKeyToServer(r.Context(), chi.URLParam(r, "id"), payload.KeyID)
	if err != nil {
		writeError(w, r, "Failed to deploy ssh key", err)
		return
	}
	writeJSON(w, http.StatusAccepted, link)
}

func (h *SshKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	link, err := h.service.DeleteKeyFromServer(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "keyID"))
	if err != nil {
		writeError(w, r, "Failed to remove ssh key", err)
		return
	}
	writeJSON(w, http.StatusAccepted, link)
}

func (h *SshKeyHandler) Redeploy(w http.ResponseWriter, r *http.Request) {
	link, err := h.service.RedeployKey(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "keyID"))
	if err != nil {
		writeError(w, r, "Failed to redeploy ssh key", err)
		return
	}
	writeJSON(w, http.StatusAccepted, link)
}
