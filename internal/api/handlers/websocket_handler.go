package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/johnngondi/vito/internal/services"
	ws "github.com/johnngondi/vito/internal/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades HTTP connections and subscribes them to a
// server's status changes.
type WebSocketHandler struct {
	hub           *ws.Hub
	serverService services.ServerServiceProvider
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(hub *ws.Hub, serverService services.ServerServiceProvider) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, serverService: serverService}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (consider tightening this in production).
		return true
	},
}

// Serve handles the WebSocket connection request for /ws/servers/{id}.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "id")
	if _, err := h.serverService.GetServer(r.Context(), serverID); err != nil {
		writeError(w, r, "Failed to retrieve server", err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	client := ws.NewClient(h.hub, conn, serverID)
	h.hub.Register <- client

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleIncomingWSMessage)
		h.hub.Unregister <- client
	}()
}

// handleIncomingWSMessage logs client messages. Subscribers only receive.
func (h *WebSocketHandler) handleIncomingWSMessage(client *ws.Client, message []byte) {
	var msg ws.Message
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Warn().Err(err).Str("server_id", client.ServerID).Msg("Error decoding websocket message")
		return
	}
	log.Debug().Str("server_id", client.ServerID).Str("action", msg.Action).Msg("Ignoring websocket message")
}
