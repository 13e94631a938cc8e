package websocket

import (
	"context"

	"github.com/rs/zerolog/log"
)

type serverMessage struct {
	serverID string
	message  []byte
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Messages for every client.
	Broadcast chan []byte

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// Messages for the subscribers of one server.
	serverMessages chan serverMessage

	// A map of server IDs to a set of clients subscribed to it.
	subscriptions map[string]map[*Client]bool
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		Broadcast:      make(chan []byte, 64),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		serverMessages: make(chan serverMessage, 256),
		clients:        make(map[*Client]bool),
		subscriptions:  make(map[string]map[*Client]bool),
	}
}

// Run starts the Hub's message processing loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.Register:
			h.clients[client] = true
			log.Info().Int("total_clients", len(h.clients)).Msg("Client connected")
			if client.ServerID != "" {
				h.addSubscription(client, client.ServerID)
			}
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Info().Int("total_clients", len(h.clients)).Msg("Client disconnected")
			}
		case message := <-h.Broadcast:
			for client := range h.clients {
				h.send(client, message)
			}
		case m := <-h.serverMessages:
			for client := range h.subscriptions[m.serverID] {
				h.send(client, m.message)
			}
		}
	}
}

// BroadcastTo sends a message to all clients subscribed to a specific server ID.
// Messages are dropped when the hub is saturated.
func (h *Hub) BroadcastTo(serverID string, message []byte) {
	select {
	case h.serverMessages <- serverMessage{serverID: serverID, message: message}:
	default:
		log.Warn().Str("server_id", serverID).Msg("Websocket hub is saturated, dropping message")
	}
}

// send drops slow clients instead of blocking the hub.
func (h *Hub) send(client *Client, message []byte) {
	select {
	case client.Send <- message:
	default:
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	h.removeSubscription(client)
}

func (h *Hub) addSubscription(client *Client, serverID string) {
	if h.subscriptions[serverID] == nil {
		h.subscriptions[serverID] = make(map[*Client]bool)
	}
	h.subscriptions[serverID][client] = true
}

func (h *Hub) removeSubscription(client *Client) {
	for serverID, subs := range h.subscriptions {
		if _, ok := subs[client]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.subscriptions, serverID)
			}
		}
	}
}
