package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is a websocket connection subscribed to one server's updates.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	ServerID string
	// Send is closed by the hub when the client is dropped.
	Send chan []byte
}

// NewClient creates a client for conn. An empty serverID receives only broadcasts.
func NewClient(hub *Hub, conn *websocket.Conn, serverID string) *Client {
	return &Client{hub: hub, conn: conn, ServerID: serverID, Send: make(chan []byte, 256)}
}

// ReadPump reads messages until the connection fails and hands each one to onMessage.
func (c *Client) ReadPump(onMessage func(*Client, []byte)) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("server_id", c.ServerID).Msg("Websocket read failed")
			}
			return
		}
		if onMessage != nil {
			onMessage(c, message)
		}
	}
}

// WritePump writes queued messages and pings until Send is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
