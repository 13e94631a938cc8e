package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/johnngondi/vito/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case m := <-c.Send:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHub_BroadcastToSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	a := NewClient(hub, nil, "srv-a")
	b := NewClient(hub, nil, "srv-b")
	hub.Register <- a
	hub.Register <- b

	payload, err := json.Marshal(NewStatusChangedMessage(models.StatusChange{Kind: "server_ssh_key", ResourceID: "l1", ServerID: "srv-a", Status: "active"}))
	require.NoError(t, err)
	hub.BroadcastTo("srv-a", payload)

	var msg struct {
		Action  string              `json:"action"`
		Payload models.StatusChange `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(receive(t, a), &msg))
	assert.Equal(t, ActionStatusChanged, msg.Action)
	assert.Equal(t, "active", msg.Payload.Status)

	hub.Broadcast <- []byte("all")
	assert.Equal(t, "all", string(receive(t, b)))
	assert.Equal(t, "all", string(receive(t, a)))
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	c := NewClient(hub, nil, "srv-a")
	hub.Register <- c
	hub.Unregister <- c

	select {
	case _, ok := <-c.Send:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed")
	}
}

func TestNewErrorMessage(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal(NewErrorMessage("boom"), &msg))
	assert.Equal(t, ActionError, msg.Action)
	assert.Equal(t, map[string]interface{}{"message": "boom"}, msg.Payload)
}
