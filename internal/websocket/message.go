package websocket

import (
	"encoding/json"

	"github.com/johnngondi/vito/internal/models"
)

// Actions.
const (
	ActionStatusChanged = "status.changed"
	ActionError         = "error"
	ActionPong          = "pong"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

// NewStatusChangedMessage wraps a status change for subscribers.
func NewStatusChangedMessage(change models.StatusChange) Message {
	return Message{Action: ActionStatusChanged, Payload: change}
}

// NewErrorMessage returns an encoded error message for a single client.
func NewErrorMessage(msg string) []byte {
	b, _ := json.Marshal(Message{Action: ActionError, Payload: map[string]string{"message": msg}})
	return b
}
