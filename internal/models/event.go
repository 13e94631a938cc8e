package models

import "time"

// Event represents a loggable action or alert in the system.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`  // e.g., "ssh_key.active", "backup_file.failed"
	Level      string    `json:"level"` // e.g., "info", "warn", "error"
	Message    string    `json:"message"`
	ServerID   *string   `json:"serverId,omitempty"` // Nullable for system-wide events
	ResourceID string    `json:"resourceId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// StatusChange is pushed to subscribers whenever a resource changes status.
type StatusChange struct {
	Kind       string `json:"kind"`
	ResourceID string `json:"resourceId"`
	ServerID   string `json:"serverId"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}
