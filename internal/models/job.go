package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the queue status of a job row.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDead    JobStatus = "dead"
)

// Job is a persisted unit of asynchronous work bound to an execution lane.
type Job struct {
	ID          int64           `json:"id"`
	Lane        string          `json:"lane"`
	Name        string          `json:"name"`
	ResourceID  string          `json:"resourceId"`
	ServerID    string          `json:"serverId,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	Status      JobStatus       `json:"status"`
	LastError   string          `json:"lastError,omitempty"`
	AvailableAt time.Time       `json:"availableAt"`
	LockedAt    *time.Time      `json:"lockedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}
