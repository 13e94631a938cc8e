package models

import "time"

// SshKeyStatus is the deployment status of a key on one server.
type SshKeyStatus string

const (
	SshKeyStatusAdding   SshKeyStatus = "adding"
	SshKeyStatusActive   SshKeyStatus = "active"
	SshKeyStatusDeleting SshKeyStatus = "deleting"
	SshKeyStatusFailed   SshKeyStatus = "failed"
)

// SshKey is an operator's public key that can be deployed to servers.
type SshKey struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PublicKey string    `json:"publicKey"`
	CreatedAt time.Time `json:"createdAt"`
}

// ServerSshKey links an SshKey to a Server. The row only disappears after
// the key has been confirmed removed from the server.
type ServerSshKey struct {
	ID        string       `json:"id"`
	ServerID  string       `json:"serverId"`
	SshKeyID  string       `json:"sshKeyId"`
	Status    SshKeyStatus `json:"status"`
	LastError string       `json:"lastError,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`

	// Populated by joins when listing.
	KeyName string `json:"keyName,omitempty"`
}
