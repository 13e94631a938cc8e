package models

import "time"

// StorageProvider is a destination for backup artifacts.
type StorageProvider struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Provider    string             `json:"provider"` // s3, gcs, local
	Credentials StorageCredentials `json:"credentials"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// StorageCredentials is stored as a JSON column. Fields are provider specific.
type StorageCredentials struct {
	Bucket          string `json:"bucket,omitempty"`
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	AccessKey       string `json:"accessKey,omitempty"`
	SecretKey       string `json:"secretKey,omitempty"`
	Prefix          string `json:"prefix,omitempty"`
	Path            string `json:"path,omitempty"`
	CredentialsJSON string `json:"credentialsJson,omitempty"`
}

// Database is a database living on a Server that can be backed up.
type Database struct {
	ID        string    `json:"id"`
	ServerID  string    `json:"serverId"`
	Name      string    `json:"name"`
	Engine    string    `json:"engine"` // mysql, mariadb, postgresql
	CreatedAt time.Time `json:"createdAt"`
}

// Redacted returns a copy without secret credential fields.
func (p StorageProvider) Redacted() StorageProvider {
	if p.Credentials.SecretKey != "" {
		p.Credentials.SecretKey = "********"
	}
	if p.Credentials.CredentialsJSON != "" {
		p.Credentials.CredentialsJSON = "********"
	}
	return p
}
