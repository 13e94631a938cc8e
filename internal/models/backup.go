package models

import "time"

// BackupType selects what a backup captures.
type BackupType string

const (
	BackupTypeDatabase BackupType = "database"
	BackupTypeFull     BackupType = "full"
)

// BackupStatus controls whether scheduled runs happen.
type BackupStatus string

const (
	BackupStatusRunning BackupStatus = "running"
	BackupStatusPaused  BackupStatus = "paused"
)

// BackupFileStatus is the status of a single backup run.
type BackupFileStatus string

const (
	BackupFileStatusCreating BackupFileStatus = "creating"
	BackupFileStatusSuccess  BackupFileStatus = "success"
	BackupFileStatusFailed   BackupFileStatus = "failed"
)

// IntervalManual disables scheduled runs.
const IntervalManual = "manual"

// Backup is a backup definition. It exclusively owns its BackupFiles.
type Backup struct {
	ID          string       `json:"id"`
	Type        BackupType   `json:"type"`
	Name        string       `json:"name"`
	ServerID    string       `json:"serverId"`
	StorageID   string       `json:"storageId"`
	DatabaseID  *string      `json:"databaseId,omitempty"`
	Interval    string       `json:"interval"`
	KeepBackups int          `json:"keepBackups"`
	Status      BackupStatus `json:"status"`
	LastRunAt   *time.Time   `json:"lastRunAt,omitempty"`
	NextRunAt   *time.Time   `json:"nextRunAt,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// BackupFile is one run of a Backup and the artifact it produced.
type BackupFile struct {
	ID        string           `json:"id"`
	BackupID  string           `json:"backupId"`
	Name      string           `json:"name"`
	Path      string           `json:"path,omitempty"`
	Status    BackupFileStatus `json:"status"`
	Size      int64            `json:"size"`
	Checksum  string           `json:"checksum,omitempty"`
	LastError string           `json:"lastError,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}
