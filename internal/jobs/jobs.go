// Package jobs holds the lifecycle jobs that drive server SSH keys and
// backup files from a pending status to a terminal one by working on the
// remote server.
//
// Every handler reloads its record, returns early when the record is no
// longer in the status the job resolves, and only then touches the server.
// Redelivery of a finished job is therefore a no-op.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/johnngondi/vito/internal/database"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/queue"
	"github.com/johnngondi/vito/internal/remote"
	"github.com/johnngondi/vito/internal/storage"
	"github.com/johnngondi/vito/internal/store"
)

// Job names.
const (
	DeploySshKey   = "ssh-key:deploy"
	DeleteSshKey   = "ssh-key:delete"
	RunBackup      = "backup:run"
	PruneBackups   = "backup:prune"
	DeleteArtifact = "backup:delete-artifact"
	DeleteFile     = "backup:delete-file"
)

// Lanes names the execution lanes jobs are bound to.
type Lanes struct {
	// SSH runs every job that opens a session to a server.
	SSH string
	// Default runs storage-only work.
	Default string
}

// Notifier is told about every status a job writes.
type Notifier interface {
	StatusChanged(ctx context.Context, change models.StatusChange)
}

type nopNotifier struct{}

func (nopNotifier) StatusChanged(context.Context, models.StatusChange) {}

// Deps are the collaborators shared by the handlers.
type Deps struct {
	DB         *sql.DB
	Dispatcher Dispatcher
	Executor   remote.Executor
	Storage    storage.Factory
	Notifier   Notifier
	// RemoteBackupDir is where artifacts are staged on the server.
	RemoteBackupDir string
	// CommandTimeout bounds each remote call.
	CommandTimeout time.Duration
}

// Register binds every lifecycle job to q.
func Register(q *queue.Queue, d Deps, opts queue.Options) {
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.RemoteBackupDir == "" {
		d.RemoteBackupDir = "/tmp/vito-backups"
	}
	q.Register(DeploySshKey, &deploySshKey{d}, opts)
	q.Register(DeleteSshKey, &deleteSshKey{d}, opts)
	q.Register(RunBackup, &runBackup{d}, opts)
	q.Register(PruneBackups, &pruneBackups{d}, opts)
	q.Register(DeleteArtifact, &deleteArtifact{d}, opts)
	q.Register(DeleteFile, &deleteFile{d}, opts)
}

// Payloads.
type (
	SshKeyPayload struct {
		LinkID string `json:"linkId"`
	}
	RunBackupPayload struct {
		BackupFileID string `json:"backupFileId"`
	}
	PrunePayload struct {
		BackupID string `json:"backupId"`
	}
	FilePayload struct {
		BackupFileID string `json:"backupFileId"`
	}
	ArtifactPayload struct {
		StorageID string `json:"storageId"`
		Path      string `json:"path"`
	}
)

// Dispatcher enqueues lifecycle jobs through the caller's transaction.
type Dispatcher struct {
	Queue queue.JobQueue
	Lanes Lanes
}

func (d Dispatcher) DeploySshKey(ctx context.Context, db database.DBTX, link models.ServerSshKey) error {
	_, err := d.Queue.Enqueue(ctx, db, d.Lanes.SSH, queue.Task{
		Name: DeploySshKey, ResourceID: link.ID, ServerID: link.ServerID,
		Payload: SshKeyPayload{LinkID: link.ID},
	})
	return err
}

func (d Dispatcher) DeleteSshKey(ctx context.Context, db database.DBTX, link models.ServerSshKey) error {
	_, err := d.Queue.Enqueue(ctx, db, d.Lanes.SSH, queue.Task{
		Name: DeleteSshKey, ResourceID: link.ID, ServerID: link.ServerID,
		Payload: SshKeyPayload{LinkID: link.ID},
	})
	return err
}

func (d Dispatcher) RunBackup(ctx context.Context, db database.DBTX, b models.Backup, f models.BackupFile) error {
	_, err := d.Queue.Enqueue(ctx, db, d.Lanes.SSH, queue.Task{
		Name: RunBackup, ResourceID: f.ID, ServerID: b.ServerID,
		Payload: RunBackupPayload{BackupFileID: f.ID},
	})
	return err
}

func (d Dispatcher) PruneBackups(ctx context.Context, db database.DBTX, b models.Backup) error {
	_, err := d.Queue.Enqueue(ctx, db, d.Lanes.Default, queue.Task{
		Name: PruneBackups, ResourceID: b.ID,
		Payload: PrunePayload{BackupID: b.ID},
	})
	return err
}

// DeleteArtifact removes a stored artifact whose record is being deleted.
func (d Dispatcher) DeleteArtifact(ctx context.Context, db database.DBTX, b models.Backup, f models.BackupFile) error {
	_, err := d.Queue.Enqueue(ctx, db, d.Lanes.Default, queue.Task{
		Name: DeleteArtifact, ResourceID: f.ID,
		Payload: ArtifactPayload{StorageID: b.StorageID, Path: f.Path},
	})
	return err
}

// DeleteFile removes a finished file's artifact and then its record.
func (d Dispatcher) DeleteFile(ctx context.Context, db database.DBTX, f models.BackupFile) error {
	_, err := d.Queue.Enqueue(ctx, db, d.Lanes.Default, queue.Task{
		Name: DeleteFile, ResourceID: f.ID,
		Payload: FilePayload{BackupFileID: f.ID},
	})
	return err
}

// stale reports whether a store error means another worker already moved
// or removed the record.
func stale(err error) bool {
	return errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound)
}

// exec runs command under the per-call timeout. A non-zero exit is permanent;
// transport failures are returned as is for the queue to retry.
func (d Deps) exec(ctx context.Context, server models.Server, command string) (remote.Result, error) {
	ctx, cancel := d.callContext(ctx)
	defer cancel()
	res, err := d.Executor.Run(ctx, server, command)
	if err != nil {
		return res, classify(err)
	}
	return res, classify(remote.Check(command, res))
}

// classify marks remote failures that a retry cannot fix as permanent.
func classify(err error) error {
	if err == nil || remote.IsTransient(err) {
		return err
	}
	var ce *remote.CommandError
	if errors.As(err, &ce) {
		return queue.Permanent(err)
	}
	return err
}

func (d Deps) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.CommandTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.CommandTimeout)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
