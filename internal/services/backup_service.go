package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/johnngondi/vito/internal/jobs"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/state"
	"github.com/johnngondi/vito/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// BackupServiceProvider defines the interface for backup services.
type BackupServiceProvider interface {
	CreateBackup(ctx context.Context, req CreateBackupRequest) (models.Backup, error)
	GetBackup(ctx context.Context, id string) (models.Backup, error)
	ListBackups(ctx context.Context, serverID string) ([]models.Backup, error)
	Run(ctx context.Context, backupID string) (models.BackupFile, error)
	DeleteBackup(ctx context.Context, backupID string) error
	DeleteFile(ctx context.Context, fileID string) error
	Pause(ctx context.Context, backupID string) (models.Backup, error)
	Resume(ctx context.Context, backupID string) (models.Backup, error)
	ListFiles(ctx context.Context, backupID string) ([]models.BackupFile, error)
	ListDueBackups(ctx context.Context, t time.Time) ([]models.Backup, error)
	MarkScheduled(ctx context.Context, b models.Backup, ranAt time.Time) error
}

// CreateBackupRequest is the input of CreateBackup.
type CreateBackupRequest struct {
	Type        models.BackupType `json:"type"`
	Name        string            `json:"name"`
	ServerID    string            `json:"serverId"`
	StorageID   string            `json:"storageId"`
	DatabaseID  *string           `json:"databaseId,omitempty"`
	Interval    string            `json:"interval"`
	KeepBackups int               `json:"keepBackups"`
}

// ErrBackupFileBusy is returned when deleting a file that is still being created.
var ErrBackupFileBusy = errors.New("backup file is still being created")

// BackupService defines backups and triggers their runs.
type BackupService struct {
	db           *sql.DB
	jobs         jobs.Dispatcher
	eventService EventServiceProvider
	now          func() time.Time
}

// NewBackupService creates a new BackupService.
func NewBackupService(db *sql.DB, dispatcher jobs.Dispatcher, eventService EventServiceProvider) *BackupService {
	return &BackupService{db: db, jobs: dispatcher, eventService: eventService, now: time.Now}
}

// nextRun returns when a backup with interval should next run after t, or
// nil for manual backups.
func nextRun(interval string, t time.Time) (*time.Time, error) {
	if interval == models.IntervalManual {
		return nil, nil
	}
	schedule, err := cron.ParseStandard(interval)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid interval %q: %v", ErrInvalidInput, interval, err)
	}
	next := schedule.Next(t).UTC()
	return &next, nil
}

// CreateBackup validates and stores a backup definition.
func (s *BackupService) CreateBackup(ctx context.Context, req CreateBackupRequest) (models.Backup, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return models.Backup{}, fmt.Errorf("%w: backup name is required", ErrInvalidInput)
	}
	if req.KeepBackups < 0 {
		return models.Backup{}, fmt.Errorf("%w: keepBackups must not be negative", ErrInvalidInput)
	}
	if req.Interval == "" {
		req.Interval = models.IntervalManual
	}
	next, err := nextRun(req.Interval, s.now())
	if err != nil {
		return models.Backup{}, err
	}

	st := store.New(s.db)
	switch req.Type {
	case models.BackupTypeDatabase:
		if req.DatabaseID == nil {
			return models.Backup{}, fmt.Errorf("%w: database backups require a database", ErrInvalidInput)
		}
		d, err := st.GetDatabase(ctx, *req.DatabaseID)
		if err != nil {
			return models.Backup{}, err
		}
		if d.ServerID != req.ServerID {
			return models.Backup{}, fmt.Errorf("%w: database %s is not on server %s", ErrInvalidInput, d.ID, req.ServerID)
		}
	case models.BackupTypeFull:
		if req.DatabaseID != nil {
			return models.Backup{}, fmt.Errorf("%w: full backups do not take a database", ErrInvalidInput)
		}
	default:
		return models.Backup{}, fmt.Errorf("%w: unknown backup type %q", ErrInvalidInput, req.Type)
	}
	server, err := st.GetServer(ctx, req.ServerID)
	if err != nil {
		return models.Backup{}, err
	}
	if _, err := st.GetStorageProvider(ctx, req.StorageID); err != nil {
		return models.Backup{}, err
	}

	b := models.Backup{
		ID:          uuid.New().String(),
		Type:        req.Type,
		Name:        req.Name,
		ServerID:    req.ServerID,
		StorageID:   req.StorageID,
		DatabaseID:  req.DatabaseID,
		Interval:    req.Interval,
		KeepBackups: req.KeepBackups,
		Status:      models.BackupStatusRunning,
		NextRunAt:   next,
	}
	if err := st.CreateBackup(ctx, &b); err != nil {
		return models.Backup{}, err
	}
	s.eventService.CreateEvent(ctx, "backup.create", "info", fmt.Sprintf("Backup '%s' created for server '%s'.", b.Name, server.Name), &server.ID)
	return b, nil
}

func (s *BackupService) GetBackup(ctx context.Context, id string) (models.Backup, error) {
	return store.New(s.db).GetBackup(ctx, id)
}

func (s *BackupService) ListBackups(ctx context.Context, serverID string) ([]models.Backup, error) {
	backups, err := store.New(s.db).ListBackups(ctx, serverID)
	if backups == nil {
		backups = []models.Backup{}
	}
	return backups, err
}

// fileName derives a unique file name from the backup name and t. Runs in
// the same second get a numeric suffix.
func fileName(ctx context.Context, tx *store.Store, b models.Backup, t time.Time) (string, error) {
	base := slug.Make(b.Name) + "-" + t.UTC().Format("20060102150405")
	name := base
	for i := 2; ; i++ {
		exists, err := tx.BackupFileNameExists(ctx, b.ID, name)
		if err != nil {
			return "", err
		}
		if !exists {
			return name, nil
		}
		name = fmt.Sprintf("%s-%d", base, i)
	}
}

// Run creates a backup file in creating and enqueues the job that produces it.
func (s *BackupService) Run(ctx context.Context, backupID string) (models.BackupFile, error) {
	var file models.BackupFile
	var backup models.Backup
	err := store.WithTx(ctx, s.db, func(tx *store.Store) error {
		var err error
		backup, err = tx.GetBackup(ctx, backupID)
		if err != nil {
			return err
		}
		_, initial, err := state.InitialState(state.OpBackupRun)
		if err != nil {
			return err
		}
		at := s.now().UTC()
		name, err := fileName(ctx, tx, backup, at)
		if err != nil {
			return err
		}
		file = models.BackupFile{
			ID:        uuid.New().String(),
			BackupID:  backup.ID,
			Name:      name,
			Status:    models.BackupFileStatus(initial),
			CreatedAt: at,
		}
		if err := tx.CreateBackupFile(ctx, &file); err != nil {
			return err
		}
		return s.jobs.RunBackup(ctx, tx.DB(), backup, file)
	})
	if err != nil {
		return models.BackupFile{}, err
	}
	log.Info().Str("backup", backup.Name).Str("file", file.Name).Msg("Backup run queued")
	return file, nil
}

// DeleteBackup deletes a backup and every file it owns in one transaction.
// Stored artifacts are removed asynchronously by jobs enqueued in that
// transaction.
func (s *BackupService) DeleteBackup(ctx context.Context, backupID string) error {
	var backup models.Backup
	var files []models.BackupFile
	err := store.WithTx(ctx, s.db, func(tx *store.Store) error {
		var err error
		backup, err = tx.GetBackup(ctx, backupID)
		if err != nil {
			return err
		}
		files, err = tx.ListBackupFiles(ctx, backupID, "")
		if err != nil {
			return err
		}
		stored := lo.Filter(files, func(f models.BackupFile, _ int) bool {
			return f.Status == models.BackupFileStatusSuccess && f.Path != ""
		})
		for _, f := range stored {
			if err := s.jobs.DeleteArtifact(ctx, tx.DB(), backup, f); err != nil {
				return err
			}
		}
		if _, err := tx.DeleteBackupFiles(ctx, backupID); err != nil {
			return err
		}
		return tx.DeleteBackup(ctx, backupID)
	})
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("Backup '%s' and its %d files were deleted.", backup.Name, len(files))
	s.eventService.CreateEvent(ctx, "backup.delete", "warn", msg, &backup.ServerID)
	return nil
}

// DeleteFile deletes a finished backup file. A stored artifact is removed by
// a job that drops the record only after storage confirms the delete; files
// without an artifact are deleted at once.
func (s *BackupService) DeleteFile(ctx context.Context, fileID string) error {
	return store.WithTx(ctx, s.db, func(tx *store.Store) error {
		f, err := tx.GetBackupFile(ctx, fileID)
		if err != nil {
			return err
		}
		if !state.IsTerminal(state.KindBackupFile, f.Status) {
			return ErrBackupFileBusy
		}
		if f.Status == models.BackupFileStatusSuccess && f.Path != "" {
			return s.jobs.DeleteFile(ctx, tx.DB(), f)
		}
		return tx.DeleteBackupFile(ctx, f.ID)
	})
}

// Pause stops scheduled runs.
func (s *BackupService) Pause(ctx context.Context, backupID string) (models.Backup, error) {
	st := store.New(s.db)
	if err := st.TransitionBackup(ctx, backupID, models.BackupStatusRunning, models.BackupStatusPaused); err != nil {
		return models.Backup{}, err
	}
	return st.GetBackup(ctx, backupID)
}

// Resume restarts scheduled runs from now on.
func (s *BackupService) Resume(ctx context.Context, backupID string) (models.Backup, error) {
	var b models.Backup
	err := store.WithTx(ctx, s.db, func(tx *store.Store) error {
		if err := tx.TransitionBackup(ctx, backupID, models.BackupStatusPaused, models.BackupStatusRunning); err != nil {
			return err
		}
		var err error
		b, err = tx.GetBackup(ctx, backupID)
		if err != nil {
			return err
		}
		next, err := nextRun(b.Interval, s.now())
		if err != nil {
			return err
		}
		return tx.SetBackupNextRun(ctx, b.ID, next)
	})
	if err != nil {
		return models.Backup{}, err
	}
	return store.New(s.db).GetBackup(ctx, backupID)
}

func (s *BackupService) ListFiles(ctx context.Context, backupID string) ([]models.BackupFile, error) {
	st := store.New(s.db)
	if _, err := st.GetBackup(ctx, backupID); err != nil {
		return nil, err
	}
	files, err := st.ListBackupFiles(ctx, backupID, "")
	if files == nil {
		files = []models.BackupFile{}
	}
	return files, err
}

func (s *BackupService) ListDueBackups(ctx context.Context, t time.Time) ([]models.Backup, error) {
	return store.New(s.db).ListDueBackups(ctx, t)
}

// MarkScheduled records a scheduled run at ranAt and computes the next one.
func (s *BackupService) MarkScheduled(ctx context.Context, b models.Backup, ranAt time.Time) error {
	next, err := nextRun(b.Interval, ranAt)
	if err != nil {
		return err
	}
	return store.New(s.db).UpdateBackupRunTimes(ctx, b.ID, ranAt, next)
}
