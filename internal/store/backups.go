package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/state"
)

const backupColumns = "id, type, name, server_id, storage_id, database_id, interval, keep_backups, status, last_run_at, next_run_at, created_at"

func (s *Store) CreateBackup(ctx context.Context, b *models.Backup) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now()
	}
	if b.Status == "" {
		b.Status = models.BackupStatusRunning
	}
	if !state.IsKnown(state.KindBackup, b.Status) {
		return &state.InvalidTransitionError{Kind: state.KindBackup, To: string(b.Status)}
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO backups ("+backupColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		b.ID, b.Type, b.Name, b.ServerID, b.StorageID, b.DatabaseID, b.Interval, b.KeepBackups,
		b.Status, b.LastRunAt, b.NextRunAt, b.CreatedAt)
	return err
}

func (s *Store) GetBackup(ctx context.Context, id string) (models.Backup, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+backupColumns+" FROM backups WHERE id = ?", id)
	b, err := scanBackup(row)
	return b, notFound(err, "backups", id)
}

func (s *Store) ListBackups(ctx context.Context, serverID string) ([]models.Backup, error) {
	return s.queryBackups(ctx, "SELECT "+backupColumns+" FROM backups WHERE server_id = ? ORDER BY created_at DESC", serverID)
}

// ListDueBackups returns running, scheduled backups whose next run is at or before t.
func (s *Store) ListDueBackups(ctx context.Context, t time.Time) ([]models.Backup, error) {
	return s.queryBackups(ctx,
		"SELECT "+backupColumns+" FROM backups WHERE status = ? AND interval != ? AND next_run_at IS NOT NULL AND next_run_at <= ?",
		models.BackupStatusRunning, models.IntervalManual, t.UTC())
}

// TransitionBackup pauses or resumes a backup.
func (s *Store) TransitionBackup(ctx context.Context, id string, from, to models.BackupStatus) error {
	if err := state.Validate(state.KindBackup, from, to); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "UPDATE backups SET status = ? WHERE id = ? AND status = ?", to, id, from)
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, res, "backups", id)
}

func (s *Store) UpdateBackupRunTimes(ctx context.Context, id string, lastRun time.Time, nextRun *time.Time) error {
	var next any
	if nextRun != nil {
		next = nextRun.UTC()
	}
	_, err := s.db.ExecContext(ctx, "UPDATE backups SET last_run_at = ?, next_run_at = ? WHERE id = ?", lastRun.UTC(), next, id)
	return err
}

// SetBackupNextRun reschedules a backup without touching its last run.
func (s *Store) SetBackupNextRun(ctx context.Context, id string, nextRun *time.Time) error {
	var next any
	if nextRun != nil {
		next = nextRun.UTC()
	}
	res, err := s.db.ExecContext(ctx, "UPDATE backups SET next_run_at = ? WHERE id = ?", next, id)
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, res, "backups", id)
}

// DeleteBackup deletes the backup row. Callers delete its files first in the same transaction.
func (s *Store) DeleteBackup(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM backups WHERE id = ?", id)
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, res, "backups", id)
}

func (s *Store) queryBackups(ctx context.Context, query string, args ...any) ([]models.Backup, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var backups []models.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	return backups, rows.Err()
}

func scanBackup(sc scanner) (models.Backup, error) {
	var b models.Backup
	var databaseID sql.NullString
	var lastRun, nextRun sql.NullTime
	err := sc.Scan(&b.ID, &b.Type, &b.Name, &b.ServerID, &b.StorageID, &databaseID, &b.Interval,
		&b.KeepBackups, &b.Status, &lastRun, &nextRun, &b.CreatedAt)
	if err != nil {
		return b, err
	}
	if databaseID.Valid {
		b.DatabaseID = &databaseID.String
	}
	b.LastRunAt = nullTime(lastRun)
	b.NextRunAt = nullTime(nextRun)
	return b, nil
}

const fileColumns = "id, backup_id, name, path, status, size, checksum, last_error, created_at, updated_at"

// CreateBackupFile inserts a file in the initial backup-run status.
func (s *Store) CreateBackupFile(ctx context.Context, f *models.BackupFile) error {
	_, initial, _ := state.InitialState(state.OpBackupRun)
	if string(f.Status) != initial {
		return &state.InvalidTransitionError{Kind: state.KindBackupFile, To: string(f.Status)}
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now()
	}
	f.UpdatedAt = f.CreatedAt
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO backup_files ("+fileColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		f.ID, f.BackupID, f.Name, f.Path, f.Status, f.Size, f.Checksum, f.LastError, f.CreatedAt, f.UpdatedAt)
	return err
}

func (s *Store) GetBackupFile(ctx context.Context, id string) (models.BackupFile, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM backup_files WHERE id = ?", id)
	f, err := scanFile(row)
	return f, notFound(err, "backup_files", id)
}

// BackupFileNameExists reports whether the backup already has a file with name.
func (s *Store) BackupFileNameExists(ctx context.Context, backupID, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM backup_files WHERE backup_id = ? AND name = ?", backupID, name).Scan(&n)
	return n > 0, err
}

// ListBackupFiles returns the files of a backup, newest first. An empty
// status lists every file.
func (s *Store) ListBackupFiles(ctx context.Context, backupID string, status models.BackupFileStatus) ([]models.BackupFile, error) {
	if status == "" {
		return s.queryFiles(ctx,
			"SELECT "+fileColumns+" FROM backup_files WHERE backup_id = ? ORDER BY created_at DESC, id DESC", backupID)
	}
	return s.queryFiles(ctx,
		"SELECT "+fileColumns+" FROM backup_files WHERE backup_id = ? AND status = ? ORDER BY created_at DESC, id DESC",
		backupID, status)
}

// ListStaleBackupFiles returns files still creating that were not updated since before.
func (s *Store) ListStaleBackupFiles(ctx context.Context, before time.Time) ([]models.BackupFile, error) {
	return s.queryFiles(ctx,
		"SELECT "+fileColumns+" FROM backup_files WHERE status = ? AND updated_at < ? ORDER BY updated_at",
		models.BackupFileStatusCreating, before.UTC())
}

// BackupFileResult carries what a run learned about its artifact.
type BackupFileResult struct {
	Path      string
	Size      int64
	Checksum  string
	LastError string
}

// TransitionBackupFile moves a file from one status to another if it is still in from.
func (s *Store) TransitionBackupFile(ctx context.Context, id string, from, to models.BackupFileStatus, r BackupFileResult) error {
	if err := state.Validate(state.KindBackupFile, from, to); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE backup_files SET status = ?, path = ?, size = ?, checksum = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to, r.Path, r.Size, r.Checksum, r.LastError, now(), id, from)
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, res, "backup_files", id)
}

func (s *Store) DeleteBackupFile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM backup_files WHERE id = ?", id)
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, res, "backup_files", id)
}

// DeleteBackupFiles deletes every file owned by a backup.
func (s *Store) DeleteBackupFiles(ctx context.Context, backupID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM backup_files WHERE backup_id = ?", backupID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) queryFiles(ctx context.Context, query string, args ...any) ([]models.BackupFile, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []models.BackupFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func scanFile(sc scanner) (models.BackupFile, error) {
	var f models.BackupFile
	err := sc.Scan(&f.ID, &f.BackupID, &f.Name, &f.Path, &f.Status, &f.Size, &f.Checksum, &f.LastError, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}
