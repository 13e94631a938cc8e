package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/gosimple/slug"
	"github.com/johnngondi/vito/internal/logger"
	"github.com/johnngondi/vito/internal/metrics"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/queue"
	"github.com/johnngondi/vito/internal/remote"
	"github.com/johnngondi/vito/internal/state"
	"github.com/johnngondi/vito/internal/storage"
	"github.com/johnngondi/vito/internal/store"
	"github.com/samber/lo"
)

// ArtifactExt is the file extension of artifacts produced by a backup type.
func ArtifactExt(t models.BackupType) string {
	if t == models.BackupTypeFull {
		return ".tar.gz"
	}
	return ".sql.gz"
}

// ArtifactPath is where a file's artifact lives in its storage provider.
func ArtifactPath(b models.Backup, f models.BackupFile) string {
	return path.Join(slug.Make(b.Name), f.Name+ArtifactExt(b.Type))
}

func (d Deps) provider(ctx context.Context, storageID string) (storage.Provider, func(), error) {
	sp, err := store.New(d.DB).GetStorageProvider(ctx, storageID)
	if err != nil {
		return nil, nil, err
	}
	p, err := d.Storage.Provider(ctx, sp)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if c, ok := p.(io.Closer); ok {
			c.Close()
		}
	}
	return p, release, nil
}

func (d Deps) notifyFile(ctx context.Context, b models.Backup, f models.BackupFile, status models.BackupFileStatus, cause error) {
	d.Notifier.StatusChanged(ctx, models.StatusChange{
		Kind:       string(state.KindBackupFile),
		ResourceID: f.ID,
		ServerID:   b.ServerID,
		Status:     string(status),
		Error:      errText(cause),
	})
}

type runBackup struct {
	Deps
}

// backupCommand builds the command producing the artifact at out.
func (j *runBackup) backupCommand(ctx context.Context, b models.Backup, out string) (string, error) {
	if b.Type == models.BackupTypeFull {
		return remote.ArchiveHome(out), nil
	}
	if b.DatabaseID == nil {
		return "", errors.New("database backup has no database")
	}
	db, err := store.New(j.DB).GetDatabase(ctx, *b.DatabaseID)
	if err != nil {
		return "", err
	}
	return remote.DumpDatabase(db.Engine, db.Name, out)
}

func (j *runBackup) load(ctx context.Context, job models.Job) (*models.Backup, *models.BackupFile, error) {
	p, err := queue.Decode[RunBackupPayload](job)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(j.DB)
	f, err := st.GetBackupFile(ctx, p.BackupFileID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Ctx(ctx).Info().Msg("Backup file is gone, nothing to do")
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if f.Status != models.BackupFileStatusCreating {
		logger.Ctx(ctx).Info().Str("status", string(f.Status)).Msg("Backup file already resolved, nothing to do")
		return nil, nil, nil
	}
	b, err := st.GetBackup(ctx, f.BackupID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &b, &f, nil
}

func (j *runBackup) Handle(ctx context.Context, job models.Job) error {
	b, f, err := j.load(ctx, job)
	if err != nil || f == nil {
		return err
	}
	log := logger.Ctx(ctx).With().Str("backup", b.Name).Str("file", f.Name).Logger()

	server, err := store.New(j.DB).GetServer(ctx, b.ServerID)
	if err != nil {
		return err
	}
	staged := path.Join(j.RemoteBackupDir, f.Name+ArtifactExt(b.Type))
	cmd, err := j.backupCommand(ctx, *b, staged)
	if err != nil {
		return queue.Permanent(err)
	}

	defer func() {
		if _, err := j.exec(context.WithoutCancel(ctx), server, remote.RemoveFile(staged)); err != nil {
			log.Warn().Err(err).Str("path", staged).Msg("Failed to remove staged artifact")
		}
	}()
	if _, err := j.exec(ctx, server, cmd); err != nil {
		return err
	}

	dctx, cancel := j.callContext(ctx)
	data, err := j.Executor.Download(dctx, server, staged)
	cancel()
	if err != nil {
		return classify(err)
	}
	sum := sha256.Sum256(data)

	provider, release, err := j.provider(ctx, b.StorageID)
	if err != nil {
		return queue.Permanent(fmt.Errorf("open storage: %w", err))
	}
	defer release()

	dest := ArtifactPath(*b, *f)
	if err := provider.Put(ctx, dest, data); err != nil {
		if derr := provider.Delete(context.WithoutCancel(ctx), dest); derr != nil {
			log.Warn().Err(derr).Str("path", dest).Msg("Failed to remove partial artifact")
		}
		return queue.Permanent(err)
	}

	result := store.BackupFileResult{Path: dest, Size: int64(len(data)), Checksum: hex.EncodeToString(sum[:])}
	err = store.WithTx(ctx, j.DB, func(tx *store.Store) error {
		if err := tx.TransitionBackupFile(ctx, f.ID, models.BackupFileStatusCreating, models.BackupFileStatusSuccess, result); err != nil {
			return err
		}
		return j.Dispatcher.PruneBackups(ctx, tx.DB(), *b)
	})
	if stale(err) {
		// The file was failed or deleted meanwhile; nothing references the upload.
		log.Warn().Err(err).Msg("Backup file changed while uploading, discarding artifact")
		if derr := provider.Delete(ctx, dest); derr != nil {
			log.Error().Err(derr).Str("path", dest).Msg("Failed to remove unreferenced artifact")
		}
		return nil
	}
	if err != nil {
		return err
	}

	log.Info().Int64("size", result.Size).Str("path", dest).Msg("Backup finished")
	j.notifyFile(ctx, *b, *f, models.BackupFileStatusSuccess, nil)
	return nil
}

func (j *runBackup) Failed(ctx context.Context, job models.Job, cause error) error {
	p, err := queue.Decode[RunBackupPayload](job)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Cannot fail backup file")
		return nil
	}
	st := store.New(j.DB)
	f, err := st.GetBackupFile(ctx, p.BackupFileID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if f.Status != models.BackupFileStatusCreating {
		return nil
	}
	err = st.TransitionBackupFile(ctx, f.ID, models.BackupFileStatusCreating, models.BackupFileStatusFailed,
		store.BackupFileResult{LastError: errText(cause)})
	if stale(err) {
		return nil
	}
	if err != nil {
		return err
	}
	b, err := st.GetBackup(ctx, f.BackupID)
	if err == nil {
		j.notifyFile(ctx, b, f, models.BackupFileStatusFailed, cause)
	}
	return nil
}

// pruneBackups deletes successful files beyond the backup's retention,
// artifact first and record second.
type pruneBackups struct {
	Deps
}

func (j *pruneBackups) Handle(ctx context.Context, job models.Job) error {
	p, err := queue.Decode[PrunePayload](job)
	if err != nil {
		return err
	}
	st := store.New(j.DB)
	b, err := st.GetBackup(ctx, p.BackupID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	files, err := st.ListBackupFiles(ctx, b.ID, models.BackupFileStatusSuccess)
	if err != nil {
		return err
	}
	excess := lo.Drop(files, b.KeepBackups)
	if len(excess) == 0 {
		return nil
	}

	provider, release, err := j.provider(ctx, b.StorageID)
	if err != nil {
		return err
	}
	defer release()

	for _, f := range excess {
		if err := j.removeFile(ctx, provider, b, f); err != nil {
			return err
		}
		metrics.BackupFilesPruned.Inc()
		logger.Ctx(ctx).Info().Str("backup", b.Name).Str("file", f.Name).Msg("Pruned backup file")
	}
	return nil
}

// removeFile deletes the artifact of f, then its record.
func (d Deps) removeFile(ctx context.Context, provider storage.Provider, b models.Backup, f models.BackupFile) error {
	if f.Path != "" {
		if err := provider.Delete(ctx, f.Path); err != nil {
			return err
		}
	}
	if err := store.New(d.DB).DeleteBackupFile(ctx, f.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	d.notifyFile(ctx, b, f, "deleted", nil)
	return nil
}

func (j *pruneBackups) Failed(ctx context.Context, job models.Job, cause error) error {
	logger.Ctx(ctx).Error().Err(cause).Msg("Retention gave up; files stay until the next successful run")
	return nil
}

// deleteArtifact removes the artifact of a file whose record is already gone.
type deleteArtifact struct {
	Deps
}

func (j *deleteArtifact) Handle(ctx context.Context, job models.Job) error {
	p, err := queue.Decode[ArtifactPayload](job)
	if err != nil {
		return err
	}
	if p.Path == "" {
		return nil
	}
	provider, release, err := j.provider(ctx, p.StorageID)
	if errors.Is(err, store.ErrNotFound) {
		return queue.Permanent(err)
	}
	if err != nil {
		return err
	}
	defer release()
	return provider.Delete(ctx, p.Path)
}

func (j *deleteArtifact) Failed(ctx context.Context, job models.Job, cause error) error {
	p, err := queue.Decode[ArtifactPayload](job)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).AnErr("cause", cause).Msg("Could not delete backup artifact")
		return nil
	}
	logger.Ctx(ctx).Error().Err(cause).Str("storage_id", p.StorageID).Str("path", p.Path).
		Msg("Could not delete backup artifact; it must be removed by hand")
	return nil
}

// deleteFile removes a file a user asked to delete. The record goes only
// once its artifact is gone from storage.
type deleteFile struct {
	Deps
}

func (j *deleteFile) Handle(ctx context.Context, job models.Job) error {
	p, err := queue.Decode[FilePayload](job)
	if err != nil {
		return err
	}
	st := store.New(j.DB)
	f, err := st.GetBackupFile(ctx, p.BackupFileID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Ctx(ctx).Info().Msg("Backup file is gone, nothing to do")
		return nil
	}
	if err != nil {
		return err
	}
	b, err := st.GetBackup(ctx, f.BackupID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	provider, release, err := j.provider(ctx, b.StorageID)
	if errors.Is(err, store.ErrNotFound) {
		return queue.Permanent(err)
	}
	if err != nil {
		return err
	}
	defer release()

	if err := j.removeFile(ctx, provider, b, f); err != nil {
		return err
	}
	logger.Ctx(ctx).Info().Str("backup", b.Name).Str("file", f.Name).Msg("Deleted backup file")
	return nil
}

func (j *deleteFile) Failed(ctx context.Context, job models.Job, cause error) error {
	p, err := queue.Decode[FilePayload](job)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).AnErr("cause", cause).Msg("Could not delete backup file")
		return nil
	}
	logger.Ctx(ctx).Error().Err(cause).Str("backup_file_id", p.BackupFileID).
		Msg("Could not delete backup artifact; the file record is kept")
	return nil
}
