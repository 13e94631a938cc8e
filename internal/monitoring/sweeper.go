package monitoring

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/johnngondi/vito/internal/jobs"
	"github.com/johnngondi/vito/internal/metrics"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/state"
	"github.com/johnngondi/vito/internal/store"
	"github.com/rs/zerolog/log"
)

// NoPendingJob is recorded on records the sweeper fails.
const NoPendingJob = "no pending job"

// JobTracker is the part of the queue the sweeper needs.
type JobTracker interface {
	ReleaseStale(ctx context.Context, lease time.Duration) (int64, error)
	HasPending(ctx context.Context, resourceID string) (bool, error)
}

// Sweeper returns abandoned jobs to the queue and fails records that are
// waiting on a job that no longer exists.
type Sweeper struct {
	db       *sql.DB
	jobs     JobTracker
	notifier jobs.Notifier
	lease    time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a new Sweeper. Jobs locked longer than lease are
// considered abandoned.
func NewSweeper(db *sql.DB, tracker JobTracker, notifier jobs.Notifier, lease, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{db: db, jobs: tracker, notifier: notifier, lease: lease, interval: interval, now: time.Now}
}

// Run sweeps periodically until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Dur("lease", s.lease).Msg("Starting sweeper")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Sweep failed")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping sweeper")
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs a single pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	released, err := s.jobs.ReleaseStale(ctx, s.lease)
	if err != nil {
		return err
	}
	if released > 0 {
		log.Warn().Int64("jobs", released).Msg("Released jobs with expired leases")
	}

	before := s.now().Add(-s.lease)
	st := store.New(s.db)

	links, err := st.ListStaleServerSshKeys(ctx, before)
	if err != nil {
		return err
	}
	for _, link := range links {
		orphaned, err := s.orphaned(ctx, link.ID)
		if err != nil {
			return err
		}
		if !orphaned {
			continue
		}
		err = st.TransitionServerSshKey(ctx, link.ID, link.Status, models.SshKeyStatusFailed, NoPendingJob)
		if s.skip(err) {
			continue
		}
		if err != nil {
			return err
		}
		s.failed(ctx, state.KindServerSshKey, link.ID, link.ServerID)
	}

	files, err := st.ListStaleBackupFiles(ctx, before)
	if err != nil {
		return err
	}
	for _, f := range files {
		orphaned, err := s.orphaned(ctx, f.ID)
		if err != nil {
			return err
		}
		if !orphaned {
			continue
		}
		err = st.TransitionBackupFile(ctx, f.ID, f.Status, models.BackupFileStatusFailed, store.BackupFileResult{LastError: NoPendingJob})
		if s.skip(err) {
			continue
		}
		if err != nil {
			return err
		}
		serverID := ""
		if b, err := st.GetBackup(ctx, f.BackupID); err == nil {
			serverID = b.ServerID
		}
		s.failed(ctx, state.KindBackupFile, f.ID, serverID)
	}
	return nil
}

func (s *Sweeper) orphaned(ctx context.Context, resourceID string) (bool, error) {
	pending, err := s.jobs.HasPending(ctx, resourceID)
	return !pending, err
}

func (s *Sweeper) skip(err error) bool {
	return errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound)
}

func (s *Sweeper) failed(ctx context.Context, kind state.Kind, resourceID, serverID string) {
	metrics.OrphansFailed.WithLabelValues(string(kind)).Inc()
	log.Warn().Str("kind", string(kind)).Str("resource_id", resourceID).Msg("Failed record without a pending job")
	if s.notifier != nil {
		s.notifier.StatusChanged(ctx, models.StatusChange{
			Kind:       string(kind),
			ResourceID: resourceID,
			ServerID:   serverID,
			Status:     "failed",
			Error:      NoPendingJob,
		})
	}
}
