package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/johnngondi/vito/internal/services"
	"github.com/rs/zerolog/log"
)

// Scheduler starts runs of backups whose cron interval has come due.
type Scheduler struct {
	backupSvc services.BackupServiceProvider
	eventSvc  services.EventServiceProvider
	interval  time.Duration
	now       func() time.Time
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(backupSvc services.BackupServiceProvider, eventSvc services.EventServiceProvider, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		backupSvc: backupSvc,
		eventSvc:  eventSvc,
		interval:  interval,
		now:       time.Now,
	}
}

// Run starts the scheduler's ticking loop and returns when ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("Starting backup scheduler")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run once immediately on start
	s.RunDue(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping backup scheduler")
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue queues a run of every due backup and schedules its next run.
func (s *Scheduler) RunDue(ctx context.Context) {
	now := s.now().UTC()
	due, err := s.backupSvc.ListDueBackups(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("Scheduler: failed to list due backups")
		return
	}

	for _, b := range due {
		if _, err := s.backupSvc.Run(ctx, b.ID); err != nil {
			log.Error().Err(err).Str("backup_id", b.ID).Msg("Scheduler: failed to queue backup")
			msg := fmt.Sprintf("Scheduled run of backup '%s' could not be queued: %v", b.Name, err)
			s.eventSvc.CreateEvent(ctx, "backup.schedule.fail", "error", msg, &b.ServerID)
		}
		// Failed runs are rescheduled too.
		if err := s.backupSvc.MarkScheduled(ctx, b, now); err != nil {
			log.Error().Err(err).Str("backup_id", b.ID).Msg("Scheduler: failed to update run times")
		}
	}
}
