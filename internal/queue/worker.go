package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johnngondi/vito/internal/metrics"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/state"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the queue stops retrying and runs the failure hook.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err ends the job without further attempts.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p) || errors.Is(err, state.ErrInvalidTransition)
}

func (q *Queue) process(ctx context.Context, job models.Job) {
	logger := log.With().
		Int64("job_id", job.ID).
		Str("lane", job.Lane).
		Str("job", job.Name).
		Str("resource_id", job.ResourceID).
		Str("server_id", job.ServerID).
		Int("attempt", job.Attempts).
		Logger()
	ctx = logger.WithContext(ctx)

	reg, ok := q.registration(job.Name)
	if !ok {
		err := fmt.Errorf("no handler registered for job %q", job.Name)
		logger.Error().Err(err).Msg("Burying job")
		q.bury(ctx, job, err)
		return
	}

	// The handler already ran out of attempts; only the failure hook is outstanding.
	if job.Attempts > job.MaxAttempts {
		q.fail(ctx, &logger, reg, job, errors.New(job.LastError))
		return
	}

	inFlight := metrics.LaneInFlight.WithLabelValues(job.Lane)
	inFlight.Inc()
	start := time.Now()
	err := q.handle(ctx, reg, job)
	inFlight.Dec()
	metrics.JobDuration.WithLabelValues(job.Lane, job.Name).Observe(time.Since(start).Seconds())

	interrupted := err != nil && ctx.Err() != nil
	// Bookkeeping must land even when the worker is shutting down.
	ctx = context.WithoutCancel(ctx)

	switch {
	case interrupted:
		// Shutdown cut the attempt short; it does not count.
		metrics.JobsProcessed.WithLabelValues(job.Lane, job.Name, "interrupted").Inc()
		logger.Info().Err(err).Msg("Job interrupted, returning it to the queue")
		q.requeue(ctx, &logger, job.ID, job.Attempts-1, 0, lastError(job))
	case err == nil:
		metrics.JobsProcessed.WithLabelValues(job.Lane, job.Name, "done").Inc()
		if _, derr := q.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", job.ID); derr != nil {
			logger.Error().Err(derr).Msg("Failed to delete finished job")
			return
		}
		logger.Debug().Dur("took", time.Since(start)).Msg("Job finished")
	case errors.Is(err, state.ErrInvalidTransition):
		logger.Error().Err(err).Bool("defect", true).Msg("Job attempted an illegal status transition")
		q.fail(ctx, &logger, reg, job, err)
	case IsPermanent(err):
		logger.Warn().Err(err).Msg("Job failed permanently")
		q.fail(ctx, &logger, reg, job, err)
	case job.Attempts >= job.MaxAttempts:
		logger.Warn().Err(err).Msg("Job exhausted its attempts")
		q.fail(ctx, &logger, reg, job, err)
	default:
		delay := backoffDelay(reg.opts.BackoffBase, reg.opts.BackoffMax, job.Attempts)
		metrics.JobsProcessed.WithLabelValues(job.Lane, job.Name, "retry").Inc()
		logger.Warn().Err(err).Dur("backoff", delay).Msg("Job attempt failed, retrying")
		q.requeue(ctx, &logger, job.ID, job.Attempts, delay, err)
	}
}

// handle runs one attempt under the per-attempt timeout, converting panics to permanent errors.
func (q *Queue) handle(ctx context.Context, reg registration, job models.Job) (err error) {
	if reg.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, reg.opts.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("panic in job %s: %v", job.Name, r))
		}
	}()
	return reg.handler.Handle(ctx, job)
}

// fail runs the failure hook and buries the job. If the hook errors the
// job goes back to pending so the hook is retried on the next claim.
func (q *Queue) fail(ctx context.Context, logger *zerolog.Logger, reg registration, job models.Job, cause error) {
	metrics.JobsProcessed.WithLabelValues(job.Lane, job.Name, "failed").Inc()

	if ferr := q.failed(ctx, reg, job, cause); ferr != nil {
		delay := backoffDelay(reg.opts.BackoffBase, reg.opts.BackoffMax, job.Attempts)
		logger.Error().Err(ferr).AnErr("cause", cause).Dur("backoff", delay).Msg("Job failure hook errored, retrying hook")
		q.requeue(ctx, logger, job.ID, job.MaxAttempts, delay, cause)
		return
	}
	q.bury(ctx, job, cause)
}

func (q *Queue) failed(ctx context.Context, reg registration, job models.Job, cause error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in failure hook of %s: %v", job.Name, r)
		}
	}()
	return reg.handler.Failed(ctx, job, cause)
}

func (q *Queue) bury(ctx context.Context, job models.Job, cause error) {
	_, err := q.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, locked_at = NULL, last_error = ? WHERE id = ?",
		models.JobStatusDead, errorText(cause), job.ID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to bury job")
	}
}

// requeue returns a running job to pending after delay with the given attempt count.
func (q *Queue) requeue(ctx context.Context, logger *zerolog.Logger, id int64, attempts int, delay time.Duration, cause error) {
	_, err := q.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, locked_at = NULL, attempts = ?, available_at = ?, last_error = ? WHERE id = ?",
		models.JobStatusPending, attempts, q.now().Add(delay), errorText(cause), id)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to requeue job")
	}
}

func lastError(job models.Job) error {
	if job.LastError == "" {
		return nil
	}
	return errors.New(job.LastError)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
