package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/johnngondi/vito/internal/models"
)

// ReleaseStale returns running jobs locked before now-lease to pending.
// Such jobs belong to a worker that died without finishing.
func (q *Queue) ReleaseStale(ctx context.Context, lease time.Duration) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, locked_at = NULL WHERE status = ? AND locked_at < ?",
		models.JobStatusPending, models.JobStatusRunning, q.now().Add(-lease))
	if err != nil {
		return 0, fmt.Errorf("release stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// HasPending reports whether a pending or running job references resourceID.
func (q *Queue) HasPending(ctx context.Context, resourceID string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM jobs WHERE resource_id = ? AND status IN (?, ?)",
		resourceID, models.JobStatusPending, models.JobStatusRunning).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListDead returns buried jobs, newest first.
func (q *Queue) ListDead(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE status = ? ORDER BY id DESC LIMIT ?",
		models.JobStatusDead, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Retry moves a dead job back to pending with a fresh attempt budget.
func (q *Queue) Retry(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, attempts = 0, last_error = '', available_at = ? WHERE id = ? AND status = ?",
		models.JobStatusPending, q.now(), id, models.JobStatusDead)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dead job %d: %w", id, ErrJobNotFound)
	}
	return nil
}

// Purge deletes dead jobs created before the cutoff.
func (q *Queue) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		"DELETE FROM jobs WHERE status = ? AND created_at < ?", models.JobStatusDead, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
