// Package queue is a SQLite-backed job queue with named execution lanes.
//
// Jobs are inserted through the caller's transaction, so a record that
// needs asynchronous work is never committed without the job that
// resolves it. Delivery is at-least-once; handlers must be idempotent.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/johnngondi/vito/internal/database"
	"github.com/johnngondi/vito/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// JobQueue accepts work for asynchronous execution.
type JobQueue interface {
	Enqueue(ctx context.Context, db database.DBTX, lane string, t Task) (int64, error)
}

// Task describes a job to enqueue.
type Task struct {
	Name       string
	ResourceID string
	// ServerID keys the per-server concurrency ceiling of the lane.
	ServerID string
	Payload  any
}

// Handler executes one job type.
type Handler interface {
	// Handle performs one attempt. Returning a Permanent error stops retries.
	Handle(ctx context.Context, job models.Job) error
	// Failed runs once the job will not be attempted again.
	Failed(ctx context.Context, job models.Job, cause error) error
}

// Options tunes retries per job type.
type Options struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// Timeout bounds a single attempt. Zero means no bound beyond the caller's.
	Timeout time.Duration
}

// LaneConfig describes an independently concurrency-limited lane.
type LaneConfig struct {
	Name string
	// Concurrency is the number of workers, and so the ceiling of parallel jobs.
	Concurrency int
	// PerKeyConcurrency caps parallel jobs for one server. Zero disables it.
	PerKeyConcurrency int
}

// Config configures a Queue.
type Config struct {
	Lanes        []LaneConfig
	Defaults     Options
	PollInterval time.Duration
	Clock        func() time.Time
}

type registration struct {
	handler Handler
	opts    Options
}

type lane struct {
	cfg    LaneConfig
	notify chan struct{}
	keys   *keyedLimiter
}

// Queue stores jobs in the jobs table and runs them on lane workers.
type Queue struct {
	db           *sql.DB
	lanes        map[string]*lane
	defaults     Options
	pollInterval time.Duration
	clock        func() time.Time

	mu       sync.RWMutex
	handlers map[string]registration
}

// New creates a Queue over db.
func New(db *sql.DB, cfg Config) *Queue {
	q := &Queue{
		db:           db,
		lanes:        make(map[string]*lane),
		defaults:     cfg.Defaults,
		pollInterval: cfg.PollInterval,
		clock:        cfg.Clock,
		handlers:     make(map[string]registration),
	}
	if q.defaults.MaxAttempts < 1 {
		q.defaults.MaxAttempts = 3
	}
	if q.defaults.BackoffBase <= 0 {
		q.defaults.BackoffBase = 10 * time.Second
	}
	if q.pollInterval <= 0 {
		q.pollInterval = 5 * time.Second
	}
	if q.clock == nil {
		q.clock = time.Now
	}
	for _, lc := range cfg.Lanes {
		if lc.Concurrency < 1 {
			lc.Concurrency = 1
		}
		q.lanes[lc.Name] = &lane{
			cfg:    lc,
			notify: make(chan struct{}, lc.Concurrency),
			keys:   newKeyedLimiter(lc.PerKeyConcurrency),
		}
	}
	return q
}

func (q *Queue) now() time.Time {
	return q.clock().UTC()
}

// Register binds a handler to a job name. Zero fields in opts take the queue defaults.
func (q *Queue) Register(name string, h Handler, opts Options) {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = q.defaults.MaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = q.defaults.BackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = q.defaults.BackoffMax
	}
	if opts.Timeout <= 0 {
		opts.Timeout = q.defaults.Timeout
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = registration{handler: h, opts: opts}
}

func (q *Queue) registration(name string) (registration, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	r, ok := q.handlers[name]
	return r, ok
}

// Enqueue inserts a job through db, which should be the transaction that
// moved the resource into the state the job resolves.
func (q *Queue) Enqueue(ctx context.Context, db database.DBTX, laneName string, t Task) (int64, error) {
	l, ok := q.lanes[laneName]
	if !ok {
		return 0, fmt.Errorf("unknown lane %q", laneName)
	}
	reg, ok := q.registration(t.Name)
	if !ok {
		return 0, fmt.Errorf("no handler registered for job %q", t.Name)
	}
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return 0, fmt.Errorf("encode payload of %s: %w", t.Name, err)
	}

	now := q.now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO jobs (lane, name, resource_id, server_id, payload, attempts, max_attempts, status, last_error, available_at, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, '', ?, ?)`,
		laneName, t.Name, t.ResourceID, t.ServerID, string(payload), reg.opts.MaxAttempts, models.JobStatusPending, now, now)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", t.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	select {
	case l.notify <- struct{}{}:
	default:
	}
	return id, nil
}

// Start runs the workers of every lane until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range q.lanes {
		log.Info().Str("lane", l.cfg.Name).Int("concurrency", l.cfg.Concurrency).
			Int("per_server", l.cfg.PerKeyConcurrency).Msg("Starting queue lane")
		for i := 0; i < l.cfg.Concurrency; i++ {
			g.Go(func() error {
				q.work(ctx, l)
				return nil
			})
		}
	}
	return g.Wait()
}

func (q *Queue) work(ctx context.Context, l *lane) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		q.drain(ctx, l)
		select {
		case <-ctx.Done():
			return
		case <-l.notify:
		case <-ticker.C:
		}
	}
}

// drain runs jobs until the lane has nothing claimable.
func (q *Queue) drain(ctx context.Context, l *lane) {
	for ctx.Err() == nil {
		ran, err := q.runNext(ctx, l)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("lane", l.cfg.Name).Msg("Queue: failed to claim job")
			}
			return
		}
		if !ran {
			return
		}
	}
}

// RunNext claims and runs at most one job of the lane. It reports whether a job ran.
func (q *Queue) RunNext(ctx context.Context, laneName string) (bool, error) {
	l, ok := q.lanes[laneName]
	if !ok {
		return false, fmt.Errorf("unknown lane %q", laneName)
	}
	return q.runNext(ctx, l)
}

func (q *Queue) runNext(ctx context.Context, l *lane) (bool, error) {
	job, release, err := q.claim(ctx, l)
	if err != nil || job == nil {
		return false, err
	}
	defer release()
	q.process(ctx, *job)
	return true, nil
}

const claimBatch = 32

type candidate struct {
	id       int64
	serverID string
}

// claim moves the oldest available job whose server has capacity from
// pending to running. Candidates are read in pages so jobs of busy servers
// at the head of the lane do not hide runnable ones behind them.
func (q *Queue) claim(ctx context.Context, l *lane) (*models.Job, func(), error) {
	var after int64
	for {
		candidates, err := q.candidates(ctx, l, after)
		if err != nil {
			return nil, nil, err
		}
		for _, c := range candidates {
			release, ok := l.keys.TryAcquire(c.serverID)
			if !ok {
				continue
			}
			res, err := q.db.ExecContext(ctx,
				"UPDATE jobs SET status = ?, locked_at = ?, attempts = attempts + 1 WHERE id = ? AND status = ?",
				models.JobStatusRunning, q.now(), c.id, models.JobStatusPending)
			if err != nil {
				release()
				return nil, nil, err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				release()
				continue
			}
			job, err := q.Get(ctx, c.id)
			if err != nil {
				release()
				return nil, nil, err
			}
			return &job, release, nil
		}
		if len(candidates) < claimBatch {
			return nil, nil, nil
		}
		after = candidates[len(candidates)-1].id
	}
}

// candidates returns up to claimBatch available jobs of the lane with an id above after.
func (q *Queue) candidates(ctx context.Context, l *lane, after int64) ([]candidate, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, server_id FROM jobs
		WHERE lane = ? AND status = ? AND available_at <= ? AND id > ?
		ORDER BY id
		LIMIT ?`,
		l.cfg.Name, models.JobStatusPending, q.now(), after, claimBatch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.serverID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const jobColumns = "id, lane, name, resource_id, server_id, payload, attempts, max_attempts, status, last_error, available_at, locked_at, created_at"

// ErrJobNotFound is returned by Get and Retry for unknown ids.
var ErrJobNotFound = errors.New("job not found")

// Get loads a job by id.
func (q *Queue) Get(ctx context.Context, id int64) (models.Job, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return job, fmt.Errorf("job %d: %w", id, ErrJobNotFound)
	}
	return job, err
}

func scanJob(sc interface{ Scan(...any) error }) (models.Job, error) {
	var job models.Job
	var payload string
	var lockedAt sql.NullTime
	err := sc.Scan(&job.ID, &job.Lane, &job.Name, &job.ResourceID, &job.ServerID, &payload,
		&job.Attempts, &job.MaxAttempts, &job.Status, &job.LastError, &job.AvailableAt, &lockedAt, &job.CreatedAt)
	if err != nil {
		return job, err
	}
	job.Payload = json.RawMessage(payload)
	if lockedAt.Valid {
		t := lockedAt.Time
		job.LockedAt = &t
	}
	return job, nil
}

// Decode unmarshals a job payload.
func Decode[T any](job models.Job) (T, error) {
	var v T
	if err := json.Unmarshal(job.Payload, &v); err != nil {
		return v, Permanent(fmt.Errorf("decode payload of job %d (%s): %w", job.ID, job.Name, err))
	}
	return v, nil
}
