package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite" // SQLite driver
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so callers can compose
// writes into a caller-owned transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new database connection pool.
func New(ctx context.Context, dataSourceName string) (*sql.DB, error) {
	dsn := dataSourceName
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Migrate runs the SQL statements to set up the database schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	const sqlStmt = `
	CREATE TABLE IF NOT EXISTS servers (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		ip TEXT NOT NULL,
		port INTEGER NOT NULL DEFAULT 22,
		ssh_user TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ssh_keys (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		public_key TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS server_ssh_keys (
		id TEXT NOT NULL PRIMARY KEY,
		server_id TEXT NOT NULL REFERENCES servers(id),
		ssh_key_id TEXT NOT NULL REFERENCES ssh_keys(id),
		status TEXT NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (server_id, ssh_key_id)
	);

	CREATE TABLE IF NOT EXISTS storage_providers (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		provider TEXT NOT NULL,
		credentials_json TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS databases (
		id TEXT NOT NULL PRIMARY KEY,
		server_id TEXT NOT NULL REFERENCES servers(id),
		name TEXT NOT NULL,
		engine TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS backups (
		id TEXT NOT NULL PRIMARY KEY,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		server_id TEXT NOT NULL REFERENCES servers(id),
		storage_id TEXT NOT NULL REFERENCES storage_providers(id),
		database_id TEXT REFERENCES databases(id),
		interval TEXT NOT NULL,
		keep_backups INTEGER NOT NULL CHECK (keep_backups >= 0),
		status TEXT NOT NULL,
		last_run_at DATETIME,
		next_run_at DATETIME,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS backup_files (
		id TEXT NOT NULL PRIMARY KEY,
		backup_id TEXT NOT NULL REFERENCES backups(id),
		name TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		checksum TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (backup_id, name)
	);
	CREATE INDEX IF NOT EXISTS idx_backup_files_owner ON backup_files (backup_id, status, created_at);

	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		lane TEXT NOT NULL,
		name TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		server_id TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL,
		status TEXT NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		available_at DATETIME NOT NULL,
		locked_at DATETIME,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_lane ON jobs (lane, status, available_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_resource ON jobs (resource_id, status);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT NOT NULL PRIMARY KEY,
		type TEXT NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		server_id TEXT,
		resource_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	`
	_, err := db.ExecContext(ctx, sqlStmt)
	return err
}
