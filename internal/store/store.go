// Package store persists the records whose status the engine drives.
// Every status write is a single-row compare-and-set validated against
// the state machine.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/johnngondi/vito/internal/database"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a compare-and-set finds a different status.
	ErrConflict = errors.New("record status changed concurrently")
)

// Store reads and writes resource records through a DB or a transaction.
type Store struct {
	db database.DBTX
}

// New creates a Store bound to db, which may be a *sql.DB or a *sql.Tx.
func New(db database.DBTX) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle so callers can enqueue jobs in the same transaction.
func (s *Store) DB() database.DBTX {
	return s.db
}

// WithTx runs fn with a Store bound to a new transaction on db.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *Store) error) error {
	return database.WithTx(ctx, db, func(tx *sql.Tx) error {
		return fn(New(tx))
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func now() time.Time {
	return time.Now().UTC()
}

// checkAffected turns a zero-row compare-and-set into ErrNotFound or ErrConflict.
func (s *Store) checkAffected(ctx context.Context, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", table), id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%s %s: %w", table, id, ErrConflict)
}

func notFound(err error, table, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return err
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
