// Package store is the persistence layer of trellis. It hides the SQLite
// schema behind typed operations on the flow entities and the scheduled-jobs
// table, and provides the transactional unit of work the engine commits
// through.
//
// Every data-access method lives on Queries, which runs against either the
// raw *sql.DB (auto-commit) or a transaction opened by WithTx. Engine
// operations that must be all-or-nothing (emit a message, log the
// execution, schedule the dependents) run inside a single WithTx call.
package store

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/candelahq/trellis/errors"
)

// timeLayout is RFC3339 UTC with fixed-width nanoseconds, so that stored
// timestamps order lexically and the poller's `run_at <= ?` comparison is
// a plain string comparison.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// dbtx is satisfied by both *sql.DB and *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries holds the typed data-access operations. It is embedded in Store
// (running against the database directly) and handed to WithTx callbacks
// (running against the open transaction).
type Queries struct {
	q dbtx
}

// Store wraps the SQLite database with typed persistence operations
type Store struct {
	Queries
	db     *sql.DB
	logger *zap.SugaredLogger
}

// New creates a store over an opened (and migrated) database
func New(db *sql.DB, logger *zap.SugaredLogger) *Store {
	return &Store{
		Queries: Queries{q: db},
		db:      db,
		logger:  logger,
	}
}

// DB exposes the underlying handle for health checks and stats queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a single transaction. If fn returns an error the
// transaction is rolled back and the error is returned; otherwise the
// transaction commits. This is the engine's atomicity boundary: each public
// engine operation commits exactly once, here.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err := fn(&Queries{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warnw("Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// formatTime renders a timestamp in the fixed-width UTC layout
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime reads a stored timestamp back into a UTC time.Time
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "malformed stored timestamp %q", s)
	}
	return t.UTC(), nil
}

// nullString maps "" to NULL for optional reference columns
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
