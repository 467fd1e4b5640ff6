// Package ledger is the durable, transactional store of the evaluation core:
// users, systems, articles, candidate rankings pushed by external systems,
// interleaved impressions with their interaction flags, and topic suggestions.
//
// All calendar gates (recommendation and email idempotence, the past-seven-days
// article window) operate on UTC dates; everything else is UTC timestamps.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

// DatabaseQuerier interface for database operations. Satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ErrNotFound is returned by lookups that matched nothing.
var ErrNotFound = errors.New("ledger: not found")

// Store exposes the ledger operations. Methods are safe for concurrent use;
// writes touching the same impression row serialize on row locks in the
// underlying store.
type Store struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func New(db DatabaseQuerier, logger *logrus.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// UTCDate truncates t to its UTC calendar date.
func UTCDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
