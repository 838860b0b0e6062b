package database

import (
	"context"
	"database/sql"
	"time"
)

// Querier is satisfied by *sql.DB and *sql.Tx so repositories can run inside a
// read snapshot or a write transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ToUnixDay stores a calendar date as unix seconds at UTC midnight
func ToUnixDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}

// FromUnix converts stored unix seconds to UTC time
func FromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
