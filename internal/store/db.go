package store

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql methods the task stores need.
// Both *sql.DB and *sql.Tx satisfy it, so a store can run the same
// queries directly against a connection pool or inside a transaction
// (see TaskStore.WithTx in the postgres package).
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
