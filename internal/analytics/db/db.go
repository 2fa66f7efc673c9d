// Package analyticsdb holds the read-only queries the analytics engine runs
// against the point-of-sale dataset.
package analyticsdb

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// DBTX is the read surface the queries need. *pgxpool.Pool and *pgx.Conn
// satisfy it.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Queries executes the analytics statements over a DBTX.
type Queries struct {
	db DBTX
}

// New binds the query set to a connection or pool.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}
