// Package database provides the thin pgxpool wrapper every
// internal/*/repository_postgres.go shares: connect-and-ping on startup, and
// a WithTx helper that runs a function inside one transaction, committing
// on success and rolling back on error.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps pgxpool.Pool. Every package's PostgresRepository takes a plain
// *pgxpool.Pool (the embedded field below), not this type directly, so
// Pool exists only at the cmd/api wiring boundary.
type Pool struct {
	*pgxpool.Pool
}

// NewPool opens a connection pool to connString and verifies it with a ping
// before returning, so a misconfigured DATABASE_URL fails fast at startup
// rather than on the first request.
func NewPool(ctx context.Context, connString string) (*Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("database: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

// WithTx runs fn inside a transaction, committing on a nil return and
// rolling back otherwise.
func (p *Pool) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.Begin(ctx)
	if err != nil {
		return fmt.Errorf("database: begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op once committed

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
