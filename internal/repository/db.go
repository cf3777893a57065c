// Package repository contains the PostgreSQL persistence layer.
//
// Every cross-request coordination guarantee in the quota ledger lives here:
// row-level locks serialize mutations per user, and unique constraints are
// the final backstop for idempotency races. Repositories expose narrow
// interfaces so services can be tested against fakes.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a pgx connection pool and verifies connectivity.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
