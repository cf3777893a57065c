package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CounterRepository stores windowed request counters for the rate gateway.
// The key tuple (identifier, endpoint, window_start) is unique, so concurrent
// increments for the same window coalesce through upsert conflict resolution.
// Rows are ephemeral; absence of a row means zero usage.
type CounterRepository interface {
	// Increment upserts the counter for the window and returns the
	// authoritative post-increment count.
	Increment(ctx context.Context, identifier, endpoint string, windowStart time.Time) (int, error)

	// Count returns current usage for the window without mutating anything.
	Count(ctx context.Context, identifier, endpoint string, windowStart time.Time) (int, error)

	// PruneBefore deletes counters for windows that started before cutoff.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type counterRepo struct {
	pool *pgxpool.Pool
}

// NewCounterRepo creates a new CounterRepository.
func NewCounterRepo(pool *pgxpool.Pool) CounterRepository {
	return &counterRepo{pool: pool}
}

func (r *counterRepo) Increment(ctx context.Context, identifier, endpoint string, windowStart time.Time) (int, error) {
	const upsertQ = `
		INSERT INTO rate_limit_counters (identifier, endpoint, window_start, request_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (identifier, endpoint, window_start)
		DO UPDATE SET request_count = rate_limit_counters.request_count + 1
	`
	if _, err := r.pool.Exec(ctx, upsertQ, identifier, endpoint, windowStart); err != nil {
		return 0, fmt.Errorf("incrementing counter %s/%s: %w", identifier, endpoint, err)
	}

	// Re-read rather than trusting a RETURNING value: the re-select is the
	// authoritative post-conflict count regardless of which arm of the upsert
	// ran.
	return r.Count(ctx, identifier, endpoint, windowStart)
}

func (r *counterRepo) Count(ctx context.Context, identifier, endpoint string, windowStart time.Time) (int, error) {
	const q = `
		SELECT COALESCE(SUM(request_count), 0)
		FROM rate_limit_counters
		WHERE identifier = $1 AND endpoint = $2 AND window_start = $3
	`
	var count int
	if err := r.pool.QueryRow(ctx, q, identifier, endpoint, windowStart).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting requests %s/%s: %w", identifier, endpoint, err)
	}
	return count, nil
}

func (r *counterRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM rate_limit_counters WHERE window_start < $1`
	tag, err := r.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning counters: %w", err)
	}
	return tag.RowsAffected(), nil
}
