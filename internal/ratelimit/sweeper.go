package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/ferrostad/snaplist/internal/repository"
)

// Retention for counter rows. Correctness never depends on the sweep: a
// stale window is just an old key nobody reads. Pruning only keeps the table
// small.
const (
	counterRetention = 24 * time.Hour
	sweepInterval    = time.Hour
)

// Sweeper periodically prunes expired counter rows.
type Sweeper struct {
	counters repository.CounterRepository
	logger   *slog.Logger
}

// NewSweeper creates a new Sweeper.
func NewSweeper(counters repository.CounterRepository, logger *slog.Logger) *Sweeper {
	return &Sweeper{counters: counters, logger: logger}
}

// Run blocks until ctx is canceled, pruning once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-counterRetention)
			deleted, err := s.counters.PruneBefore(ctx, cutoff)
			if err != nil {
				s.logger.Error("counter prune failed", "error", err)
				continue
			}
			if deleted > 0 {
				s.logger.Debug("pruned rate limit counters", "deleted", deleted)
			}
		}
	}
}
