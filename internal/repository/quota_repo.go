package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ferrostad/snaplist/internal/domain"
)

// QuotaRepository is the only mutation path into the per-user quota ledger.
// Ad-hoc updates to quota columns from elsewhere would bypass the
// free-before-bonus precedence, so all writers go through these operations.
type QuotaRepository interface {
	// GetOrInit returns the user's quota row, creating it with defaults on
	// first access and applying the lazy daily reset if the stored reset
	// instant falls on an earlier UTC date than now.
	GetOrInit(ctx context.Context, userID uuid.UUID) (*domain.UserQuota, error)

	// SpendCreations atomically consumes amount units of creation allowance
	// with free-before-bonus precedence. Returns false without mutation when
	// the combined pools cannot cover the amount.
	SpendCreations(ctx context.Context, userID uuid.UUID, amount int) (bool, error)

	// SpendSaveSlots atomically consumes amount save slots. Returns false
	// without mutation when the pool is insufficient.
	SpendSaveSlots(ctx context.Context, userID uuid.UUID, amount int) (bool, error)
}

type quotaRepo struct {
	pool *pgxpool.Pool
}

// NewQuotaRepo creates a new QuotaRepository.
func NewQuotaRepo(pool *pgxpool.Pool) QuotaRepository {
	return &quotaRepo{pool: pool}
}

// lockQuota ensures the quota row exists, locks it for the duration of the
// transaction, and applies the daily reset when due. The lock is scoped to a
// single user's row so concurrent operations on different users never block
// each other.
func lockQuota(ctx context.Context, tx pgx.Tx, userID uuid.UUID, now time.Time) (*domain.UserQuota, error) {
	const ensureProfileQ = `
		INSERT INTO profiles (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, ensureProfileQ, userID); err != nil {
		return nil, fmt.Errorf("ensuring profile for user %s: %w", userID, err)
	}

	const ensureQ = `
		INSERT INTO user_quotas (user_id, save_slots_remaining, creations_remaining_today, bonus_creations_remaining, last_creation_reset)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, ensureQ, userID, domain.DefaultSaveSlots, domain.DefaultDailyCreations, now); err != nil {
		return nil, fmt.Errorf("initializing quota for user %s: %w", userID, err)
	}

	const lockQ = `
		SELECT user_id, save_slots_remaining, creations_remaining_today, bonus_creations_remaining, last_creation_reset, updated_at
		FROM user_quotas
		WHERE user_id = $1
		FOR UPDATE
	`
	var q domain.UserQuota
	err := tx.QueryRow(ctx, lockQ, userID).Scan(
		&q.UserID,
		&q.SaveSlotsRemaining,
		&q.CreationsRemainingToday,
		&q.BonusCreationsRemaining,
		&q.LastCreationReset,
		&q.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("locking quota for user %s: %w", userID, err)
	}

	if domain.ShouldResetDaily(q.LastCreationReset, now) {
		const resetQ = `
			UPDATE user_quotas
			SET creations_remaining_today = $2, last_creation_reset = $3, updated_at = NOW()
			WHERE user_id = $1
		`
		if _, err := tx.Exec(ctx, resetQ, userID, domain.DefaultDailyCreations, now); err != nil {
			return nil, fmt.Errorf("applying daily reset for user %s: %w", userID, err)
		}
		q.CreationsRemainingToday = domain.DefaultDailyCreations
		q.LastCreationReset = now
	}

	return &q, nil
}

func (r *quotaRepo) GetOrInit(ctx context.Context, userID uuid.UUID) (*domain.UserQuota, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting quota transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q, err := lockQuota(ctx, tx, userID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing quota init for user %s: %w", userID, err)
	}
	return q, nil
}

func (r *quotaRepo) SpendCreations(ctx context.Context, userID uuid.UUID, amount int) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("starting creation spend transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q, err := lockQuota(ctx, tx, userID, time.Now().UTC())
	if err != nil {
		return false, err
	}

	newDaily, newBonus, ok := domain.SplitCreationSpend(q.CreationsRemainingToday, q.BonusCreationsRemaining, amount)
	if !ok {
		return false, nil
	}

	const spendQ = `
		UPDATE user_quotas
		SET creations_remaining_today = $2, bonus_creations_remaining = $3, updated_at = NOW()
		WHERE user_id = $1
	`
	if _, err := tx.Exec(ctx, spendQ, userID, newDaily, newBonus); err != nil {
		return false, fmt.Errorf("spending creations for user %s: %w", userID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing creation spend for user %s: %w", userID, err)
	}
	return true, nil
}

func (r *quotaRepo) SpendSaveSlots(ctx context.Context, userID uuid.UUID, amount int) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("starting save slot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q, err := lockQuota(ctx, tx, userID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if q.SaveSlotsRemaining < amount {
		return false, nil
	}

	const spendQ = `
		UPDATE user_quotas
		SET save_slots_remaining = save_slots_remaining - $2, updated_at = NOW()
		WHERE user_id = $1
	`
	if _, err := tx.Exec(ctx, spendQ, userID, amount); err != nil {
		return false, fmt.Errorf("spending save slots for user %s: %w", userID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing save slot spend for user %s: %w", userID, err)
	}
	return true, nil
}
