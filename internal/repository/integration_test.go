package repository_test

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrostad/snaplist/internal"
	"github.com/ferrostad/snaplist/internal/domain"
	"github.com/ferrostad/snaplist/internal/repository"
)

// These tests need a real Postgres because what they exercise is row-lock
// serialization and unique constraints, which no in-memory fake reproduces.
// They are skipped unless TEST_DATABASE_URL points at a disposable database.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping database integration test")
	}

	migrateDB, err := sql.Open("pgx", url)
	require.NoError(t, err)
	require.NoError(t, internal.RunMigrations(migrateDB))
	require.NoError(t, migrateDB.Close())

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// spendConcurrently fires attempts SpendCreations calls at once and returns
// how many were granted.
func spendConcurrently(t *testing.T, repo repository.QuotaRepository, userID uuid.UUID, attempts int) int {
	t.Helper()

	results := make(chan bool, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.SpendCreations(context.Background(), userID, 1)
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for ok := range results {
		if ok {
			successes++
		}
	}
	return successes
}

func TestSpendCreations_ConcurrentNoDoubleSpend(t *testing.T) {
	pool := testPool(t)
	repo := repository.NewQuotaRepo(pool)
	ctx := context.Background()
	userID := uuid.New()

	q, err := repo.GetOrInit(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, domain.DefaultDailyCreations, q.CreationsRemainingToday)

	successes := spendConcurrently(t, repo, userID, domain.DefaultDailyCreations+5)
	assert.Equal(t, domain.DefaultDailyCreations, successes)

	q, err = repo.GetOrInit(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, q.CreationsRemainingToday)
	assert.Zero(t, q.BonusCreationsRemaining)
}

func TestSpendCreations_ConcurrentAcrossDailyReset(t *testing.T) {
	pool := testPool(t)
	repo := repository.NewQuotaRepo(pool)
	ctx := context.Background()
	userID := uuid.New()

	_, err := repo.GetOrInit(ctx, userID)
	require.NoError(t, err)

	// Leave the row nearly drained with a reset instant from before UTC
	// midnight. The first spend to take the lock replenishes the daily pool;
	// if the reset ran more than once the success count would exceed the
	// daily allowance.
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	_, err = pool.Exec(ctx, `
		UPDATE user_quotas
		SET creations_remaining_today = 2, last_creation_reset = $2
		WHERE user_id = $1
	`, userID, yesterday)
	require.NoError(t, err)

	successes := spendConcurrently(t, repo, userID, domain.DefaultDailyCreations+5)
	assert.Equal(t, domain.DefaultDailyCreations, successes)

	q, err := repo.GetOrInit(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, q.CreationsRemainingToday)
	assert.True(t, q.LastCreationReset.After(yesterday))
}

func TestCompleteWithGrant_DuplicateSessionAcrossKeys(t *testing.T) {
	pool := testPool(t)
	quotas := repository.NewQuotaRepo(pool)
	purchases := repository.NewPurchaseRepo(pool)
	ctx := context.Background()
	userID := uuid.New()

	_, err := quotas.GetOrInit(ctx, userID)
	require.NoError(t, err)

	sessionID := "cs_test_" + uuid.NewString()
	params := repository.CompleteGrantParams{
		UserID:          userID,
		SKU:             "credits_10",
		IdempotencyKey:  "purchase:" + uuid.NewString(),
		AmountCents:     299,
		StripeSessionID: sessionID,
		AddsCreations:   10,
		AddsSaves:       5,
	}
	res, err := purchases.CompleteWithGrant(ctx, params)
	require.NoError(t, err)
	require.False(t, res.AlreadyApplied)

	// The same session delivered again under a different idempotency key, as
	// a recovered grant would arrive. The unique session reference turns it
	// into a no-op redelivery instead of a second credit.
	params.IdempotencyKey = "recovered:" + sessionID
	res, err = purchases.CompleteWithGrant(ctx, params)
	require.NoError(t, err)
	assert.True(t, res.AlreadyApplied)

	q, err := quotas.GetOrInit(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 10, q.BonusCreationsRemaining)
	assert.Equal(t, domain.DefaultSaveSlots+5, q.SaveSlotsRemaining)
}
