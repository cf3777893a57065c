package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrostad/snaplist/internal/domain"
)

// fakeQuotaRepo is an in-memory QuotaRepository for service tests.
type fakeQuotaRepo struct {
	quota       *domain.UserQuota
	err         error
	spendCalls  int
	lastAmount  int
	denyNext    bool
	getOrInitCt int
}

func (f *fakeQuotaRepo) GetOrInit(_ context.Context, userID uuid.UUID) (*domain.UserQuota, error) {
	f.getOrInitCt++
	if f.err != nil {
		return nil, f.err
	}
	if f.quota == nil {
		f.quota = &domain.UserQuota{
			UserID:                  userID,
			SaveSlotsRemaining:      domain.DefaultSaveSlots,
			CreationsRemainingToday: domain.DefaultDailyCreations,
			LastCreationReset:       time.Now().UTC(),
		}
	}
	return f.quota, nil
}

func (f *fakeQuotaRepo) SpendCreations(_ context.Context, _ uuid.UUID, amount int) (bool, error) {
	f.spendCalls++
	f.lastAmount = amount
	if f.err != nil {
		return false, f.err
	}
	if f.denyNext {
		return false, nil
	}
	return true, nil
}

func (f *fakeQuotaRepo) SpendSaveSlots(_ context.Context, _ uuid.UUID, amount int) (bool, error) {
	f.spendCalls++
	f.lastAmount = amount
	if f.err != nil {
		return false, f.err
	}
	if f.denyNext {
		return false, nil
	}
	return true, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freeUser() *domain.User {
	return &domain.User{ID: uuid.New(), Plan: domain.PlanFree}
}

func proUser() *domain.User {
	return &domain.User{ID: uuid.New(), Plan: domain.PlanPro}
}

func TestQuotaService_ConsumeCreations(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		repo := &fakeQuotaRepo{}
		svc := NewQuotaService(repo, discardLogger())

		err := svc.ConsumeCreations(ctx, freeUser(), 1)
		assert.NoError(t, err)
		assert.Equal(t, 1, repo.spendCalls)
		assert.Equal(t, 1, repo.lastAmount)
	})

	t.Run("pro plan bypasses counters entirely", func(t *testing.T) {
		repo := &fakeQuotaRepo{}
		svc := NewQuotaService(repo, discardLogger())

		err := svc.ConsumeCreations(ctx, proUser(), 1)
		assert.NoError(t, err)
		assert.Zero(t, repo.spendCalls, "pro consumption must not touch the store")
	})

	t.Run("insufficient balance is payment required", func(t *testing.T) {
		repo := &fakeQuotaRepo{denyNext: true}
		svc := NewQuotaService(repo, discardLogger())

		err := svc.ConsumeCreations(ctx, freeUser(), 1)
		require.Error(t, err)
		assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
		assert.Equal(t, domain.ReasonCreationQuotaExceeded, domain.ErrorReason(err))
	})

	t.Run("store error fails closed", func(t *testing.T) {
		repo := &fakeQuotaRepo{err: errors.New("connection refused")}
		svc := NewQuotaService(repo, discardLogger())

		err := svc.ConsumeCreations(ctx, freeUser(), 1)
		require.Error(t, err)
		assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err), "a store outage must never grant quota")
	})
}

func TestQuotaService_ConsumeSaveSlots(t *testing.T) {
	ctx := context.Background()

	t.Run("insufficient slots carry the generic reason", func(t *testing.T) {
		repo := &fakeQuotaRepo{denyNext: true}
		svc := NewQuotaService(repo, discardLogger())

		err := svc.ConsumeSaveSlots(ctx, freeUser(), 1)
		require.Error(t, err)
		assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
		assert.Equal(t, domain.ReasonQuotaExceeded, domain.ErrorReason(err))
	})

	t.Run("pro plan bypass", func(t *testing.T) {
		repo := &fakeQuotaRepo{denyNext: true}
		svc := NewQuotaService(repo, discardLogger())

		assert.NoError(t, svc.ConsumeSaveSlots(ctx, proUser(), 1))
	})
}

func TestQuotaService_GetSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("reflects stored quota and plan", func(t *testing.T) {
		user := proUser()
		repo := &fakeQuotaRepo{quota: &domain.UserQuota{
			UserID:                  user.ID,
			SaveSlotsRemaining:      3,
			CreationsRemainingToday: 7,
			BonusCreationsRemaining: 12,
		}}
		svc := NewQuotaService(repo, discardLogger())

		snap, err := svc.GetSnapshot(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, 3, snap.SaveSlotsRemaining)
		assert.Equal(t, 7, snap.CreationsRemainingToday)
		assert.Equal(t, 12, snap.BonusCreationsRemaining)
		assert.True(t, snap.IsPro)
	})

	t.Run("store error surfaces as internal", func(t *testing.T) {
		repo := &fakeQuotaRepo{err: errors.New("boom")}
		svc := NewQuotaService(repo, discardLogger())

		_, err := svc.GetSnapshot(ctx, freeUser())
		require.Error(t, err)
		assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
	})
}
