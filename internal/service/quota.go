// Package service contains the business logic layer.
//
// This file implements the quota engine: get-or-initialize with lazy daily
// reset, atomic consumption with free-before-bonus precedence, and pro-plan
// bypass. Unlike the rate gateway, the engine fails closed: a store error is
// surfaced as an internal failure, never as a silent grant.
package service

import (
	"context"
	"log/slog"

	"github.com/ferrostad/snaplist/internal/domain"
	"github.com/ferrostad/snaplist/internal/repository"
)

// QuotaService defines the quota engine operations.
type QuotaService interface {
	// GetSnapshot returns the user's current quota, creating or resetting the
	// underlying row as needed.
	GetSnapshot(ctx context.Context, user *domain.User) (*domain.QuotaSnapshot, error)

	// ConsumeCreations spends creation allowance. Returns nil on success, a
	// payment-required error when the combined pools are insufficient, or an
	// internal error when the store cannot be reached.
	ConsumeCreations(ctx context.Context, user *domain.User, amount int) error

	// ConsumeSaveSlots spends save slots, same contract as ConsumeCreations.
	ConsumeSaveSlots(ctx context.Context, user *domain.User, amount int) error
}

type quotaService struct {
	quotas repository.QuotaRepository
	logger *slog.Logger
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(quotas repository.QuotaRepository, logger *slog.Logger) QuotaService {
	return &quotaService{quotas: quotas, logger: logger}
}

func (s *quotaService) GetSnapshot(ctx context.Context, user *domain.User) (*domain.QuotaSnapshot, error) {
	const op = "quota.snapshot"

	q, err := s.quotas.GetOrInit(ctx, user.ID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load quota")
	}
	return &domain.QuotaSnapshot{
		SaveSlotsRemaining:      q.SaveSlotsRemaining,
		CreationsRemainingToday: q.CreationsRemainingToday,
		BonusCreationsRemaining: q.BonusCreationsRemaining,
		LastCreationReset:       q.LastCreationReset,
		IsPro:                   user.IsPro(),
	}, nil
}

func (s *quotaService) ConsumeCreations(ctx context.Context, user *domain.User, amount int) error {
	const op = "quota.consume_creations"

	// Unlimited plan: succeed without touching counters.
	if user.IsPro() {
		return nil
	}

	ok, err := s.quotas.SpendCreations(ctx, user.ID, amount)
	if err != nil {
		return domain.Internal(err, op, "failed to spend creation quota")
	}
	if !ok {
		s.logger.Info("creation quota exceeded", "user_id", user.ID, "amount", amount)
		return domain.QuotaExceeded(op, domain.ReasonCreationQuotaExceeded,
			"You are out of creations for today. Buy a credit pack or come back tomorrow.")
	}
	return nil
}

func (s *quotaService) ConsumeSaveSlots(ctx context.Context, user *domain.User, amount int) error {
	const op = "quota.consume_save_slots"

	if user.IsPro() {
		return nil
	}

	ok, err := s.quotas.SpendSaveSlots(ctx, user.ID, amount)
	if err != nil {
		return domain.Internal(err, op, "failed to spend save slots")
	}
	if !ok {
		s.logger.Info("save slot quota exceeded", "user_id", user.ID, "amount", amount)
		return domain.QuotaExceeded(op, domain.ReasonQuotaExceeded,
			"You are out of save slots. Buy a credit pack to save more listings.")
	}
	return nil
}
