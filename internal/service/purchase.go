package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ferrostad/snaplist/internal/billing"
	"github.com/ferrostad/snaplist/internal/domain"
	"github.com/ferrostad/snaplist/internal/repository"
)

// CheckoutResult is returned by CreateCheckout. When the idempotency key was
// already settled, AlreadyCompleted is true and URL is empty: the client
// gets its prior outcome instead of a second checkout session.
type CheckoutResult struct {
	URL              string              `json:"url,omitempty"`
	AlreadyCompleted bool                `json:"already_completed,omitempty"`
	Grant            *domain.GrantResult `json:"grant,omitempty"`
}

// PurchaseService reconciles payments into the quota ledger. It is the sole
// mutation path that grants pack benefits.
type PurchaseService interface {
	// ApplyPackCredits idempotently applies a completed payment. Calling it
	// again with the same idempotency key reports success with a zero grant.
	ApplyPackCredits(ctx context.Context, userID uuid.UUID, sku, idempotencyKey string, amountCents int, sessionID string, metadata map[string]string) (*domain.GrantResult, error)

	// CheckIdempotency returns the purchase recorded under key, or nil when
	// none exists. Used by checkout initiation to short-circuit retries.
	CheckIdempotency(ctx context.Context, key string) (*domain.Purchase, error)

	// CreateCheckout records a pending purchase and creates the external
	// checkout session for it.
	CreateCheckout(ctx context.Context, user *domain.User, sku, idempotencyKey, successURL, cancelURL string) (*CheckoutResult, error)

	// RecoverGrant is the degraded repair path for payments recorded without
	// structured metadata: it infers the pack from the raw amount. Every use
	// is logged and flagged in the purchase metadata.
	RecoverGrant(ctx context.Context, userID uuid.UUID, amountCents int, sessionID string) (*domain.GrantResult, error)
}

type purchaseService struct {
	purchases repository.PurchaseRepository
	packs     repository.PackRepository
	profiles  repository.ProfileRepository
	billing   billing.Service
	logger    *slog.Logger
}

// NewPurchaseService creates a new PurchaseService. billingService may be nil
// when Stripe is not configured; checkout creation then fails cleanly while
// reconciliation still works.
func NewPurchaseService(
	purchases repository.PurchaseRepository,
	packs repository.PackRepository,
	profiles repository.ProfileRepository,
	billingService billing.Service,
	logger *slog.Logger,
) PurchaseService {
	return &purchaseService{
		purchases: purchases,
		packs:     packs,
		profiles:  profiles,
		billing:   billingService,
		logger:    logger,
	}
}

func (s *purchaseService) ApplyPackCredits(ctx context.Context, userID uuid.UUID, sku, idempotencyKey string, amountCents int, sessionID string, metadata map[string]string) (*domain.GrantResult, error) {
	const op = "purchase.apply_pack_credits"

	pack, err := s.packs.GetActiveBySKU(ctx, sku)
	if errors.Is(err, repository.ErrPackNotFound) {
		return nil, domain.Invalid(op, fmt.Sprintf("unknown or inactive pack %q", sku))
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load pack")
	}

	result, err := s.purchases.CompleteWithGrant(ctx, repository.CompleteGrantParams{
		UserID:          userID,
		SKU:             pack.SKU,
		IdempotencyKey:  idempotencyKey,
		AmountCents:     amountCents,
		StripeSessionID: sessionID,
		AddsCreations:   pack.AddsCreations,
		AddsSaves:       pack.AddsSaves,
		Metadata:        metadata,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to apply pack credits")
	}

	if result.AlreadyApplied {
		s.logger.Info("duplicate purchase delivery ignored",
			"user_id", userID, "sku", sku, "idempotency_key", idempotencyKey)
	} else {
		s.logger.Info("pack credits applied",
			"user_id", userID, "sku", sku,
			"creations_added", result.CreationsAdded, "saves_added", result.SavesAdded)
	}
	return result, nil
}

func (s *purchaseService) CheckIdempotency(ctx context.Context, key string) (*domain.Purchase, error) {
	const op = "purchase.check_idempotency"

	p, err := s.purchases.GetByIdempotencyKey(ctx, key)
	if errors.Is(err, repository.ErrPurchaseNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to look up purchase")
	}
	return p, nil
}

func (s *purchaseService) CreateCheckout(ctx context.Context, user *domain.User, sku, idempotencyKey, successURL, cancelURL string) (*CheckoutResult, error) {
	const op = "purchase.create_checkout"

	if s.billing == nil {
		return nil, domain.Errorf(domain.EINTERNAL, op, "billing is not configured")
	}

	pack, err := s.packs.GetActiveBySKU(ctx, sku)
	if errors.Is(err, repository.ErrPackNotFound) {
		return nil, domain.Invalid(op, fmt.Sprintf("unknown or inactive pack %q", sku))
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load pack")
	}

	// A retried client request gets its prior outcome, not a second session.
	prior, err := s.CheckIdempotency(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if prior != nil && prior.Completed() {
		return &CheckoutResult{
			AlreadyCompleted: true,
			Grant:            &domain.GrantResult{SKU: prior.SKU, AlreadyApplied: true},
		}, nil
	}

	purchaseID := uuid.New()
	if prior == nil {
		pending := &domain.Purchase{
			ID:             purchaseID,
			UserID:         user.ID,
			SKU:            pack.SKU,
			AmountCents:    pack.PriceCents,
			Status:         domain.PurchaseStatusPending,
			IdempotencyKey: idempotencyKey,
		}
		if err := s.purchases.CreatePending(ctx, pending); err != nil {
			return nil, domain.Internal(err, op, "failed to record pending purchase")
		}
	} else {
		purchaseID = prior.ID
	}

	customerID := user.StripeCustomerID
	if customerID == "" && user.Email != "" {
		if id, err := s.billing.CreateCustomer(user.Email); err != nil {
			s.logger.Warn("stripe customer creation failed, continuing with email",
				"user_id", user.ID, "error", err)
		} else {
			customerID = id
			if err := s.profiles.SetStripeCustomerID(ctx, user.ID, id); err != nil {
				s.logger.Warn("failed to store stripe customer id", "user_id", user.ID, "error", err)
			}
		}
	}

	sess, err := s.billing.CreatePackCheckoutSession(billing.CheckoutParams{
		CustomerID:     customerID,
		CustomerEmail:  user.Email,
		PriceID:        pack.StripePriceID,
		UserID:         user.ID.String(),
		PackSKU:        pack.SKU,
		IdempotencyKey: idempotencyKey,
		SuccessURL:     successURL,
		CancelURL:      cancelURL,
	})
	if err != nil {
		return nil, domain.Upstream(err, op, "payment provider rejected checkout creation")
	}

	if err := s.purchases.SetStripeSession(ctx, purchaseID, sess.ID); err != nil {
		// The session exists either way; the webhook carries the idempotency
		// key in metadata, so reconciliation does not depend on this link.
		s.logger.Warn("failed to attach session to purchase",
			"purchase_id", purchaseID, "session_id", sess.ID, "error", err)
	}

	return &CheckoutResult{URL: sess.URL}, nil
}

func (s *purchaseService) RecoverGrant(ctx context.Context, userID uuid.UUID, amountCents int, sessionID string) (*domain.GrantResult, error) {
	const op = "purchase.recover_grant"

	sku, ok := domain.RecoverPackForAmount(amountCents)
	if !ok {
		return nil, domain.Invalid(op, fmt.Sprintf("cannot infer a pack from amount %d", amountCents))
	}

	s.logger.Warn("recovering grant from payment amount; metadata was missing",
		"user_id", userID, "amount_cents", amountCents, "inferred_sku", sku, "session_id", sessionID)

	key := "recovered:" + sessionID
	return s.ApplyPackCredits(ctx, userID, sku, key, amountCents, sessionID, map[string]string{
		"recovered": "true",
	})
}
