package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ferrostad/snaplist/internal/domain"
)

// ErrPurchaseNotFound is returned when no purchase matches the lookup.
var ErrPurchaseNotFound = errors.New("purchase not found")

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// CompleteGrantParams carries everything needed to settle a purchase and
// apply its pack grants in one transaction.
type CompleteGrantParams struct {
	UserID          uuid.UUID
	SKU             string
	IdempotencyKey  string
	AmountCents     int
	StripeSessionID string
	AddsCreations   int
	AddsSaves       int
	Metadata        map[string]string
}

// PurchaseRepository is the payment ledger. CompleteWithGrant is the sole
// path that credits pack benefits to a quota row.
type PurchaseRepository interface {
	// GetByIdempotencyKey returns the purchase recorded under key, or
	// ErrPurchaseNotFound.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Purchase, error)

	// CreatePending records a checkout attempt before the external session is
	// created. Duplicate idempotency keys surface as a unique violation which
	// callers resolve by re-reading.
	CreatePending(ctx context.Context, p *domain.Purchase) error

	// SetStripeSession attaches the external session reference to a pending
	// purchase.
	SetStripeSession(ctx context.Context, id uuid.UUID, sessionID string) error

	// CompleteWithGrant applies the pack grant and marks the purchase
	// completed atomically. Safe under at-least-once webhook delivery: a key
	// that already reached completed returns AlreadyApplied with no further
	// side effects, and a concurrent duplicate is converted into
	// AlreadyApplied by the unique constraints on idempotency_key and
	// stripe_session_id.
	CompleteWithGrant(ctx context.Context, params CompleteGrantParams) (*domain.GrantResult, error)
}

type purchaseRepo struct {
	pool *pgxpool.Pool
}

// NewPurchaseRepo creates a new PurchaseRepository.
func NewPurchaseRepo(pool *pgxpool.Pool) PurchaseRepository {
	return &purchaseRepo{pool: pool}
}

const purchaseColumns = `id, user_id, sku, amount_cents, status, idempotency_key, COALESCE(stripe_session_id, ''), metadata, created_at, updated_at`

func scanPurchase(row pgx.Row) (*domain.Purchase, error) {
	var p domain.Purchase
	var rawMeta []byte
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.SKU,
		&p.AmountCents,
		&p.Status,
		&p.IdempotencyKey,
		&p.StripeSessionID,
		&rawMeta,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling purchase metadata: %w", err)
		}
	}
	return &p, nil
}

func (r *purchaseRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Purchase, error) {
	q := `SELECT ` + purchaseColumns + ` FROM purchases WHERE idempotency_key = $1`
	p, err := scanPurchase(r.pool.QueryRow(ctx, q, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching purchase by idempotency key: %w", err)
	}
	return p, nil
}

func (r *purchaseRepo) CreatePending(ctx context.Context, p *domain.Purchase) error {
	meta, err := json.Marshal(orEmpty(p.Metadata))
	if err != nil {
		return fmt.Errorf("marshaling purchase metadata: %w", err)
	}
	const q = `
		INSERT INTO purchases (id, user_id, sku, amount_cents, status, idempotency_key, stripe_session_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	`
	_, err = r.pool.Exec(ctx, q, p.ID, p.UserID, p.SKU, p.AmountCents, p.Status, p.IdempotencyKey, p.StripeSessionID, meta)
	if err != nil {
		return fmt.Errorf("creating pending purchase: %w", err)
	}
	return nil
}

func (r *purchaseRepo) SetStripeSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	const q = `UPDATE purchases SET stripe_session_id = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, sessionID)
	if err != nil {
		return fmt.Errorf("attaching session to purchase %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}

func (r *purchaseRepo) CompleteWithGrant(ctx context.Context, params CompleteGrantParams) (*domain.GrantResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting grant transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The idempotency check runs before any grant. This ordering is what
	// prevents duplicate webhook deliveries from double-crediting.
	lockQ := `SELECT ` + purchaseColumns + ` FROM purchases WHERE idempotency_key = $1 FOR UPDATE`
	existing, err := scanPurchase(tx.QueryRow(ctx, lockQ, params.IdempotencyKey))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("locking purchase by idempotency key: %w", err)
	}
	if existing != nil && existing.Completed() {
		return &domain.GrantResult{SKU: existing.SKU, AlreadyApplied: true}, nil
	}

	if _, err := lockQuota(ctx, tx, params.UserID, time.Now().UTC()); err != nil {
		return nil, err
	}

	const grantQ = `
		UPDATE user_quotas
		SET bonus_creations_remaining = bonus_creations_remaining + $2,
		    save_slots_remaining = save_slots_remaining + $3,
		    updated_at = NOW()
		WHERE user_id = $1
	`
	if _, err := tx.Exec(ctx, grantQ, params.UserID, params.AddsCreations, params.AddsSaves); err != nil {
		return nil, fmt.Errorf("applying pack grant for user %s: %w", params.UserID, err)
	}

	meta, err := json.Marshal(orEmpty(params.Metadata))
	if err != nil {
		return nil, fmt.Errorf("marshaling grant metadata: %w", err)
	}

	if existing != nil {
		const settleQ = `
			UPDATE purchases
			SET status = $2, amount_cents = $3, stripe_session_id = COALESCE(NULLIF($4, ''), stripe_session_id),
			    metadata = metadata || $5, updated_at = NOW()
			WHERE idempotency_key = $1
		`
		if _, err := tx.Exec(ctx, settleQ, params.IdempotencyKey, domain.PurchaseStatusCompleted, params.AmountCents, params.StripeSessionID, meta); err != nil {
			// The session reference is unique across the ledger. Hitting the
			// constraint here means another row already settled this session,
			// so the grant was applied there.
			if isUniqueViolation(err) {
				return &domain.GrantResult{SKU: params.SKU, AlreadyApplied: true}, nil
			}
			return nil, fmt.Errorf("settling purchase: %w", err)
		}
	} else {
		const insertQ = `
			INSERT INTO purchases (id, user_id, sku, amount_cents, status, idempotency_key, stripe_session_id, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		`
		_, err := tx.Exec(ctx, insertQ, uuid.New(), params.UserID, params.SKU, params.AmountCents,
			domain.PurchaseStatusCompleted, params.IdempotencyKey, params.StripeSessionID, meta)
		if err != nil {
			// Another row already holds this idempotency key or session
			// reference. Rolling back discards our grant; the earlier grant
			// stands.
			if isUniqueViolation(err) {
				return &domain.GrantResult{SKU: params.SKU, AlreadyApplied: true}, nil
			}
			return nil, fmt.Errorf("recording completed purchase: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing grant: %w", err)
	}
	return &domain.GrantResult{
		SKU:            params.SKU,
		CreationsAdded: params.AddsCreations,
		SavesAdded:     params.AddsSaves,
	}, nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
