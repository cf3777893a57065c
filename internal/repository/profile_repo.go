package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ferrostad/snaplist/internal/domain"
)

// ErrProfileNotFound is returned when no profile matches the lookup.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository stores locally maintained user attributes. The profile
// row is lazily created on first authenticated request; the plan attribute is
// the source of truth for pro-plan quota bypass.
type ProfileRepository interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID, email string) (*domain.User, error)
	SetPlan(ctx context.Context, userID uuid.UUID, plan domain.Plan) error
	SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error
	GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error)
}

type profileRepo struct {
	pool *pgxpool.Pool
}

// NewProfileRepo creates a new ProfileRepository.
func NewProfileRepo(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepo{pool: pool}
}

func (r *profileRepo) GetOrCreate(ctx context.Context, userID uuid.UUID, email string) (*domain.User, error) {
	const q = `
		INSERT INTO profiles (user_id, email)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE profiles.email END,
		    updated_at = NOW()
		RETURNING user_id, email, plan, COALESCE(stripe_customer_id, ''), created_at, updated_at
	`
	var u domain.User
	err := r.pool.QueryRow(ctx, q, userID, email).Scan(
		&u.ID,
		&u.Email,
		&u.Plan,
		&u.StripeCustomerID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting profile for user %s: %w", userID, err)
	}
	return &u, nil
}

func (r *profileRepo) SetPlan(ctx context.Context, userID uuid.UUID, plan domain.Plan) error {
	const q = `UPDATE profiles SET plan = $2, updated_at = NOW() WHERE user_id = $1`
	tag, err := r.pool.Exec(ctx, q, userID, plan)
	if err != nil {
		return fmt.Errorf("setting plan for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (r *profileRepo) SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	const q = `UPDATE profiles SET stripe_customer_id = $2, updated_at = NOW() WHERE user_id = $1`
	tag, err := r.pool.Exec(ctx, q, userID, customerID)
	if err != nil {
		return fmt.Errorf("setting stripe customer for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (r *profileRepo) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	const q = `
		SELECT user_id, email, plan, COALESCE(stripe_customer_id, ''), created_at, updated_at
		FROM profiles
		WHERE stripe_customer_id = $1
	`
	var u domain.User
	err := r.pool.QueryRow(ctx, q, customerID).Scan(
		&u.ID,
		&u.Email,
		&u.Plan,
		&u.StripeCustomerID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching profile by stripe customer %s: %w", customerID, err)
	}
	return &u, nil
}
