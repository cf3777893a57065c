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

// ErrListingNotFound covers both missing rows and rows owned by another user;
// callers cannot distinguish the two.
var ErrListingNotFound = errors.New("listing not found")

// ListingRepository stores saved listings. Every read and write is scoped to
// the owning user in the WHERE clause, so ownership is enforced at the row
// level rather than in handler code.
type ListingRepository interface {
	Create(ctx context.Context, l *domain.Listing) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*domain.Listing, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Listing, error)
	Update(ctx context.Context, l *domain.Listing) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type listingRepo struct {
	pool *pgxpool.Pool
}

// NewListingRepo creates a new ListingRepository.
func NewListingRepo(pool *pgxpool.Pool) ListingRepository {
	return &listingRepo{pool: pool}
}

const listingColumns = `id, user_id, title, description, condition, price_cents, COALESCE(location, ''), COALESCE(image_path, ''), COALESCE(thumbnail_path, ''), created_at, updated_at`

func scanListing(row pgx.Row) (*domain.Listing, error) {
	var l domain.Listing
	err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.Title,
		&l.Description,
		&l.Condition,
		&l.PriceCents,
		&l.Location,
		&l.ImagePath,
		&l.ThumbnailPath,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *listingRepo) Create(ctx context.Context, l *domain.Listing) error {
	const q = `
		INSERT INTO listings (id, user_id, title, description, condition, price_cents, location, image_path, thumbnail_path)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''))
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, q, l.ID, l.UserID, l.Title, l.Description, l.Condition, l.PriceCents, l.Location, l.ImagePath, l.ThumbnailPath).
		Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating listing: %w", err)
	}
	return nil
}

func (r *listingRepo) GetByID(ctx context.Context, userID, id uuid.UUID) (*domain.Listing, error) {
	q := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1 AND user_id = $2`
	l, err := scanListing(r.pool.QueryRow(ctx, q, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching listing %s: %w", id, err)
	}
	return l, nil
}

func (r *listingRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Listing, error) {
	q := `SELECT ` + listingColumns + ` FROM listings WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("listing listings for user %s: %w", userID, err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning listing: %w", err)
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (r *listingRepo) Update(ctx context.Context, l *domain.Listing) error {
	const q = `
		UPDATE listings
		SET title = $3, description = $4, condition = $5, price_cents = $6, location = NULLIF($7, ''), updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`
	tag, err := r.pool.Exec(ctx, q, l.ID, l.UserID, l.Title, l.Description, l.Condition, l.PriceCents, l.Location)
	if err != nil {
		return fmt.Errorf("updating listing %s: %w", l.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}

func (r *listingRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	const q = `DELETE FROM listings WHERE id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, q, id, userID)
	if err != nil {
		return fmt.Errorf("deleting listing %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}
