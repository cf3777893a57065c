package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ferrostad/snaplist/internal/domain"
)

// ErrPackNotFound is returned for unknown or inactive SKUs.
var ErrPackNotFound = errors.New("pack not found")

// PackRepository reads the credit pack catalog.
type PackRepository interface {
	// GetActiveBySKU returns the pack for sku. Inactive packs are treated as
	// unknown so retired offers can never be granted.
	GetActiveBySKU(ctx context.Context, sku string) (*domain.Pack, error)
	ListActive(ctx context.Context) ([]domain.Pack, error)
}

type packRepo struct {
	pool *pgxpool.Pool
}

// NewPackRepo creates a new PackRepository.
func NewPackRepo(pool *pgxpool.Pool) PackRepository {
	return &packRepo{pool: pool}
}

func (r *packRepo) GetActiveBySKU(ctx context.Context, sku string) (*domain.Pack, error) {
	const q = `
		SELECT sku, display_name, adds_creations, adds_saves, price_cents, COALESCE(stripe_price_id, ''), active, created_at
		FROM packs
		WHERE sku = $1 AND active
	`
	var p domain.Pack
	err := r.pool.QueryRow(ctx, q, sku).Scan(
		&p.SKU,
		&p.DisplayName,
		&p.AddsCreations,
		&p.AddsSaves,
		&p.PriceCents,
		&p.StripePriceID,
		&p.Active,
		&p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching pack %s: %w", sku, err)
	}
	return &p, nil
}

func (r *packRepo) ListActive(ctx context.Context) ([]domain.Pack, error) {
	const q = `
		SELECT sku, display_name, adds_creations, adds_saves, price_cents, COALESCE(stripe_price_id, ''), active, created_at
		FROM packs
		WHERE active
		ORDER BY price_cents
	`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing packs: %w", err)
	}
	defer rows.Close()

	var packs []domain.Pack
	for rows.Next() {
		var p domain.Pack
		if err := rows.Scan(&p.SKU, &p.DisplayName, &p.AddsCreations, &p.AddsSaves, &p.PriceCents, &p.StripePriceID, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning pack: %w", err)
		}
		packs = append(packs, p)
	}
	return packs, rows.Err()
}
