package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ferrostad/snaplist/internal/domain"
	"github.com/ferrostad/snaplist/internal/repository"
)

// ListingService handles saved listings. Saving consumes a save slot through
// the quota engine; all reads and writes are ownership-scoped.
type ListingService interface {
	// Save persists a listing for the user, consuming one save slot first.
	Save(ctx context.Context, user *domain.User, l *domain.Listing) error
	Get(ctx context.Context, user *domain.User, id uuid.UUID) (*domain.Listing, error)
	List(ctx context.Context, user *domain.User) ([]domain.Listing, error)
	Update(ctx context.Context, user *domain.User, l *domain.Listing) error
	Delete(ctx context.Context, user *domain.User, id uuid.UUID) error
}

type listingService struct {
	listings repository.ListingRepository
	quota    QuotaService
	logger   *slog.Logger
}

// NewListingService creates a new ListingService.
func NewListingService(listings repository.ListingRepository, quota QuotaService, logger *slog.Logger) ListingService {
	return &listingService{listings: listings, quota: quota, logger: logger}
}

func (s *listingService) Save(ctx context.Context, user *domain.User, l *domain.Listing) error {
	const op = "listing.save"

	// The slot is consumed before the insert. Both writes are local, and the
	// insert cannot fail for business reasons, so there is no orphaned
	// decrement path to refund.
	if err := s.quota.ConsumeSaveSlots(ctx, user, 1); err != nil {
		return err
	}

	l.ID = uuid.New()
	l.UserID = user.ID
	if err := s.listings.Create(ctx, l); err != nil {
		return domain.Internal(err, op, "failed to save listing")
	}
	s.logger.Info("listing saved", "user_id", user.ID, "listing_id", l.ID)
	return nil
}

func (s *listingService) Get(ctx context.Context, user *domain.User, id uuid.UUID) (*domain.Listing, error) {
	const op = "listing.get"

	l, err := s.listings.GetByID(ctx, user.ID, id)
	if errors.Is(err, repository.ErrListingNotFound) {
		return nil, domain.NotFound(op, "listing", id.String())
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load listing")
	}
	return l, nil
}

func (s *listingService) List(ctx context.Context, user *domain.User) ([]domain.Listing, error) {
	const op = "listing.list"

	listings, err := s.listings.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list listings")
	}
	return listings, nil
}

func (s *listingService) Update(ctx context.Context, user *domain.User, l *domain.Listing) error {
	const op = "listing.update"

	l.UserID = user.ID
	err := s.listings.Update(ctx, l)
	if errors.Is(err, repository.ErrListingNotFound) {
		return domain.NotFound(op, "listing", l.ID.String())
	}
	if err != nil {
		return domain.Internal(err, op, "failed to update listing")
	}
	return nil
}

func (s *listingService) Delete(ctx context.Context, user *domain.User, id uuid.UUID) error {
	const op = "listing.delete"

	err := s.listings.Delete(ctx, user.ID, id)
	if errors.Is(err, repository.ErrListingNotFound) {
		return domain.NotFound(op, "listing", id.String())
	}
	if err != nil {
		return domain.Internal(err, op, "failed to delete listing")
	}
	return nil
}
