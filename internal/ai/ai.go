// Package ai defines the vision provider interface for listing generation.
//
// Implementations:
//   - anthropic: Claude vision over the Messages API
//   - mock: deterministic drafts for development and tests
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ferrostad/snaplist/internal/domain"
)

// Provider generates a listing draft from an item photo.
type Provider interface {
	// GenerateListing analyzes the photo and returns a structured draft.
	// A response that cannot be parsed into a valid draft is a terminal
	// failure for the request, not a retryable event.
	GenerateListing(ctx context.Context, params GenerateParams) (*Result, error)
}

// GenerateParams contains the photo and optional seller hints.
type GenerateParams struct {
	ImageData   []byte // raw image bytes
	ContentType string // MIME type, e.g. "image/jpeg"
	Hint        string // optional free-text context from the seller
}

// Result is a generated draft plus usage accounting.
type Result struct {
	Draft domain.ListingDraft
	Usage UsageInfo
}

// UsageInfo tracks provider usage for monitoring.
type UsageInfo struct {
	Model        string
	InputTokens  int
	OutputTokens int
	CostCents    int
	Duration     time.Duration
}

// ProviderConfig holds retry/timeout settings shared by implementations.
type ProviderConfig struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	RequestTimeout time.Duration
}

// Sentinel errors for provider failures.
var (
	ErrInvalidImage = errors.New("invalid or unsupported image")
	ErrUnauthorized = errors.New("provider rejected credentials")
	ErrRateLimited  = errors.New("provider rate limit hit")
	ErrUnavailable  = errors.New("provider unavailable")
	ErrBadResponse  = errors.New("provider response missing required fields")
)

// IsRetryable reports whether the error is transient and worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

// WrapError adds operation context to a provider error.
func WrapError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
