// Package mock provides a deterministic ai.Provider for development and
// tests. No network calls, no API key.
package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/ferrostad/snaplist/internal/ai"
	"github.com/ferrostad/snaplist/internal/domain"
)

// Provider returns a canned listing draft.
type Provider struct {
	// Err, when set, is returned from every call. Lets tests exercise the
	// no-consumption-on-failure path.
	Err error
}

// New creates a new mock provider.
func New() *Provider {
	return &Provider{}
}

// GenerateListing returns a plausible draft derived from the image size so
// repeated calls in development are distinguishable.
func (p *Provider) GenerateListing(_ context.Context, params ai.GenerateParams) (*ai.Result, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	if len(params.ImageData) == 0 {
		return nil, ai.ErrInvalidImage
	}

	price := 2500 + len(params.ImageData)%10000
	return &ai.Result{
		Draft: domain.ListingDraft{
			Title:       fmt.Sprintf("Pre-owned item (photo %d bytes)", len(params.ImageData)),
			Description: "A well-kept item photographed for sale. Mock draft generated without calling a vision model.",
			Condition:   domain.ConditionGood,
			PriceCents:  &price,
		},
		Usage: ai.UsageInfo{
			Model:    "mock",
			Duration: time.Millisecond,
		},
	}, nil
}
