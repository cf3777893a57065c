package domain

import "time"

// Pack is a purchasable credit bundle. The catalog is seeded at deploy time
// and read-mostly; retiring an offer flips Active instead of deleting the row
// so historical purchases keep their foreign key.
type Pack struct {
	SKU           string    `json:"sku"`
	DisplayName   string    `json:"display_name"`
	AddsCreations int       `json:"adds_creations"`
	AddsSaves     int       `json:"adds_saves"`
	PriceCents    int       `json:"price_cents"`
	StripePriceID string    `json:"-"`
	Active        bool      `json:"-"`
	CreatedAt     time.Time `json:"-"`
}

// Seeded pack SKUs. These match the rows inserted by the initial migration.
const (
	PackSKUCredits10 = "credits_10"
	PackSKUCredits25 = "credits_25"
	PackSKUCredits60 = "credits_60"
)

// RecoverPackForAmount maps a raw payment amount to the pack most likely
// purchased. This is the best-effort recovery path for historical payments
// recorded without structured metadata: the buckets are coarse and track the
// seeded price points. Callers must prefer structured metadata
// whenever the payment event carries it, and must flag any grant produced
// through this path.
func RecoverPackForAmount(amountCents int) (sku string, ok bool) {
	switch {
	case amountCents <= 0:
		return "", false
	case amountCents <= 499:
		return PackSKUCredits10, true
	case amountCents <= 999:
		return PackSKUCredits25, true
	default:
		return PackSKUCredits60, true
	}
}
