package domain

import (
	"time"

	"github.com/google/uuid"
)

// Plan is the billing plan recorded on a profile.
// The plan comes from the auth/billing side; the quota ledger never stores it.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// User is the authenticated identity attached to a request.
// Identity verification is delegated to the external auth provider; this type
// carries the verified subject plus the locally maintained profile attributes.
type User struct {
	ID               uuid.UUID
	Email            string
	Plan             Plan
	StripeCustomerID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsPro reports whether the user's plan bypasses quota counters entirely.
func (u *User) IsPro() bool {
	return u != nil && u.Plan == PlanPro
}
