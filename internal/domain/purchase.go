package domain

import (
	"time"

	"github.com/google/uuid"
)

// PurchaseStatus tracks a payment attempt through its lifecycle.
// A purchase never regresses from completed.
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
	PurchaseStatusRefunded  PurchaseStatus = "refunded"
)

// Purchase is one row in the append-mostly payment ledger.
//
// IdempotencyKey is the dedup token for webhook at-least-once delivery: at
// most one purchase per key ever reaches completed, and a completed purchase
// corresponds to exactly one application of its pack's grants.
type Purchase struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	SKU             string
	AmountCents     int
	Status          PurchaseStatus
	IdempotencyKey  string
	StripeSessionID string // external checkout session reference, unique when set
	Metadata        map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Completed reports whether this purchase's grants have been applied.
func (p *Purchase) Completed() bool {
	return p.Status == PurchaseStatusCompleted
}

// GrantResult describes what a reconciliation applied to the quota ledger.
// AlreadyApplied is true when the idempotency key had been settled before,
// in which case both Adds fields are zero.
type GrantResult struct {
	SKU            string `json:"sku"`
	CreationsAdded int    `json:"creations_added"`
	SavesAdded     int    `json:"saves_added"`
	AlreadyApplied bool   `json:"already_applied"`
}
