package domain

import (
	"time"

	"github.com/google/uuid"
)

// ListingCondition values accepted from the vision model and from clients.
const (
	ConditionNew      = "new"
	ConditionLikeNew  = "like_new"
	ConditionGood     = "good"
	ConditionFair     = "fair"
	ConditionForParts = "for_parts"
)

// ListingDraft is the structured result of analyzing an item photo.
// Title, Description and Condition are required; price and location are
// optional hints the seller can edit before saving.
type ListingDraft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Condition   string `json:"condition"`
	PriceCents  *int   `json:"price_cents,omitempty"`
	Location    string `json:"location,omitempty"`
}

// Valid reports whether the draft carries the required fields.
func (d *ListingDraft) Valid() bool {
	return d != nil && d.Title != "" && d.Description != "" && d.Condition != ""
}

// Listing is a saved marketplace listing owned by a user. Saving one consumes
// a save slot; ownership is enforced at the row level on every access.
type Listing struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Condition     string    `json:"condition"`
	PriceCents    *int      `json:"price_cents,omitempty"`
	Location      string    `json:"location,omitempty"`
	ImagePath     string    `json:"image_path,omitempty"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
