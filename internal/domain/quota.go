// Package domain contains core business types and pure logic for the
// snaplist backend.
//
// This file defines the freemium quota ledger types. The arithmetic that the
// store-level operations must agree on (daily reset eligibility, free-before-
// bonus spend precedence) lives here as pure functions so it can be tested
// without a database and reused by every writer.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Default allowances granted when a quota row is first created, and the value
// creations_remaining_today returns to on each daily reset.
const (
	DefaultSaveSlots      = 10
	DefaultDailyCreations = 10
)

// UserQuota is the per-user ledger row. All counters are non-negative;
// the store enforces this with CHECK constraints as a backstop.
type UserQuota struct {
	UserID                  uuid.UUID
	SaveSlotsRemaining      int
	CreationsRemainingToday int
	BonusCreationsRemaining int
	LastCreationReset       time.Time
	UpdatedAt               time.Time
}

// CreationsRemaining is the total spendable creation allowance.
func (q *UserQuota) CreationsRemaining() int {
	return q.CreationsRemainingToday + q.BonusCreationsRemaining
}

// QuotaSnapshot is what the quota engine returns to callers. IsPro is derived
// from the profile's plan, never stored on the quota row.
type QuotaSnapshot struct {
	SaveSlotsRemaining      int       `json:"save_slots_remaining"`
	CreationsRemainingToday int       `json:"creations_remaining_today"`
	BonusCreationsRemaining int       `json:"bonus_creations_remaining"`
	LastCreationReset       time.Time `json:"last_creation_reset"`
	IsPro                   bool      `json:"is_pro"`
}

// AllowanceUsage is the {used, limit, remaining} block surfaced over HTTP.
type AllowanceUsage struct {
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	Unlimited bool `json:"unlimited,omitempty"`
}

// CreationUsage computes the creation allowance block for a snapshot.
// The limit counts the daily default plus purchased bonus credits.
func (s QuotaSnapshot) CreationUsage() AllowanceUsage {
	if s.IsPro {
		return AllowanceUsage{Unlimited: true}
	}
	limit := DefaultDailyCreations + s.BonusCreationsRemaining
	remaining := s.CreationsRemainingToday + s.BonusCreationsRemaining
	return AllowanceUsage{
		Used:      limit - remaining,
		Limit:     limit,
		Remaining: remaining,
	}
}

// SaveUsage computes the save-slot allowance block for a snapshot.
func (s QuotaSnapshot) SaveUsage() AllowanceUsage {
	if s.IsPro {
		return AllowanceUsage{Unlimited: true}
	}
	limit := s.SaveSlotsRemaining
	if limit < DefaultSaveSlots {
		limit = DefaultSaveSlots
	}
	return AllowanceUsage{
		Used:      limit - s.SaveSlotsRemaining,
		Limit:     limit,
		Remaining: s.SaveSlotsRemaining,
	}
}

// ShouldResetDaily reports whether the daily creation allowance must be
// recomputed before use: true when lastReset falls on an earlier UTC calendar
// date than now. Every quota read calls this, so the daily rollover is
// self-healing and no scheduler has to fire at midnight.
func ShouldResetDaily(lastReset, now time.Time) bool {
	lr := lastReset.UTC()
	n := now.UTC()
	ly, lm, ld := lr.Date()
	ny, nm, nd := n.Date()
	if ly != ny {
		return ly < ny
	}
	if lm != nm {
		return lm < nm
	}
	return ld < nd
}

// SplitCreationSpend applies a creation spend of amount against the daily and
// bonus pools with free-before-bonus precedence: the daily allowance is
// consumed first, spilling into bonus credits only once it is exhausted.
// Returns the post-spend pools and false (no change) when the combined pools
// cannot cover the amount.
func SplitCreationSpend(daily, bonus, amount int) (newDaily, newBonus int, ok bool) {
	if amount <= 0 || daily+bonus < amount {
		return daily, bonus, false
	}
	fromDaily := amount
	if fromDaily > daily {
		fromDaily = daily
	}
	return daily - fromDaily, bonus - (amount - fromDaily), true
}
