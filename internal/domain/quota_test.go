package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldResetDaily(t *testing.T) {
	tests := []struct {
		name      string
		lastReset time.Time
		now       time.Time
		want      bool
	}{
		{
			"same day same instant",
			time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
			false,
		},
		{
			"same UTC day later hour",
			time.Date(2025, 3, 10, 0, 1, 0, 0, time.UTC),
			time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC),
			false,
		},
		{
			"next day one minute past midnight",
			time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC),
			time.Date(2025, 3, 11, 0, 1, 0, 0, time.UTC),
			true,
		},
		{
			"several days elapsed resets once",
			time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
			true,
		},
		{
			"month boundary",
			time.Date(2025, 2, 28, 23, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC),
			true,
		},
		{
			"year boundary",
			time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC),
			time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC),
			true,
		},
		{
			"non-UTC zone compares by UTC date",
			// 23:00 UTC on Mar 10 is already Mar 11 in UTC+2, but the
			// comparison must use UTC dates only.
			time.Date(2025, 3, 11, 1, 0, 0, 0, time.FixedZone("EET", 2*3600)),
			time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC),
			false,
		},
		{
			"clock skew backwards does not reset",
			time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldResetDaily(tt.lastReset, tt.now))
		})
	}
}

func TestSplitCreationSpend(t *testing.T) {
	tests := []struct {
		name      string
		daily     int
		bonus     int
		amount    int
		wantDaily int
		wantBonus int
		wantOK    bool
	}{
		{"spend from daily only", 10, 0, 1, 9, 0, true},
		{"daily covers it, bonus untouched", 5, 7, 3, 2, 7, true},
		{"spills into bonus", 3, 5, 5, 0, 3, true},
		{"exact combined balance", 2, 3, 5, 0, 0, true},
		{"daily empty spends bonus", 0, 4, 2, 0, 2, true},
		{"insufficient combined", 1, 1, 3, 1, 1, false},
		{"zero amount rejected", 5, 5, 0, 5, 5, false},
		{"negative amount rejected", 5, 5, -1, 5, 5, false},
		{"both empty", 0, 0, 1, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotDaily, gotBonus, ok := SplitCreationSpend(tt.daily, tt.bonus, tt.amount)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantDaily, gotDaily)
			assert.Equal(t, tt.wantBonus, gotBonus)
		})
	}
}

func TestQuotaSnapshot_CreationUsage(t *testing.T) {
	t.Run("free user with bonus", func(t *testing.T) {
		s := QuotaSnapshot{CreationsRemainingToday: 4, BonusCreationsRemaining: 6}
		usage := s.CreationUsage()
		assert.Equal(t, 16, usage.Limit)
		assert.Equal(t, 10, usage.Remaining)
		assert.Equal(t, 6, usage.Used)
		assert.False(t, usage.Unlimited)
	})

	t.Run("pro user is unlimited", func(t *testing.T) {
		s := QuotaSnapshot{CreationsRemainingToday: 0, BonusCreationsRemaining: 0, IsPro: true}
		usage := s.CreationUsage()
		assert.True(t, usage.Unlimited)
		assert.Zero(t, usage.Limit)
	})
}

func TestQuotaSnapshot_SaveUsage(t *testing.T) {
	t.Run("default pool", func(t *testing.T) {
		s := QuotaSnapshot{SaveSlotsRemaining: 7}
		usage := s.SaveUsage()
		assert.Equal(t, 10, usage.Limit)
		assert.Equal(t, 7, usage.Remaining)
		assert.Equal(t, 3, usage.Used)
	})

	t.Run("purchased slots raise the limit", func(t *testing.T) {
		s := QuotaSnapshot{SaveSlotsRemaining: 15}
		usage := s.SaveUsage()
		assert.Equal(t, 15, usage.Limit)
		assert.Equal(t, 15, usage.Remaining)
		assert.Zero(t, usage.Used)
	})
}
