package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

func tsPtr(value string) *time.Time {
	t := ts(value)
	return &t
}

func buildTierSet() []SaleTier {
	return []SaleTier{
		{
			ID:              1,
			TotalAllocation: MustAmount("1000"),
			Sold:            MustAmount("0"),
			StartsAt:        tsPtr("2026-01-01T00:00:00Z"),
			EndsAt:          tsPtr("2026-02-01T00:00:00Z"),
		},
		{
			ID:              2,
			TotalAllocation: MustAmount("2000"),
			Sold:            MustAmount("0"),
			StartsAt:        tsPtr("2026-02-01T00:00:00Z"),
			EndsAt:          tsPtr("2026-03-01T00:00:00Z"),
		},
		{
			ID:              3,
			TotalAllocation: MustAmount("3000"),
			Sold:            MustAmount("0"),
			// Activates once tiers 1 and 2 have finished.
			StartsAt: nil,
			EndsAt:   nil,
		},
	}
}

func TestActiveTier(t *testing.T) {
	t.Run("no tier before the first window opens", func(t *testing.T) {
		assert.Nil(t, ActiveTier(buildTierSet(), ts("2025-12-31T23:59:59Z")))
	})

	t.Run("selects the tier whose window contains now", func(t *testing.T) {
		active := ActiveTier(buildTierSet(), ts("2026-01-15T00:00:00Z"))
		require.NotNil(t, active)
		assert.Equal(t, int64(1), active.ID)

		active = ActiveTier(buildTierSet(), ts("2026-02-15T00:00:00Z"))
		require.NotNil(t, active)
		assert.Equal(t, int64(2), active.ID)
	})

	t.Run("window end is exclusive", func(t *testing.T) {
		active := ActiveTier(buildTierSet(), ts("2026-02-01T00:00:00Z"))
		require.NotNil(t, active)
		assert.Equal(t, int64(2), active.ID)
	})

	t.Run("exhausted tier advances eligibility within its window", func(t *testing.T) {
		tiers := buildTierSet()
		tiers[0].Sold = MustAmount("1000")
		// Tier 1 is exhausted but tier 2's window has not opened yet.
		assert.Nil(t, ActiveTier(tiers, ts("2026-01-15T00:00:00Z")))
	})

	t.Run("start-less tier waits for predecessors to finish", func(t *testing.T) {
		tiers := buildTierSet()
		// Tiers 1 and 2 ended by window; tier 3 has no fixed start.
		active := ActiveTier(tiers, ts("2026-03-01T00:00:00Z"))
		require.NotNil(t, active)
		assert.Equal(t, int64(3), active.ID)
	})

	t.Run("start-less tier activates on predecessor exhaustion", func(t *testing.T) {
		tiers := buildTierSet()
		tiers[0].Sold = MustAmount("1000")
		tiers[1].Sold = MustAmount("2000")
		active := ActiveTier(tiers, ts("2026-02-15T00:00:00Z"))
		require.NotNil(t, active)
		assert.Equal(t, int64(3), active.ID)
	})

	t.Run("overlapping windows pick the lowest id", func(t *testing.T) {
		tiers := buildTierSet()
		// Misconfigured: tier 2 opens while tier 1 is still open.
		tiers[1].StartsAt = tsPtr("2026-01-10T00:00:00Z")
		active := ActiveTier(tiers, ts("2026-01-15T00:00:00Z"))
		require.NotNil(t, active)
		assert.Equal(t, int64(1), active.ID)
	})

	t.Run("all exhausted yields no active tier", func(t *testing.T) {
		tiers := buildTierSet()
		tiers[0].Sold = MustAmount("1000")
		tiers[1].Sold = MustAmount("2000")
		tiers[2].Sold = MustAmount("3000")
		assert.Nil(t, ActiveTier(tiers, ts("2026-02-15T00:00:00Z")))
	})
}

func TestSaleTierCounters(t *testing.T) {
	tier := SaleTier{TotalAllocation: MustAmount("1000"), Sold: MustAmount("400")}
	assert.False(t, tier.Exhausted())
	assert.Equal(t, "600", tier.Remaining().String())

	tier.Sold = MustAmount("1000")
	assert.True(t, tier.Exhausted())
	assert.True(t, tier.Remaining().IsZero())
}

func TestTierIndex(t *testing.T) {
	index := TierIndex(buildTierSet())
	require.Len(t, index, 3)
	assert.Equal(t, "2000", index[2].TotalAllocation.String())
}
