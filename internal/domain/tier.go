package domain

import (
	"time"
)

// SaleTier is one priced, capped phase of the token sale. Tiers are
// configured once at seed time and never mutated afterwards, except for the
// Sold counter which is owned exclusively by the allocation ledger.
type SaleTier struct {
	// ID orders tiers; ids are 1-based and strictly increasing.
	ID int64
	// Price is the payment amount per whole token, in smallest payment units.
	Price Amount
	// TotalAllocation is the maximum number of token base units this tier may sell.
	TotalAllocation Amount
	// Sold is the sum of all admitted purchase amounts for this tier.
	Sold Amount
	// MinPurchase is the minimum amount for a single purchase.
	MinPurchase Amount
	// MaxPurchase caps both a single purchase and a buyer's running total
	// within the tier.
	MaxPurchase Amount
	// TGEPercent is the share of a purchase (0-100) unlocked immediately.
	TGEPercent int
	// VestingMonths is the linear vesting duration for the non-TGE remainder.
	// Zero means the full amount unlocks with the TGE portion.
	VestingMonths int
	// StartsAt opens the activity window. Nil means the tier activates when
	// every preceding tier has finished (exhausted or window closed).
	StartsAt *time.Time
	// EndsAt closes the activity window (exclusive). Nil means no fixed end.
	EndsAt *time.Time
}

// Exhausted reports whether the tier has sold out its allocation.
func (t *SaleTier) Exhausted() bool {
	return t.Sold.Cmp(t.TotalAllocation) >= 0
}

// Remaining returns the unsold part of the tier's allocation.
func (t *SaleTier) Remaining() Amount {
	return t.TotalAllocation.Sub(t.Sold)
}

// windowOpen reports whether the tier's own window admits now, ignoring the
// predecessor-exhaustion rule. A nil StartsAt never opens on its own.
func (t *SaleTier) windowOpen(now time.Time) bool {
	if t.EndsAt != nil && !now.Before(*t.EndsAt) {
		return false
	}
	if t.StartsAt == nil {
		return false
	}
	return !now.Before(*t.StartsAt)
}

// finished reports whether the tier can no longer sell: either its
// allocation is exhausted or its window has ended.
func (t *SaleTier) finished(now time.Time) bool {
	if t.Exhausted() {
		return true
	}
	return t.EndsAt != nil && !now.Before(*t.EndsAt)
}

// ActiveTier selects the currently active tier from tiers sorted by
// ascending id: the lowest-id tier that still has allocation left and whose
// window contains now. A tier without a fixed start activates once every
// preceding tier has finished. Returns nil when no tier is eligible, which
// is a valid state (between tiers, or fully sold out), not an error.
//
// The rule deliberately does not assume windows are disjoint: picking the
// lowest eligible id keeps selection deterministic under misconfiguration.
func ActiveTier(tiers []SaleTier, now time.Time) *SaleTier {
	predecessorsFinished := true

	for i := range tiers {
		t := &tiers[i]

		if !t.Exhausted() {
			open := t.windowOpen(now)
			if t.StartsAt == nil {
				open = predecessorsFinished && (t.EndsAt == nil || now.Before(*t.EndsAt))
			}
			if open {
				return t
			}
		}

		predecessorsFinished = predecessorsFinished && t.finished(now)
	}

	return nil
}

// TierIndex builds an id lookup for a tier slice.
func TierIndex(tiers []SaleTier) map[int64]SaleTier {
	index := make(map[int64]SaleTier, len(tiers))
	for _, t := range tiers {
		index[t.ID] = t
	}
	return index
}
