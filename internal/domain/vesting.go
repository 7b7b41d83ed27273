package domain

import (
	"sort"
	"time"
)

// WholeMonthsBetween returns the largest n such that start plus n calendar
// months (per time.AddDate, including its month-end normalization) is not
// after end. Returns 0 when end is before start. Unlock instants everywhere
// are start.AddDate(0, m, 0), so this is the exact inverse of that schedule.
func WholeMonthsBetween(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}

	// Calendar difference can overshoot for month-end starts (Jan 31 plus one
	// month normalizes to Mar 3), so walk down until the instant fits.
	// AddDate is non-decreasing in the month count, so the first fit is the
	// largest.
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	for months > 0 && start.AddDate(0, months, 0).After(end) {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// UnlockedAmount computes how many base units of a purchase are unlocked at
// now. The TGE portion unlocks at the purchase timestamp; the remainder
// unlocks linearly over the tier's vesting months, measured in whole months
// from the purchase timestamp. Every division rounds down so the unlocked
// amount can never exceed the purchase amount.
//
// This function is pure: it is always recomputed from the durable purchase
// record, never cached as authoritative state.
func UnlockedAmount(p PurchaseRecord, tier SaleTier, now time.Time) Amount {
	if now.Before(p.Timestamp) {
		return NewAmount(0)
	}

	tge := p.Amount.PercentFloor(tier.TGEPercent)
	if tier.VestingMonths <= 0 {
		return p.Amount
	}

	remainder := p.Amount.Sub(tge)
	elapsed := WholeMonthsBetween(p.Timestamp, now)
	if elapsed >= tier.VestingMonths {
		return p.Amount
	}

	linear := remainder.MulDivFloor(int64(elapsed), int64(tier.VestingMonths))
	return tge.Add(linear)
}

// TotalUnlocked sums UnlockedAmount over every purchase of a buyer across
// all tiers. A purchase referencing an unknown tier is a consistency
// violation, not a recoverable condition.
func TotalUnlocked(purchases []PurchaseRecord, tiers map[int64]SaleTier, now time.Time) (Amount, error) {
	total := NewAmount(0)
	for _, p := range purchases {
		tier, ok := tiers[p.TierID]
		if !ok {
			return Amount{}, NewConsistencyError("purchase-tier-link",
				"purchase %s references unknown tier %d", p.UID, p.TierID)
		}
		total = total.Add(UnlockedAmount(p, tier, now))
	}
	return total, nil
}

// VestingMilestone is a derived projection point: at Date, CumulativeUnlocked
// base units of the buyer's purchases in TierID are unlocked. Milestones are
// never persisted; they are recomputed from purchase history on demand.
type VestingMilestone struct {
	TierID             int64     `json:"tier_id"`
	Date               time.Time `json:"date"`
	CumulativeUnlocked Amount    `json:"cumulative_unlocked"`
}

// Milestones projects the full unlock schedule of a buyer's purchases,
// grouped per tier and ordered by tier id then date.
func Milestones(purchases []PurchaseRecord, tiers map[int64]SaleTier) ([]VestingMilestone, error) {
	byTier := make(map[int64][]PurchaseRecord)
	for _, p := range purchases {
		if _, ok := tiers[p.TierID]; !ok {
			return nil, NewConsistencyError("purchase-tier-link",
				"purchase %s references unknown tier %d", p.UID, p.TierID)
		}
		byTier[p.TierID] = append(byTier[p.TierID], p)
	}

	tierIDs := make([]int64, 0, len(byTier))
	for id := range byTier {
		tierIDs = append(tierIDs, id)
	}
	sort.Slice(tierIDs, func(i, j int) bool { return tierIDs[i] < tierIDs[j] })

	var milestones []VestingMilestone
	for _, tierID := range tierIDs {
		tier := tiers[tierID]
		tierPurchases := byTier[tierID]

		dateSet := make(map[time.Time]struct{})
		for _, p := range tierPurchases {
			dateSet[p.Timestamp] = struct{}{}
			for m := 1; m <= tier.VestingMonths; m++ {
				dateSet[p.Timestamp.AddDate(0, m, 0)] = struct{}{}
			}
		}

		dates := make([]time.Time, 0, len(dateSet))
		for d := range dateSet {
			dates = append(dates, d)
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

		for _, d := range dates {
			cumulative := NewAmount(0)
			for _, p := range tierPurchases {
				cumulative = cumulative.Add(UnlockedAmount(p, tier, d))
			}
			milestones = append(milestones, VestingMilestone{
				TierID:             tierID,
				Date:               d,
				CumulativeUnlocked: cumulative,
			})
		}
	}

	return milestones, nil
}

// NextUnlockAt returns the earliest future instant at which more of the
// buyer's tokens unlock, or nil when everything has already unlocked.
func NextUnlockAt(purchases []PurchaseRecord, tiers map[int64]SaleTier, now time.Time) *time.Time {
	var next *time.Time
	consider := func(t time.Time) {
		if !t.After(now) {
			return
		}
		if next == nil || t.Before(*next) {
			next = &t
		}
	}

	for _, p := range purchases {
		tier, ok := tiers[p.TierID]
		if !ok {
			continue
		}

		if now.Before(p.Timestamp) {
			consider(p.Timestamp)
			continue
		}

		elapsed := WholeMonthsBetween(p.Timestamp, now)
		if elapsed < tier.VestingMonths {
			consider(p.Timestamp.AddDate(0, elapsed+1, 0))
		}
	}

	return next
}
