package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/tokenforge/presale-engine/internal/domain"
)

// StoreTestSuite provides the interface for running store tests against different implementations
type StoreTestSuite struct {
	Store Store
	// InitDB should be called before each test to initialize the database
	InitDB func(t *testing.T) Store
	// CleanupDB should be called after each test to clean up the database
	CleanupDB func(t *testing.T)
}

// =============================================================================
// Test Data Builders
// =============================================================================

const (
	buyerAlice = "0xaaaa567890123456789012345678901234567890"
	buyerBob   = "0xbbbb567890123456789012345678901234567890"
	buyerCarol = "0xcccc567890123456789012345678901234567890"
)

func amt(t *testing.T, s string) domain.Amount {
	t.Helper()
	a, err := domain.ParseAmount(s)
	require.NoError(t, err)
	return a
}

func storeTS(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func storeTSPtr(t *testing.T, s string) *time.Time {
	t.Helper()
	ts := storeTS(t, s)
	return &ts
}

// buildStoreTiers creates the standard tier set used by the store tests:
// tier 1 runs through January, tier 2 through February, tier 3 has no start
// and opens when its predecessors are finished.
func buildStoreTiers(t *testing.T) []domain.SaleTier {
	t.Helper()
	return []domain.SaleTier{
		{
			ID:              1,
			Price:           amt(t, "1000000"),
			TotalAllocation: amt(t, "1000"),
			Sold:            domain.NewAmount(0),
			MinPurchase:     amt(t, "10"),
			MaxPurchase:     amt(t, "600"),
			TGEPercent:      20,
			VestingMonths:   10,
			StartsAt:        storeTSPtr(t, "2026-01-01T00:00:00Z"),
			EndsAt:          storeTSPtr(t, "2026-02-01T00:00:00Z"),
		},
		{
			ID:              2,
			Price:           amt(t, "2000000"),
			TotalAllocation: amt(t, "500"),
			Sold:            domain.NewAmount(0),
			MinPurchase:     amt(t, "10"),
			MaxPurchase:     amt(t, "500"),
			TGEPercent:      10,
			VestingMonths:   6,
			StartsAt:        storeTSPtr(t, "2026-02-01T00:00:00Z"),
			EndsAt:          storeTSPtr(t, "2026-03-01T00:00:00Z"),
		},
		{
			ID:              3,
			Price:           amt(t, "3000000"),
			TotalAllocation: amt(t, "2000"),
			Sold:            domain.NewAmount(0),
			MinPurchase:     amt(t, "10"),
			MaxPurchase:     amt(t, "2000"),
			TGEPercent:      0,
			VestingMonths:   12,
			StartsAt:        nil,
			EndsAt:          nil,
		},
	}
}

func seedStoreTiers(t *testing.T, store Store) []domain.SaleTier {
	t.Helper()
	tiers := buildStoreTiers(t)
	require.NoError(t, store.SeedTiers(context.Background(), tiers))
	return tiers
}

func buildAdmitInput(t *testing.T, buyer string, tierID int64, amount string, now string) AdmitPurchaseInput {
	t.Helper()
	a := amt(t, amount)
	return AdmitPurchaseInput{
		Buyer:   buyer,
		TierID:  tierID,
		Amount:  a,
		Payment: a.MulDivFloor(1000000, 1),
		Raw:     datatypes.JSON([]byte(`{"source":"test"}`)),
		Now:     storeTS(t, now),
	}
}

// fixedUnlocked returns an UnlockedFunc that ignores the purchase history
// and reports a fixed unlocked total.
func fixedUnlocked(t *testing.T, total string) UnlockedFunc {
	t.Helper()
	return func(_ []domain.PurchaseRecord) (domain.Amount, error) {
		return domain.ParseAmount(total)
	}
}

// sumUnlocked returns an UnlockedFunc that treats every purchased amount as
// fully unlocked.
func sumUnlocked() UnlockedFunc {
	return func(purchases []domain.PurchaseRecord) (domain.Amount, error) {
		total := domain.NewAmount(0)
		for _, p := range purchases {
			total = total.Add(p.Amount)
		}
		return total, nil
	}
}

// =============================================================================
// Test: SeedTiers / ListTiers / GetTier
// =============================================================================

func testSeedTiers(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("seeds tiers and lists them in id order", func(t *testing.T) {
		seedStoreTiers(t, store)

		tiers, err := store.ListTiers(ctx)
		require.NoError(t, err)
		require.Len(t, tiers, 3)
		assert.Equal(t, int64(1), tiers[0].ID)
		assert.Equal(t, int64(2), tiers[1].ID)
		assert.Equal(t, int64(3), tiers[2].ID)
		assert.Equal(t, "1000", tiers[0].TotalAllocation.String())
		assert.Equal(t, "0", tiers[0].Sold.String())
		assert.Nil(t, tiers[2].StartsAt)
	})

	t.Run("re-seeding never modifies existing tiers", func(t *testing.T) {
		modified := buildStoreTiers(t)
		modified[0].TotalAllocation = amt(t, "999999")
		modified[0].TGEPercent = 50
		require.NoError(t, store.SeedTiers(ctx, modified))

		tier, err := store.GetTier(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, tier)
		assert.Equal(t, "1000", tier.TotalAllocation.String())
		assert.Equal(t, 20, tier.TGEPercent)
	})

	t.Run("returns nil for unknown tier", func(t *testing.T) {
		tier, err := store.GetTier(ctx, 42)
		require.NoError(t, err)
		assert.Nil(t, tier)
	})
}

// =============================================================================
// Test: AdmitPurchase
// =============================================================================

func testAdmitPurchase(t *testing.T, store Store) {
	ctx := context.Background()
	seedStoreTiers(t, store)

	t.Run("successful admission records purchase and advances counters", func(t *testing.T) {
		record, err := store.AdmitPurchase(ctx, buildAdmitInput(t, buyerAlice, 1, "100", "2026-01-10T12:00:00Z"))
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.NotEmpty(t, record.UID)
		assert.Equal(t, buyerAlice, record.Buyer)
		assert.Equal(t, int64(1), record.TierID)
		assert.Equal(t, 1, record.Seq)
		assert.Equal(t, "100", record.Amount.String())
		assert.Equal(t, "100000000", record.Payment.String())
		assert.Equal(t, storeTS(t, "2026-01-10T12:00:00Z"), record.Timestamp)

		tier, err := store.GetTier(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "100", tier.Sold.String())

		totals, err := store.ListBuyerTotalsByTier(ctx, 1)
		require.NoError(t, err)
		require.Len(t, totals, 1)
		assert.Equal(t, "100", totals[0].Bought.String())
	})

	t.Run("repeat purchases increment seq per buyer and tier", func(t *testing.T) {
		record, err := store.AdmitPurchase(ctx, buildAdmitInput(t, buyerAlice, 1, "50", "2026-01-11T00:00:00Z"))
		require.NoError(t, err)
		assert.Equal(t, 2, record.Seq)

		record, err = store.AdmitPurchase(ctx, buildAdmitInput(t, buyerBob, 1, "50", "2026-01-11T00:00:00Z"))
		require.NoError(t, err)
		assert.Equal(t, 1, record.Seq)
	})

	t.Run("rejects purchase outside any tier window", func(t *testing.T) {
		record, err := store.AdmitPurchase(ctx, buildAdmitInput(t, buyerAlice, 1, "100", "2025-12-31T23:59:59Z"))
		require.ErrorIs(t, err, domain.ErrTierNotActive)
		assert.Nil(t, record)
	})

	t.Run("rejects purchase targeting a tier that is not the active one", func(t *testing.T) {
		record, err := store.AdmitPurchase(ctx, buildAdmitInput(t, buyerAlice, 2, "100", "2026-01-10T00:00:00Z"))
		require.ErrorIs(t, err, domain.ErrTierNotActive)
		assert.Nil(t, record)
	})

	t.Run("rejects purchase for unknown tier id", func(t *testing.T) {
		record, err := store.AdmitPurchase(ctx, buildAdmitInput(t, buyerAlice, 42, "100", "2026-01-10T00:00:00Z"))
		require.ErrorIs(t, err, domain.ErrTierNotActive)
		assert.Nil(t, record)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		input := buildAdmitInput(t, buyerAlice, 1, "10", "2026-01-10T00:00:00Z")
		input.Amount = domain.NewAmount(0)
		_, err := store.AdmitPurchase(ctx, input)
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("rejects amount below tier minimum", func(t *testing.T) {
		_, err := store.AdmitPurchase(ctx, buildAdmitInput(t, buyerAlice, 1, "9", "2026-01-10T00:00:00Z"))
		require.ErrorIs(t, err, domain.ErrBelowMinimum)
	})

	t.Run("rejects purchase breaching per-buyer limit", func(t *testing.T) {
		// alice already holds 150 in tier 1, cap is 600
		_, err := store.AdmitPurchase(ctx, buildAdmitInput(t, buyerAlice, 1, "451", "2026-01-10T00:00:00Z"))
		require.ErrorIs(t, err, domain.ErrExceedsPerBuyerLimit)
	})

	t.Run("per-buyer limit is checked before tier exhaustion", func(t *testing.T) {
		// bob holds 50; 580 would breach both his 600 cap and the tier's
		// remaining 800, the per-buyer reason wins
		_, err := store.AdmitPurchase(ctx, buildAdmitInput(t, buyerBob, 1, "580", "2026-01-10T00:00:00Z"))
		require.ErrorIs(t, err, domain.ErrExceedsPerBuyerLimit)
	})

	t.Run("rejects purchase exceeding remaining allocation", func(t *testing.T) {
		// 200 (alice+bob) sold of 1000, carol asks for 801
		_, err := store.AdmitPurchase(ctx, buildAdmitInput(t, buyerCarol, 1, "801", "2026-01-10T00:00:00Z"))
		require.ErrorIs(t, err, domain.ErrTierExhausted)
	})

	t.Run("rejected purchase leaves no side effects", func(t *testing.T) {
		before, err := store.GetTier(ctx, 1)
		require.NoError(t, err)

		_, err = store.AdmitPurchase(ctx, buildAdmitInput(t, buyerCarol, 1, "801", "2026-01-10T00:00:00Z"))
		require.ErrorIs(t, err, domain.ErrTierExhausted)

		after, err := store.GetTier(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, before.Sold.String(), after.Sold.String())

		purchases, err := store.ListPurchasesByBuyer(ctx, buyerCarol)
		require.NoError(t, err)
		assert.Empty(t, purchases)

		sum, err := store.SumPurchasesByTier(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "200", sum.String())
	})

	t.Run("purchase filling the tier exactly is admitted", func(t *testing.T) {
		record, err := store.AdmitPurchase(ctx, buildAdmitInput(t, buyerCarol, 1, "600", "2026-01-10T00:00:00Z"))
		require.NoError(t, err)
		require.NotNil(t, record)

		// 800 of 1000 sold, tier 1 still active for its remaining 200
		record, err = store.AdmitPurchase(ctx, buildAdmitInput(t, buyerBob, 1, "200", "2026-01-10T00:00:00Z"))
		require.NoError(t, err)
		require.NotNil(t, record)

		tier, err := store.GetTier(ctx, 1)
		require.NoError(t, err)
		assert.True(t, tier.Exhausted())
	})

	t.Run("exhausted tier rejects with TierNotActive once the next tier takes over", func(t *testing.T) {
		// tier 1 is sold out, so tier 2 would be active if its window were
		// open; inside January no tier is eligible and the reason is
		// TierNotActive, not TierExhausted
		_, err := store.AdmitPurchase(ctx, buildAdmitInput(t, buyerAlice, 1, "10", "2026-01-20T00:00:00Z"))
		require.ErrorIs(t, err, domain.ErrTierNotActive)
	})
}

// =============================================================================
// Test: purchase queries
// =============================================================================

func testPurchaseQueries(t *testing.T, store Store) {
	ctx := context.Background()
	seedStoreTiers(t, store)

	_, err := store.AdmitPurchase(ctx, buildAdmitInput(t, buyerAlice, 1, "100", "2026-01-05T00:00:00Z"))
	require.NoError(t, err)
	_, err = store.AdmitPurchase(ctx, buildAdmitInput(t, buyerAlice, 1, "200", "2026-01-15T00:00:00Z"))
	require.NoError(t, err)
	_, err = store.AdmitPurchase(ctx, buildAdmitInput(t, buyerBob, 1, "300", "2026-01-20T00:00:00Z"))
	require.NoError(t, err)
	_, err = store.AdmitPurchase(ctx, buildAdmitInput(t, buyerAlice, 2, "50", "2026-02-10T00:00:00Z"))
	require.NoError(t, err)

	t.Run("lists a buyer's purchases across tiers in time order", func(t *testing.T) {
		purchases, err := store.ListPurchasesByBuyer(ctx, buyerAlice)
		require.NoError(t, err)
		require.Len(t, purchases, 3)
		assert.Equal(t, "100", purchases[0].Amount.String())
		assert.Equal(t, "200", purchases[1].Amount.String())
		assert.Equal(t, int64(2), purchases[2].TierID)
		assert.True(t, purchases[0].Timestamp.Before(purchases[1].Timestamp))
	})

	t.Run("returns empty history for unknown buyer", func(t *testing.T) {
		purchases, err := store.ListPurchasesByBuyer(ctx, buyerCarol)
		require.NoError(t, err)
		assert.Empty(t, purchases)
	})

	t.Run("lists all buyers", func(t *testing.T) {
		buyers, err := store.ListBuyers(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{buyerAlice, buyerBob}, buyers)
	})

	t.Run("sums admitted amounts per tier", func(t *testing.T) {
		sum, err := store.SumPurchasesByTier(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "600", sum.String())

		sum, err = store.SumPurchasesByTier(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "50", sum.String())

		sum, err = store.SumPurchasesByTier(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, "0", sum.String())
	})

	t.Run("lists per-buyer totals per tier", func(t *testing.T) {
		totals, err := store.ListBuyerTotalsByTier(ctx, 1)
		require.NoError(t, err)
		require.Len(t, totals, 2)
		assert.Equal(t, buyerAlice, totals[0].Buyer)
		assert.Equal(t, "300", totals[0].Bought.String())
		assert.Equal(t, buyerBob, totals[1].Buyer)
		assert.Equal(t, "300", totals[1].Bought.String())
	})
}

// =============================================================================
// Test: Claim
// =============================================================================

func testClaim(t *testing.T, store Store) {
	ctx := context.Background()
	seedStoreTiers(t, store)

	now := storeTS(t, "2026-01-10T00:00:00Z")

	t.Run("claim with no unlocked amount is a no-op", func(t *testing.T) {
		claimed, err := store.Claim(ctx, buyerAlice, now, fixedUnlocked(t, "0"))
		require.ErrorIs(t, err, domain.ErrNothingToClaim)
		assert.Equal(t, 0, claimed.Sign())

		state, err := store.GetClaimState(ctx, buyerAlice)
		require.NoError(t, err)
		assert.Nil(t, state)
	})

	_, err := store.AdmitPurchase(ctx, buildAdmitInput(t, buyerAlice, 1, "100", "2026-01-05T00:00:00Z"))
	require.NoError(t, err)

	t.Run("claim settles the full unlocked amount", func(t *testing.T) {
		claimed, err := store.Claim(ctx, buyerAlice, now, fixedUnlocked(t, "20"))
		require.NoError(t, err)
		assert.Equal(t, "20", claimed.String())

		state, err := store.GetClaimState(ctx, buyerAlice)
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, "20", state.CumulativeClaimed.String())
		require.NotNil(t, state.LastClaimAt)
		assert.Equal(t, now, state.LastClaimAt.UTC())
	})

	t.Run("immediate repeat claim has nothing to settle", func(t *testing.T) {
		_, err := store.Claim(ctx, buyerAlice, now, fixedUnlocked(t, "20"))
		require.ErrorIs(t, err, domain.ErrNothingToClaim)

		state, err := store.GetClaimState(ctx, buyerAlice)
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, "20", state.CumulativeClaimed.String())
	})

	t.Run("later claim settles only the newly unlocked delta", func(t *testing.T) {
		later := storeTS(t, "2026-04-05T00:00:00Z")
		claimed, err := store.Claim(ctx, buyerAlice, later, fixedUnlocked(t, "44"))
		require.NoError(t, err)
		assert.Equal(t, "24", claimed.String())

		state, err := store.GetClaimState(ctx, buyerAlice)
		require.NoError(t, err)
		assert.Equal(t, "44", state.CumulativeClaimed.String())
	})

	t.Run("unlocked total below claimed is a consistency violation", func(t *testing.T) {
		_, err := store.Claim(ctx, buyerAlice, now, fixedUnlocked(t, "10"))
		require.Error(t, err)
		assert.True(t, domain.IsConsistencyViolation(err))

		state, err := store.GetClaimState(ctx, buyerAlice)
		require.NoError(t, err)
		assert.Equal(t, "44", state.CumulativeClaimed.String())
	})

	t.Run("unlocked computation errors abort the claim", func(t *testing.T) {
		boom := fmt.Errorf("tier index out of sync")
		_, err := store.Claim(ctx, buyerAlice, now, func(_ []domain.PurchaseRecord) (domain.Amount, error) {
			return domain.Amount{}, boom
		})
		require.Error(t, err)

		state, err := store.GetClaimState(ctx, buyerAlice)
		require.NoError(t, err)
		assert.Equal(t, "44", state.CumulativeClaimed.String())
	})

	t.Run("unlocked is computed from the buyer's purchase snapshot", func(t *testing.T) {
		_, err := store.AdmitPurchase(ctx, buildAdmitInput(t, buyerBob, 1, "150", "2026-01-10T00:00:00Z"))
		require.NoError(t, err)

		claimed, err := store.Claim(ctx, buyerBob, now, sumUnlocked())
		require.NoError(t, err)
		assert.Equal(t, "150", claimed.String())
	})
}

// =============================================================================
// Test: concurrent admissions
// =============================================================================

func testConcurrentAdmission(t *testing.T, store Store) {
	ctx := context.Background()
	seedStoreTiers(t, store)

	t.Run("concurrent purchases never oversell the tier", func(t *testing.T) {
		// 600 + 500 against a remaining allocation of 1000: exactly one
		// admission can win
		var wg sync.WaitGroup
		errs := make([]error, 2)
		amounts := []string{"600", "500"}
		buyers := []string{buyerAlice, buyerBob}

		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = store.AdmitPurchase(ctx, buildAdmitInput(t, buyers[i], 1, amounts[i], "2026-01-10T00:00:00Z"))
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				require.ErrorIs(t, err, domain.ErrTierExhausted)
			}
		}
		assert.Equal(t, 1, succeeded)

		tier, err := store.GetTier(ctx, 1)
		require.NoError(t, err)
		assert.LessOrEqual(t, tier.Sold.Cmp(tier.TotalAllocation), 0)

		sum, err := store.SumPurchasesByTier(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, tier.Sold.String(), sum.String())
	})

	t.Run("sold counter stays consistent under many concurrent buyers", func(t *testing.T) {
		// tier 3 opens once tiers 1 and 2 are done; hammer it with 40
		// concurrent purchases of 100 against its 2000 allocation
		now := "2026-03-02T00:00:00Z"
		var wg sync.WaitGroup
		errs := make([]error, 40)
		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				buyer := fmt.Sprintf("0x%040x", i+1)
				_, errs[i] = store.AdmitPurchase(ctx, buildAdmitInput(t, buyer, 3, "100", now))
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				require.ErrorIs(t, err, domain.ErrTierExhausted)
			}
		}
		assert.Equal(t, 20, succeeded)

		tier, err := store.GetTier(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, "2000", tier.Sold.String())

		sum, err := store.SumPurchasesByTier(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, "2000", sum.String())
	})
}

// =============================================================================
// Test: concurrent claims
// =============================================================================

func testConcurrentClaims(t *testing.T, store Store) {
	ctx := context.Background()
	seedStoreTiers(t, store)

	_, err := store.AdmitPurchase(ctx, buildAdmitInput(t, buyerAlice, 1, "100", "2026-01-05T00:00:00Z"))
	require.NoError(t, err)

	t.Run("only one of two simultaneous claims settles", func(t *testing.T) {
		now := storeTS(t, "2026-01-10T00:00:00Z")

		var wg sync.WaitGroup
		claimed := make([]domain.Amount, 2)
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				claimed[i], errs[i] = store.Claim(ctx, buyerAlice, now, fixedUnlocked(t, "20"))
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for i, err := range errs {
			if err == nil {
				succeeded++
				assert.Equal(t, "20", claimed[i].String())
			} else {
				require.ErrorIs(t, err, domain.ErrNothingToClaim)
			}
		}
		assert.Equal(t, 1, succeeded)

		state, err := store.GetClaimState(ctx, buyerAlice)
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, "20", state.CumulativeClaimed.String())
	})
}

// =============================================================================
// Suite driver
// =============================================================================

// RunStoreTests runs the full store test suite against an implementation
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(*testing.T, Store)
	}{
		{"SeedTiers", testSeedTiers},
		{"AdmitPurchase", testAdmitPurchase},
		{"PurchaseQueries", testPurchaseQueries},
		{"Claim", testClaim},
		{"ConcurrentAdmission", testConcurrentAdmission},
		{"ConcurrentClaims", testConcurrentClaims},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := initDB(t)
			defer cleanupDB(t)
			tt.fn(t, store)
		})
	}
}
