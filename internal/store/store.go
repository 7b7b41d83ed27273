package store

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"github.com/tokenforge/presale-engine/internal/domain"
)

// AdmitPurchaseInput carries a normalized purchase request into the atomic
// admission operation. Buyer must already be canonical; Now must be UTC.
type AdmitPurchaseInput struct {
	Buyer   string
	TierID  int64
	Amount  domain.Amount
	Payment domain.Amount
	Raw     datatypes.JSON
	Now     time.Time
}

// BuyerTotal is a per-(buyer, tier) running purchase total.
type BuyerTotal struct {
	Buyer  string
	TierID int64
	Bought domain.Amount
}

// UnlockedFunc computes the total unlocked amount for a buyer from a
// consistent snapshot of their purchase history. The claim operation calls
// it inside its critical section so the unlocked total and the claimed
// counter are read against the same state.
type UnlockedFunc func(purchases []domain.PurchaseRecord) (domain.Amount, error)

// Store is the durable presale ledger. Implementations must make
// AdmitPurchase atomic per tier and Claim atomic per buyer: two concurrent
// admissions can never jointly overshoot a tier's allocation, and two
// concurrent claims can never both settle the same unlocked amount.
type Store interface {
	// SeedTiers inserts tier configuration rows, skipping ids that already
	// exist. Existing tiers are never modified.
	SeedTiers(ctx context.Context, tiers []domain.SaleTier) error
	// ListTiers returns all tiers ordered by ascending id.
	ListTiers(ctx context.Context) ([]domain.SaleTier, error)
	// GetTier returns a tier by id, or nil when it does not exist.
	GetTier(ctx context.Context, tierID int64) (*domain.SaleTier, error)

	// AdmitPurchase runs the full check-and-commit admission step as one
	// indivisible operation: verifies the tier is active, validates amount
	// bounds, and on success increments the tier and buyer counters and
	// appends the purchase record. Rule violations are returned as the
	// domain sentinel errors; a rejected purchase has no side effects.
	AdmitPurchase(ctx context.Context, input AdmitPurchaseInput) (*domain.PurchaseRecord, error)
	// ListPurchasesByBuyer returns the buyer's purchases across all tiers,
	// ordered by timestamp.
	ListPurchasesByBuyer(ctx context.Context, buyer string) ([]domain.PurchaseRecord, error)
	// ListBuyers returns every buyer address present in the purchase log.
	ListBuyers(ctx context.Context) ([]string, error)
	// SumPurchasesByTier recomputes the sum of admitted amounts for a tier
	// from the append-only purchase log (used by the invariant auditor).
	SumPurchasesByTier(ctx context.Context, tierID int64) (domain.Amount, error)
	// ListBuyerTotalsByTier returns the per-buyer running totals for a tier.
	ListBuyerTotalsByTier(ctx context.Context, tierID int64) ([]BuyerTotal, error)

	// GetClaimState returns the buyer's claim state, or nil when the buyer
	// has never claimed.
	GetClaimState(ctx context.Context, buyer string) (*domain.ClaimState, error)
	// Claim settles everything currently claimable for the buyer: computes
	// the unlocked total via unlocked against a snapshot consistent with the
	// claimed counter, and atomically advances the counter. Returns the
	// settled amount, or domain.ErrNothingToClaim when nothing has unlocked
	// since the last claim.
	Claim(ctx context.Context, buyer string, now time.Time, unlocked UnlockedFunc) (domain.Amount, error)
}
