package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tokenforge/presale-engine/internal/domain"
)

// memStore is an in-memory Store used for tests and single-process
// deployments. It implements the same atomicity contract as the PostgreSQL
// store with partitioned locking: one mutex per tier serializes admissions,
// one mutex per buyer serializes claims, and a shared RWMutex guards the
// underlying state so snapshots are race-free.
type memStore struct {
	mu       sync.RWMutex
	tiers    map[int64]domain.SaleTier
	tierLock map[int64]*sync.Mutex
	// purchases keyed by buyer, in admission order
	purchases map[string][]domain.PurchaseRecord
	// totals keyed by tier id then buyer
	totals map[int64]map[string]domain.Amount
	claims map[string]domain.ClaimState
	// claimLock keyed by buyer
	claimLock map[string]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() Store {
	return &memStore{
		tiers:     make(map[int64]domain.SaleTier),
		tierLock:  make(map[int64]*sync.Mutex),
		purchases: make(map[string][]domain.PurchaseRecord),
		totals:    make(map[int64]map[string]domain.Amount),
		claims:    make(map[string]domain.ClaimState),
		claimLock: make(map[string]*sync.Mutex),
	}
}

// SeedTiers inserts tiers, skipping ids that already exist
func (s *memStore) SeedTiers(_ context.Context, tiers []domain.SaleTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tiers {
		if _, exists := s.tiers[t.ID]; exists {
			continue
		}
		s.tiers[t.ID] = t
		s.tierLock[t.ID] = &sync.Mutex{}
	}

	return nil
}

// ListTiers returns all tiers ordered by ascending id
func (s *memStore) ListTiers(_ context.Context) ([]domain.SaleTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tierSnapshot(), nil
}

// tierSnapshot copies the tier set ordered by id. Caller must hold s.mu.
func (s *memStore) tierSnapshot() []domain.SaleTier {
	tiers := make([]domain.SaleTier, 0, len(s.tiers))
	for _, t := range s.tiers {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].ID < tiers[j].ID })
	return tiers
}

// GetTier returns a tier by id, or nil when it does not exist
func (s *memStore) GetTier(_ context.Context, tierID int64) (*domain.SaleTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tiers[tierID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// AdmitPurchase serializes per tier via the tier's mutex, making the whole
// check-and-commit step indivisible for concurrent admissions into the same
// tier.
func (s *memStore) AdmitPurchase(_ context.Context, input AdmitPurchaseInput) (*domain.PurchaseRecord, error) {
	s.mu.RLock()
	lock, ok := s.tierLock[input.TierID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrTierNotActive
	}

	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	tiers := s.tierSnapshot()
	tier := s.tiers[input.TierID]
	bought := s.buyerTotal(input.TierID, input.Buyer)
	s.mu.RUnlock()

	active := domain.ActiveTier(tiers, input.Now)
	if active == nil || active.ID != input.TierID {
		return nil, domain.ErrTierNotActive
	}

	if input.Amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if input.Amount.Cmp(tier.MinPurchase) < 0 {
		return nil, domain.ErrBelowMinimum
	}

	newBought := bought.Add(input.Amount)
	if newBought.Cmp(tier.MaxPurchase) > 0 {
		return nil, domain.ErrExceedsPerBuyerLimit
	}

	newSold := tier.Sold.Add(input.Amount)
	if newSold.Cmp(tier.TotalAllocation) > 0 {
		return nil, domain.ErrTierExhausted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tier.Sold = newSold
	s.tiers[input.TierID] = tier

	if s.totals[input.TierID] == nil {
		s.totals[input.TierID] = make(map[string]domain.Amount)
	}
	s.totals[input.TierID][input.Buyer] = newBought

	seq := 0
	for _, p := range s.purchases[input.Buyer] {
		if p.TierID == input.TierID {
			seq++
		}
	}

	record := domain.PurchaseRecord{
		UID:       ulid.Make().String(),
		Buyer:     input.Buyer,
		TierID:    input.TierID,
		Seq:       seq + 1,
		Amount:    input.Amount,
		Payment:   input.Payment,
		Timestamp: input.Now.UTC(),
	}
	s.purchases[input.Buyer] = append(s.purchases[input.Buyer], record)

	return &record, nil
}

// buyerTotal returns the buyer's running total within a tier. Caller must
// hold s.mu.
func (s *memStore) buyerTotal(tierID int64, buyer string) domain.Amount {
	if byBuyer, ok := s.totals[tierID]; ok {
		if total, ok := byBuyer[buyer]; ok {
			return total
		}
	}
	return domain.NewAmount(0)
}

// ListPurchasesByBuyer returns the buyer's purchases in admission order
func (s *memStore) ListPurchasesByBuyer(_ context.Context, buyer string) ([]domain.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchases := make([]domain.PurchaseRecord, len(s.purchases[buyer]))
	copy(purchases, s.purchases[buyer])
	return purchases, nil
}

// ListBuyers returns every buyer address in the purchase log
func (s *memStore) ListBuyers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buyers := make([]string, 0, len(s.purchases))
	for buyer := range s.purchases {
		buyers = append(buyers, buyer)
	}
	sort.Strings(buyers)
	return buyers, nil
}

// SumPurchasesByTier recomputes a tier's sold total from the purchase log
func (s *memStore) SumPurchasesByTier(_ context.Context, tierID int64) (domain.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := domain.NewAmount(0)
	for _, records := range s.purchases {
		for _, p := range records {
			if p.TierID == tierID {
				sum = sum.Add(p.Amount)
			}
		}
	}
	return sum, nil
}

// ListBuyerTotalsByTier returns the per-buyer running totals for a tier
func (s *memStore) ListBuyerTotalsByTier(_ context.Context, tierID int64) ([]BuyerTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make([]BuyerTotal, 0, len(s.totals[tierID]))
	for buyer, bought := range s.totals[tierID] {
		totals = append(totals, BuyerTotal{Buyer: buyer, TierID: tierID, Bought: bought})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Buyer < totals[j].Buyer })
	return totals, nil
}

// GetClaimState returns the buyer's claim state, or nil if never claimed
func (s *memStore) GetClaimState(_ context.Context, buyer string) (*domain.ClaimState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.claims[buyer]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// Claim serializes per buyer via the buyer's claim mutex, so two
// simultaneous claims can never both settle the same unlocked amount.
func (s *memStore) Claim(_ context.Context, buyer string, now time.Time, unlocked UnlockedFunc) (domain.Amount, error) {
	s.mu.Lock()
	lock, ok := s.claimLock[buyer]
	if !ok {
		lock = &sync.Mutex{}
		s.claimLock[buyer] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	purchases := make([]domain.PurchaseRecord, len(s.purchases[buyer]))
	copy(purchases, s.purchases[buyer])
	state, hasState := s.claims[buyer]
	s.mu.RUnlock()

	claimedSoFar := domain.NewAmount(0)
	if hasState {
		claimedSoFar = state.CumulativeClaimed
	}

	totalUnlocked, err := unlocked(purchases)
	if err != nil {
		return domain.Amount{}, err
	}

	if totalUnlocked.Cmp(claimedSoFar) < 0 {
		return domain.Amount{}, domain.NewConsistencyError("claimed-le-unlocked",
			"buyer %s claimed %s exceeds unlocked %s", buyer, claimedSoFar, totalUnlocked)
	}

	available := totalUnlocked.Sub(claimedSoFar)
	if available.Sign() <= 0 {
		return domain.Amount{}, domain.ErrNothingToClaim
	}

	claimTime := now.UTC()
	s.mu.Lock()
	s.claims[buyer] = domain.ClaimState{
		Buyer:             buyer,
		CumulativeClaimed: totalUnlocked,
		LastClaimAt:       &claimTime,
	}
	s.mu.Unlock()

	return available, nil
}
