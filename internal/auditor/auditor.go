package auditor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/tokenforge/presale-engine/internal/adapter"
	"github.com/tokenforge/presale-engine/internal/domain"
	"github.com/tokenforge/presale-engine/internal/logger"
	"github.com/tokenforge/presale-engine/internal/store"
)

// Config holds the auditor configuration
type Config struct {
	WorkerPoolSize int
	QueueSize      int
}

// Violation is a single broken ledger invariant found during an audit run.
type Violation struct {
	Rule   string `json:"rule"`
	TierID int64  `json:"tier_id,omitempty"`
	Buyer  string `json:"buyer,omitempty"`
	Detail string `json:"detail"`
}

// Auditor recomputes the ledger invariants from the append-only purchase log
// and cross-checks them against the stored counters. It never writes.
//
//go:generate mockgen -source=auditor.go -destination=../mocks/auditor.go -package=mocks -mock_names=Auditor=MockAuditor
type Auditor interface {
	// Run audits every tier and every buyer and returns the violations found
	Run(ctx context.Context) ([]Violation, error)
}

type auditor struct {
	store  store.Store
	clock  adapter.Clock
	config Config
}

// NewAuditor creates an invariant auditor over the presale ledger
func NewAuditor(s store.Store, clock adapter.Clock, cfg Config) Auditor {
	return &auditor{
		store:  s,
		clock:  clock,
		config: cfg,
	}
}

func (a *auditor) Run(ctx context.Context) ([]Violation, error) {
	tiers, err := a.store.ListTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}

	buyers, err := a.store.ListBuyers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list buyers: %w", err)
	}

	index := domain.TierIndex(tiers)
	now := a.clock.Now().UTC()

	var mu sync.Mutex
	var violations []Violation
	var errs []error

	report := func(v Violation) {
		mu.Lock()
		violations = append(violations, v)
		mu.Unlock()
	}
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	pool := pond.NewPool(
		a.config.WorkerPoolSize,
		pond.WithQueueSize(a.config.QueueSize),
		pond.WithContext(ctx),
	)

	for _, tier := range tiers {
		pool.Submit(func() {
			a.auditTier(ctx, tier, report, fail)
		})
	}
	for _, buyer := range buyers {
		pool.Submit(func() {
			a.auditBuyer(ctx, buyer, index, now, report, fail)
		})
	}

	pool.StopAndWait()

	if len(errs) > 0 {
		return violations, fmt.Errorf("audit incomplete: %d checks failed, first: %w", len(errs), errs[0])
	}
	return violations, nil
}

// auditTier checks the tier counters against the purchase log
func (a *auditor) auditTier(ctx context.Context, tier domain.SaleTier, report func(Violation), fail func(error)) {
	logger.DebugCtx(ctx, "Auditing tier", zap.Int64("tier_id", tier.ID))

	if tier.Sold.Cmp(tier.TotalAllocation) > 0 {
		report(Violation{
			Rule:   "sold-le-allocation",
			TierID: tier.ID,
			Detail: fmt.Sprintf("sold %s exceeds allocation %s", tier.Sold, tier.TotalAllocation),
		})
	}

	recomputed, err := a.store.SumPurchasesByTier(ctx, tier.ID)
	if err != nil {
		fail(fmt.Errorf("failed to sum purchases for tier %d: %w", tier.ID, err))
		return
	}
	if recomputed.Cmp(tier.Sold) != 0 {
		report(Violation{
			Rule:   "sold-matches-log",
			TierID: tier.ID,
			Detail: fmt.Sprintf("sold counter %s but purchase log sums to %s", tier.Sold, recomputed),
		})
	}

	totals, err := a.store.ListBuyerTotalsByTier(ctx, tier.ID)
	if err != nil {
		fail(fmt.Errorf("failed to list buyer totals for tier %d: %w", tier.ID, err))
		return
	}

	totalsSum := domain.NewAmount(0)
	for _, total := range totals {
		totalsSum = totalsSum.Add(total.Bought)
		if total.Bought.Cmp(tier.MaxPurchase) > 0 {
			report(Violation{
				Rule:   "buyer-le-max-purchase",
				TierID: tier.ID,
				Buyer:  total.Buyer,
				Detail: fmt.Sprintf("buyer total %s exceeds per-buyer limit %s", total.Bought, tier.MaxPurchase),
			})
		}
	}
	if totalsSum.Cmp(tier.Sold) != 0 {
		report(Violation{
			Rule:   "totals-match-sold",
			TierID: tier.ID,
			Detail: fmt.Sprintf("buyer totals sum to %s but sold counter is %s", totalsSum, tier.Sold),
		})
	}
}

// auditBuyer checks the ledger's per-buyer invariants: buyer keys are stored
// in canonical form, and the claimed counter never runs ahead of vesting
func (a *auditor) auditBuyer(ctx context.Context, buyer string, index map[int64]domain.SaleTier, now time.Time, report func(Violation), fail func(error)) {
	// Normalization happens at the boundary; a non-canonical key in the log
	// would split one buyer's history across two identities.
	if !domain.IsCanonicalBuyerAddress(buyer) {
		report(Violation{
			Rule:   "buyer-canonical-form",
			Buyer:  buyer,
			Detail: "buyer address is not in canonical lowercase form",
		})
	}

	state, err := a.store.GetClaimState(ctx, buyer)
	if err != nil {
		fail(fmt.Errorf("failed to load claim state for %s: %w", buyer, err))
		return
	}
	if state == nil {
		return
	}

	purchases, err := a.store.ListPurchasesByBuyer(ctx, buyer)
	if err != nil {
		fail(fmt.Errorf("failed to list purchases for %s: %w", buyer, err))
		return
	}

	unlocked, err := domain.TotalUnlocked(purchases, index, now)
	if err != nil {
		fail(fmt.Errorf("failed to compute unlocked for %s: %w", buyer, err))
		return
	}

	if state.CumulativeClaimed.Cmp(unlocked) > 0 {
		report(Violation{
			Rule:   "claimed-le-unlocked",
			Buyer:  buyer,
			Detail: fmt.Sprintf("claimed %s exceeds unlocked %s", state.CumulativeClaimed, unlocked),
		})
	}
}
