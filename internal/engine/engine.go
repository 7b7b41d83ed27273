package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/tokenforge/presale-engine/internal/adapter"
	"github.com/tokenforge/presale-engine/internal/domain"
	"github.com/tokenforge/presale-engine/internal/logger"
	"github.com/tokenforge/presale-engine/internal/messaging"
	"github.com/tokenforge/presale-engine/internal/store"
)

// PurchaseRequest is a buyer's intent to buy into a tier, as received at the
// external boundary. Buyer may be in any EVM address casing; it is
// normalized before touching the ledger.
type PurchaseRequest struct {
	Buyer  string
	TierID int64
	Amount domain.Amount
	// Raw is the original request payload, stored verbatim with the purchase
	Raw []byte
}

// ClaimResult is the outcome of a claim submission. Settled is false when
// nothing had unlocked since the buyer's last claim, which is a valid no-op
// rather than a failure.
type ClaimResult struct {
	Buyer   string
	Amount  domain.Amount
	Settled bool
	At      time.Time
}

// ClaimableBreakdown is the read model behind the claim preview endpoint:
// everything is derived on demand from the purchase log and the claimed
// counter, nothing here is stored.
type ClaimableBreakdown struct {
	Buyer        string
	Purchased    domain.Amount
	Unlocked     domain.Amount
	Claimed      domain.Amount
	Claimable    domain.Amount
	NextUnlockAt *time.Time
}

// Engine orchestrates tier selection, purchase admission, and claim
// settlement. It holds no sale state of its own; every decision is delegated
// to the pure vesting math and the atomic store operations.
//
//go:generate mockgen -source=engine.go -destination=../mocks/engine.go -package=mocks -mock_names=Engine=MockEngine
type Engine interface {
	// ListTiers returns all configured tiers ordered by id
	ListTiers(ctx context.Context) ([]domain.SaleTier, error)
	// ActiveTier returns the currently active tier, or nil when no tier is
	// open for purchases
	ActiveTier(ctx context.Context) (*domain.SaleTier, error)
	// SubmitPurchase normalizes and admits a purchase into its target tier
	SubmitPurchase(ctx context.Context, req PurchaseRequest) (*domain.PurchaseRecord, error)
	// SubmitClaim settles everything currently claimable for a buyer
	SubmitClaim(ctx context.Context, buyer string) (*ClaimResult, error)
	// Claimable previews a buyer's vesting position without settling anything
	Claimable(ctx context.Context, buyer string) (*ClaimableBreakdown, error)
	// Purchases returns a buyer's purchase history in admission order
	Purchases(ctx context.Context, buyer string) ([]domain.PurchaseRecord, error)
	// Buyers returns every buyer address present in the purchase log
	Buyers(ctx context.Context) ([]string, error)
	// Milestones projects a buyer's full unlock schedule
	Milestones(ctx context.Context, buyer string) ([]domain.VestingMilestone, error)
}

type engine struct {
	store     store.Store
	clock     adapter.Clock
	publisher messaging.Publisher
}

// NewEngine creates a presale engine. publisher may be nil, in which case
// settlement events are not emitted.
func NewEngine(s store.Store, clock adapter.Clock, publisher messaging.Publisher) Engine {
	return &engine{
		store:     s,
		clock:     clock,
		publisher: publisher,
	}
}

func (e *engine) ListTiers(ctx context.Context) ([]domain.SaleTier, error) {
	return e.store.ListTiers(ctx)
}

func (e *engine) ActiveTier(ctx context.Context) (*domain.SaleTier, error) {
	tiers, err := e.store.ListTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}

	return domain.ActiveTier(tiers, e.clock.Now().UTC()), nil
}

func (e *engine) SubmitPurchase(ctx context.Context, req PurchaseRequest) (*domain.PurchaseRecord, error) {
	buyer, err := domain.NormalizeBuyerAddress(req.Buyer)
	if err != nil {
		return nil, err
	}

	tier, err := e.store.GetTier(ctx, req.TierID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tier %d: %w", req.TierID, err)
	}
	if tier == nil {
		return nil, domain.ErrTierNotActive
	}

	record, err := e.store.AdmitPurchase(ctx, store.AdmitPurchaseInput{
		Buyer:   buyer,
		TierID:  req.TierID,
		Amount:  req.Amount,
		Payment: req.Amount.Mul(tier.Price),
		Raw:     datatypes.JSON(req.Raw),
		Now:     e.clock.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, &domain.SettlementEvent{
		Type:        domain.EventTypePurchaseAdmitted,
		Buyer:       record.Buyer,
		TierID:      record.TierID,
		PurchaseUID: record.UID,
		Amount:      record.Amount,
		Timestamp:   record.Timestamp,
	})

	return record, nil
}

func (e *engine) SubmitClaim(ctx context.Context, buyer string) (*ClaimResult, error) {
	normalized, err := domain.NormalizeBuyerAddress(buyer)
	if err != nil {
		return nil, err
	}

	index, err := e.tierIndex(ctx)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()
	claimed, err := e.store.Claim(ctx, normalized, now, func(purchases []domain.PurchaseRecord) (domain.Amount, error) {
		return domain.TotalUnlocked(purchases, index, now)
	})
	if errors.Is(err, domain.ErrNothingToClaim) {
		return &ClaimResult{Buyer: normalized, Amount: domain.NewAmount(0), Settled: false, At: now}, nil
	}
	if err != nil {
		return nil, err
	}

	e.publish(ctx, &domain.SettlementEvent{
		Type:      domain.EventTypeClaimSettled,
		Buyer:     normalized,
		Amount:    claimed,
		Timestamp: now,
	})

	return &ClaimResult{Buyer: normalized, Amount: claimed, Settled: true, At: now}, nil
}

func (e *engine) Claimable(ctx context.Context, buyer string) (*ClaimableBreakdown, error) {
	normalized, err := domain.NormalizeBuyerAddress(buyer)
	if err != nil {
		return nil, err
	}

	index, err := e.tierIndex(ctx)
	if err != nil {
		return nil, err
	}

	purchases, err := e.store.ListPurchasesByBuyer(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}

	now := e.clock.Now().UTC()
	unlocked, err := domain.TotalUnlocked(purchases, index, now)
	if err != nil {
		return nil, err
	}

	purchased := domain.NewAmount(0)
	for _, p := range purchases {
		purchased = purchased.Add(p.Amount)
	}

	claimed := domain.NewAmount(0)
	state, err := e.store.GetClaimState(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to load claim state: %w", err)
	}
	if state != nil {
		claimed = state.CumulativeClaimed
	}

	if unlocked.Cmp(claimed) < 0 {
		return nil, domain.NewConsistencyError("claimed-le-unlocked",
			"buyer %s claimed %s exceeds unlocked %s", normalized, claimed, unlocked)
	}

	return &ClaimableBreakdown{
		Buyer:        normalized,
		Purchased:    purchased,
		Unlocked:     unlocked,
		Claimed:      claimed,
		Claimable:    unlocked.Sub(claimed),
		NextUnlockAt: domain.NextUnlockAt(purchases, index, now),
	}, nil
}

func (e *engine) Purchases(ctx context.Context, buyer string) ([]domain.PurchaseRecord, error) {
	normalized, err := domain.NormalizeBuyerAddress(buyer)
	if err != nil {
		return nil, err
	}

	return e.store.ListPurchasesByBuyer(ctx, normalized)
}

func (e *engine) Buyers(ctx context.Context) ([]string, error) {
	return e.store.ListBuyers(ctx)
}

func (e *engine) Milestones(ctx context.Context, buyer string) ([]domain.VestingMilestone, error) {
	normalized, err := domain.NormalizeBuyerAddress(buyer)
	if err != nil {
		return nil, err
	}

	index, err := e.tierIndex(ctx)
	if err != nil {
		return nil, err
	}

	purchases, err := e.store.ListPurchasesByBuyer(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}

	return domain.Milestones(purchases, index)
}

func (e *engine) tierIndex(ctx context.Context) (map[int64]domain.SaleTier, error) {
	tiers, err := e.store.ListTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}
	return domain.TierIndex(tiers), nil
}

// publish emits a settlement event best-effort. The ledger write already
// committed; a broker outage must not turn it into a failed request.
func (e *engine) publish(ctx context.Context, event *domain.SettlementEvent) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.PublishSettlement(ctx, event); err != nil {
		logger.WarnCtx(ctx, "failed to publish settlement event",
			zap.String("type", string(event.Type)),
			zap.String("buyer", event.Buyer),
			zap.Error(err))
	}
}
