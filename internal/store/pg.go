package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tokenforge/presale-engine/internal/domain"
	"github.com/tokenforge/presale-engine/internal/store/schema"
)

// txMaxRetries bounds how many times a serialization or deadlock failure is
// retried. The whole check-and-commit step is re-run each time so the
// preconditions are re-evaluated against fresh state.
const txMaxRetries = 3

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool of a GORM database
// connection, applying defaults for zero values (20 open, 5 idle, 5m
// lifetime, 10m idle time).
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// isRetryableTxError reports whether err is a transient transaction conflict
// (serialization failure or deadlock) worth re-running the whole step for.
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// runTx executes fn with bounded retry on transient conflicts. Rule
// violations and other permanent errors abort immediately.
func (s *pgStore) runTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	op := func() error {
		err := s.db.WithContext(ctx).Transaction(fn)
		if err != nil && !isRetryableTxError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), txMaxRetries), ctx))
}

// SeedTiers inserts tier configuration rows, skipping existing ids
func (s *pgStore) SeedTiers(ctx context.Context, tiers []domain.SaleTier) error {
	if len(tiers) == 0 {
		return nil
	}

	rows := make([]schema.SaleTier, 0, len(tiers))
	for _, t := range tiers {
		rows = append(rows, schema.SaleTier{
			ID:              t.ID,
			Price:           t.Price.String(),
			TotalAllocation: t.TotalAllocation.String(),
			Sold:            t.Sold.String(),
			MinPurchase:     t.MinPurchase.String(),
			MaxPurchase:     t.MaxPurchase.String(),
			TGEPercent:      t.TGEPercent,
			VestingMonths:   t.VestingMonths,
			StartsAt:        t.StartsAt,
			EndsAt:          t.EndsAt,
		})
	}

	// Tiers are configured once; a re-run must never touch existing rows.
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to seed tiers: %w", err)
	}

	return nil
}

// ListTiers returns all tiers ordered by ascending id
func (s *pgStore) ListTiers(ctx context.Context) ([]domain.SaleTier, error) {
	return listTiers(s.db.WithContext(ctx))
}

func listTiers(db *gorm.DB) ([]domain.SaleTier, error) {
	var rows []schema.SaleTier
	if err := db.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}

	tiers := make([]domain.SaleTier, 0, len(rows))
	for _, row := range rows {
		tier, err := tierFromRow(row)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, tier)
	}

	return tiers, nil
}

// GetTier retrieves a tier by id
func (s *pgStore) GetTier(ctx context.Context, tierID int64) (*domain.SaleTier, error) {
	var row schema.SaleTier
	err := s.db.WithContext(ctx).Where("id = ?", tierID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tier: %w", err)
	}

	tier, err := tierFromRow(row)
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

// AdmitPurchase runs the admission check-and-commit step inside a single
// transaction. The target tier row is locked with SELECT ... FOR UPDATE, so
// all admissions into one tier serialize and the allocation cap can never be
// overshot by concurrent requests that each individually appeared to fit.
func (s *pgStore) AdmitPurchase(ctx context.Context, input AdmitPurchaseInput) (*domain.PurchaseRecord, error) {
	var record *domain.PurchaseRecord

	err := s.runTx(ctx, func(tx *gorm.DB) error {
		record = nil

		// 1. Lock the target tier row for the duration of the transaction.
		var tierRow schema.SaleTier
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", input.TierID).
			First(&tierRow).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrTierNotActive
			}
			return fmt.Errorf("failed to lock tier: %w", err)
		}

		tier, err := tierFromRow(tierRow)
		if err != nil {
			return err
		}

		// 2. Verify the target is the currently active tier. Sibling tiers
		// are read without locks: their eligibility only shrinks over time,
		// so a stale sibling read can reject but never wrongly admit.
		tiers, err := listTiers(tx)
		if err != nil {
			return err
		}
		for i := range tiers {
			if tiers[i].ID == tier.ID {
				tiers[i] = tier
			}
		}

		active := domain.ActiveTier(tiers, input.Now)
		if active == nil || active.ID != input.TierID {
			return domain.ErrTierNotActive
		}

		// 3. Amount bounds, in the contract's order.
		if input.Amount.Sign() <= 0 {
			return domain.ErrInvalidAmount
		}
		if input.Amount.Cmp(tier.MinPurchase) < 0 {
			return domain.ErrBelowMinimum
		}

		bought, totalRowExists, err := buyerTotalForUpdate(tx, input.Buyer, input.TierID)
		if err != nil {
			return err
		}
		newBought := bought.Add(input.Amount)
		if newBought.Cmp(tier.MaxPurchase) > 0 {
			return domain.ErrExceedsPerBuyerLimit
		}

		newSold := tier.Sold.Add(input.Amount)
		if newSold.Cmp(tier.TotalAllocation) > 0 {
			return domain.ErrTierExhausted
		}

		// 4. Commit the counters and append the record.
		err = tx.Model(&schema.SaleTier{}).
			Where("id = ?", input.TierID).
			Updates(map[string]any{
				"sold":       newSold.String(),
				"updated_at": input.Now,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to update tier sold counter: %w", err)
		}

		if totalRowExists {
			err = tx.Model(&schema.BuyerTierTotal{}).
				Where("tier_id = ? AND buyer = ?", input.TierID, input.Buyer).
				Updates(map[string]any{
					"bought":     newBought.String(),
					"updated_at": input.Now,
				}).Error
		} else {
			err = tx.Create(&schema.BuyerTierTotal{
				TierID: input.TierID,
				Buyer:  input.Buyer,
				Bought: newBought.String(),
			}).Error
		}
		if err != nil {
			return fmt.Errorf("failed to update buyer tier total: %w", err)
		}

		var seq int64
		err = tx.Model(&schema.Purchase{}).
			Where("buyer = ? AND tier_id = ?", input.Buyer, input.TierID).
			Count(&seq).Error
		if err != nil {
			return fmt.Errorf("failed to count buyer purchases: %w", err)
		}

		purchase := schema.Purchase{
			UID:       ulid.Make().String(),
			Buyer:     input.Buyer,
			TierID:    input.TierID,
			Seq:       int(seq) + 1,
			Amount:    input.Amount.String(),
			Payment:   input.Payment.String(),
			Raw:       input.Raw,
			Timestamp: input.Now,
		}
		if err := tx.Create(&purchase).Error; err != nil {
			return fmt.Errorf("failed to create purchase record: %w", err)
		}

		rec, err := purchaseFromRow(purchase)
		if err != nil {
			return err
		}
		record = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// buyerTotalForUpdate reads the buyer's running total within a tier. The
// caller holds the tier row lock, which serializes every writer of this row.
func buyerTotalForUpdate(tx *gorm.DB, buyer string, tierID int64) (domain.Amount, bool, error) {
	var row schema.BuyerTierTotal
	err := tx.Where("tier_id = ? AND buyer = ?", tierID, buyer).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.NewAmount(0), false, nil
		}
		return domain.Amount{}, false, fmt.Errorf("failed to get buyer tier total: %w", err)
	}

	bought, err := domain.ParseAmount(row.Bought)
	if err != nil {
		return domain.Amount{}, false, fmt.Errorf("failed to parse buyer tier total: %w", err)
	}
	return bought, true, nil
}

// ListPurchasesByBuyer returns the buyer's purchases ordered by timestamp
func (s *pgStore) ListPurchasesByBuyer(ctx context.Context, buyer string) ([]domain.PurchaseRecord, error) {
	return listPurchasesByBuyer(s.db.WithContext(ctx), buyer)
}

func listPurchasesByBuyer(db *gorm.DB, buyer string) ([]domain.PurchaseRecord, error) {
	var rows []schema.Purchase
	err := db.Where("buyer = ?", buyer).
		Order("timestamp ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}

	purchases := make([]domain.PurchaseRecord, 0, len(rows))
	for _, row := range rows {
		p, err := purchaseFromRow(row)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}

	return purchases, nil
}

// ListBuyers returns every distinct buyer address in the purchase log
func (s *pgStore) ListBuyers(ctx context.Context) ([]string, error) {
	var buyers []string
	err := s.db.WithContext(ctx).
		Model(&schema.Purchase{}).
		Distinct("buyer").
		Order("buyer ASC").
		Pluck("buyer", &buyers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list buyers: %w", err)
	}
	return buyers, nil
}

// SumPurchasesByTier recomputes a tier's sold total from the purchase log
func (s *pgStore) SumPurchasesByTier(ctx context.Context, tierID int64) (domain.Amount, error) {
	var sum string
	err := s.db.WithContext(ctx).
		Model(&schema.Purchase{}).
		Where("tier_id = ?", tierID).
		Select("COALESCE(SUM(amount), 0)::numeric(78,0)").
		Scan(&sum).Error
	if err != nil {
		return domain.Amount{}, fmt.Errorf("failed to sum purchases: %w", err)
	}

	total, err := domain.ParseAmount(sum)
	if err != nil {
		return domain.Amount{}, fmt.Errorf("failed to parse purchase sum: %w", err)
	}
	return total, nil
}

// ListBuyerTotalsByTier returns the per-buyer running totals for a tier
func (s *pgStore) ListBuyerTotalsByTier(ctx context.Context, tierID int64) ([]BuyerTotal, error) {
	var rows []schema.BuyerTierTotal
	err := s.db.WithContext(ctx).
		Where("tier_id = ?", tierID).
		Order("buyer ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list buyer totals: %w", err)
	}

	totals := make([]BuyerTotal, 0, len(rows))
	for _, row := range rows {
		bought, err := domain.ParseAmount(row.Bought)
		if err != nil {
			return nil, fmt.Errorf("failed to parse buyer total: %w", err)
		}
		totals = append(totals, BuyerTotal{
			Buyer:  row.Buyer,
			TierID: row.TierID,
			Bought: bought,
		})
	}

	return totals, nil
}

// GetClaimState retrieves the buyer's claim state, or nil if never claimed
func (s *pgStore) GetClaimState(ctx context.Context, buyer string) (*domain.ClaimState, error) {
	var row schema.ClaimState
	err := s.db.WithContext(ctx).Where("buyer = ?", buyer).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get claim state: %w", err)
	}

	state, err := claimStateFromRow(row)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Claim settles everything currently claimable for the buyer. The buyer's
// claim row is locked with SELECT ... FOR UPDATE, so concurrent claims from
// the same buyer serialize: the second one re-reads the advanced counter and
// gets ErrNothingToClaim instead of double-settling.
func (s *pgStore) Claim(ctx context.Context, buyer string, now time.Time, unlocked UnlockedFunc) (domain.Amount, error) {
	var claimed domain.Amount

	err := s.runTx(ctx, func(tx *gorm.DB) error {
		// Make sure the row exists before locking it. DO NOTHING keeps an
		// existing counter untouched.
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "buyer"}},
			DoNothing: true,
		}).Create(&schema.ClaimState{Buyer: buyer, CumulativeClaimed: "0"}).Error
		if err != nil {
			return fmt.Errorf("failed to ensure claim state: %w", err)
		}

		var row schema.ClaimState
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("buyer = ?", buyer).
			First(&row).Error
		if err != nil {
			return fmt.Errorf("failed to lock claim state: %w", err)
		}

		claimedSoFar, err := domain.ParseAmount(row.CumulativeClaimed)
		if err != nil {
			return fmt.Errorf("failed to parse cumulative claimed: %w", err)
		}

		// The purchase log is append-only; reading it under the claim row
		// lock yields a snapshot at least as old as the claimed counter, so
		// unlocked can only be under-counted, never over-counted.
		purchases, err := listPurchasesByBuyer(tx, buyer)
		if err != nil {
			return err
		}

		totalUnlocked, err := unlocked(purchases)
		if err != nil {
			return err
		}

		if totalUnlocked.Cmp(claimedSoFar) < 0 {
			return domain.NewConsistencyError("claimed-le-unlocked",
				"buyer %s claimed %s exceeds unlocked %s", buyer, claimedSoFar, totalUnlocked)
		}

		available := totalUnlocked.Sub(claimedSoFar)
		if available.Sign() <= 0 {
			return domain.ErrNothingToClaim
		}

		err = tx.Model(&schema.ClaimState{}).
			Where("buyer = ?", buyer).
			Updates(map[string]any{
				"cumulative_claimed": totalUnlocked.String(),
				"last_claim_at":      now,
				"updated_at":         now,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to advance claim state: %w", err)
		}

		claimed = available
		return nil
	})
	if err != nil {
		return domain.Amount{}, err
	}

	return claimed, nil
}

// =============================================================================
// Row conversions
// =============================================================================

func tierFromRow(row schema.SaleTier) (domain.SaleTier, error) {
	price, err := domain.ParseAmount(row.Price)
	if err != nil {
		return domain.SaleTier{}, fmt.Errorf("tier %d: invalid price: %w", row.ID, err)
	}
	allocation, err := domain.ParseAmount(row.TotalAllocation)
	if err != nil {
		return domain.SaleTier{}, fmt.Errorf("tier %d: invalid allocation: %w", row.ID, err)
	}
	sold, err := domain.ParseAmount(row.Sold)
	if err != nil {
		return domain.SaleTier{}, fmt.Errorf("tier %d: invalid sold: %w", row.ID, err)
	}
	minPurchase, err := domain.ParseAmount(row.MinPurchase)
	if err != nil {
		return domain.SaleTier{}, fmt.Errorf("tier %d: invalid min purchase: %w", row.ID, err)
	}
	maxPurchase, err := domain.ParseAmount(row.MaxPurchase)
	if err != nil {
		return domain.SaleTier{}, fmt.Errorf("tier %d: invalid max purchase: %w", row.ID, err)
	}

	return domain.SaleTier{
		ID:              row.ID,
		Price:           price,
		TotalAllocation: allocation,
		Sold:            sold,
		MinPurchase:     minPurchase,
		MaxPurchase:     maxPurchase,
		TGEPercent:      row.TGEPercent,
		VestingMonths:   row.VestingMonths,
		StartsAt:        row.StartsAt,
		EndsAt:          row.EndsAt,
	}, nil
}

func purchaseFromRow(row schema.Purchase) (domain.PurchaseRecord, error) {
	amount, err := domain.ParseAmount(row.Amount)
	if err != nil {
		return domain.PurchaseRecord{}, fmt.Errorf("purchase %s: invalid amount: %w", row.UID, err)
	}
	payment, err := domain.ParseAmount(row.Payment)
	if err != nil {
		return domain.PurchaseRecord{}, fmt.Errorf("purchase %s: invalid payment: %w", row.UID, err)
	}

	return domain.PurchaseRecord{
		UID:       row.UID,
		Buyer:     row.Buyer,
		TierID:    row.TierID,
		Seq:       row.Seq,
		Amount:    amount,
		Payment:   payment,
		Timestamp: row.Timestamp.UTC(),
	}, nil
}

func claimStateFromRow(row schema.ClaimState) (domain.ClaimState, error) {
	claimed, err := domain.ParseAmount(row.CumulativeClaimed)
	if err != nil {
		return domain.ClaimState{}, fmt.Errorf("claim state %s: invalid counter: %w", row.Buyer, err)
	}

	return domain.ClaimState{
		Buyer:             row.Buyer,
		CumulativeClaimed: claimed,
		LastClaimAt:       row.LastClaimAt,
	}, nil
}
