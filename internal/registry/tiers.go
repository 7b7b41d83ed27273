package registry

import (
	"fmt"
	"time"

	"github.com/tokenforge/presale-engine/internal/adapter"
	"github.com/tokenforge/presale-engine/internal/domain"
)

// tierEntry is the JSON shape of one tier in the tiers file. Amounts are
// base-unit integer strings, same as everywhere else in the system.
type tierEntry struct {
	ID              int64      `json:"id"`
	Price           string     `json:"price"`
	TotalAllocation string     `json:"total_allocation"`
	MinPurchase     string     `json:"min_purchase"`
	MaxPurchase     string     `json:"max_purchase"`
	TGEPercent      int        `json:"tge_percent"`
	VestingMonths   int        `json:"vesting_months"`
	StartsAt        *time.Time `json:"starts_at"`
	EndsAt          *time.Time `json:"ends_at"`
}

// LoadTiers loads and validates the tier table from a JSON file. The file is
// the single source of tier configuration; it is validated as a whole so a
// misconfigured sale fails at startup, not at the first purchase.
func LoadTiers(fs adapter.FileSystem, jsonAdapter adapter.JSON, filePath string) ([]domain.SaleTier, error) {
	data, err := fs.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tiers file: %w", err)
	}

	var entries []tierEntry
	if err := jsonAdapter.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse tiers JSON: %w", err)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("tiers file %s defines no tiers", filePath)
	}

	tiers := make([]domain.SaleTier, 0, len(entries))
	lastID := int64(0)
	for _, entry := range entries {
		tier, err := buildTier(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid tier %d: %w", entry.ID, err)
		}

		if tier.ID <= lastID {
			return nil, fmt.Errorf("invalid tier %d: ids must be positive and strictly increasing", entry.ID)
		}
		lastID = tier.ID

		tiers = append(tiers, tier)
	}

	return tiers, nil
}

func buildTier(entry tierEntry) (domain.SaleTier, error) {
	price, err := domain.ParseAmount(entry.Price)
	if err != nil {
		return domain.SaleTier{}, fmt.Errorf("price: %w", err)
	}
	if price.Sign() <= 0 {
		return domain.SaleTier{}, fmt.Errorf("price must be positive")
	}

	totalAllocation, err := domain.ParseAmount(entry.TotalAllocation)
	if err != nil {
		return domain.SaleTier{}, fmt.Errorf("total_allocation: %w", err)
	}
	if totalAllocation.Sign() <= 0 {
		return domain.SaleTier{}, fmt.Errorf("total_allocation must be positive")
	}

	minPurchase, err := domain.ParseAmount(entry.MinPurchase)
	if err != nil {
		return domain.SaleTier{}, fmt.Errorf("min_purchase: %w", err)
	}

	maxPurchase, err := domain.ParseAmount(entry.MaxPurchase)
	if err != nil {
		return domain.SaleTier{}, fmt.Errorf("max_purchase: %w", err)
	}

	if minPurchase.Cmp(maxPurchase) > 0 {
		return domain.SaleTier{}, fmt.Errorf("min_purchase exceeds max_purchase")
	}
	if maxPurchase.Cmp(totalAllocation) > 0 {
		return domain.SaleTier{}, fmt.Errorf("max_purchase exceeds total_allocation")
	}

	if entry.TGEPercent < 0 || entry.TGEPercent > 100 {
		return domain.SaleTier{}, fmt.Errorf("tge_percent must be between 0 and 100")
	}
	if entry.VestingMonths < 0 {
		return domain.SaleTier{}, fmt.Errorf("vesting_months must not be negative")
	}

	if entry.StartsAt != nil && entry.EndsAt != nil && !entry.StartsAt.Before(*entry.EndsAt) {
		return domain.SaleTier{}, fmt.Errorf("starts_at must be before ends_at")
	}
	if entry.StartsAt == nil && entry.EndsAt != nil {
		return domain.SaleTier{}, fmt.Errorf("ends_at requires starts_at")
	}

	return domain.SaleTier{
		ID:              entry.ID,
		Price:           price,
		TotalAllocation: totalAllocation,
		Sold:            domain.NewAmount(0),
		MinPurchase:     minPurchase,
		MaxPurchase:     maxPurchase,
		TGEPercent:      entry.TGEPercent,
		VestingMonths:   entry.VestingMonths,
		StartsAt:        entry.StartsAt,
		EndsAt:          entry.EndsAt,
	}, nil
}
