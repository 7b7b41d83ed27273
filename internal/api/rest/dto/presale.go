package dto

import (
	"time"

	"github.com/tokenforge/presale-engine/internal/domain"
	"github.com/tokenforge/presale-engine/internal/engine"
)

// TierResponse is the wire representation of a sale tier. All amounts are
// base-unit integer strings.
type TierResponse struct {
	ID              int64      `json:"id"`
	Price           string     `json:"price"`
	TotalAllocation string     `json:"total_allocation"`
	Sold            string     `json:"sold"`
	Remaining       string     `json:"remaining"`
	MinPurchase     string     `json:"min_purchase"`
	MaxPurchase     string     `json:"max_purchase"`
	TGEPercent      int        `json:"tge_percent"`
	VestingMonths   int        `json:"vesting_months"`
	StartsAt        *time.Time `json:"starts_at,omitempty"`
	EndsAt          *time.Time `json:"ends_at,omitempty"`
	Exhausted       bool       `json:"exhausted"`
}

// NewTierResponse maps a domain tier to its wire representation
func NewTierResponse(tier domain.SaleTier) TierResponse {
	return TierResponse{
		ID:              tier.ID,
		Price:           tier.Price.String(),
		TotalAllocation: tier.TotalAllocation.String(),
		Sold:            tier.Sold.String(),
		Remaining:       tier.Remaining().String(),
		MinPurchase:     tier.MinPurchase.String(),
		MaxPurchase:     tier.MaxPurchase.String(),
		TGEPercent:      tier.TGEPercent,
		VestingMonths:   tier.VestingMonths,
		StartsAt:        tier.StartsAt,
		EndsAt:          tier.EndsAt,
		Exhausted:       tier.Exhausted(),
	}
}

// NewTierResponses maps a tier list to wire representations
func NewTierResponses(tiers []domain.SaleTier) []TierResponse {
	responses := make([]TierResponse, 0, len(tiers))
	for _, tier := range tiers {
		responses = append(responses, NewTierResponse(tier))
	}
	return responses
}

// PurchaseRequest is the body of POST /purchases
type PurchaseRequest struct {
	Buyer  string `json:"buyer" binding:"required"`
	TierID int64  `json:"tier_id" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// PurchaseResponse is the wire representation of an admitted purchase
type PurchaseResponse struct {
	UID       string    `json:"uid"`
	Buyer     string    `json:"buyer"`
	TierID    int64     `json:"tier_id"`
	Seq       int       `json:"seq"`
	Amount    string    `json:"amount"`
	Payment   string    `json:"payment"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPurchaseResponse maps a purchase record to its wire representation
func NewPurchaseResponse(record domain.PurchaseRecord) PurchaseResponse {
	return PurchaseResponse{
		UID:       record.UID,
		Buyer:     record.Buyer,
		TierID:    record.TierID,
		Seq:       record.Seq,
		Amount:    record.Amount.String(),
		Payment:   record.Payment.String(),
		Timestamp: record.Timestamp,
	}
}

// NewPurchaseResponses maps a purchase history to wire representations
func NewPurchaseResponses(records []domain.PurchaseRecord) []PurchaseResponse {
	responses := make([]PurchaseResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, NewPurchaseResponse(record))
	}
	return responses
}

// ClaimRequest is the body of POST /claims
type ClaimRequest struct {
	Buyer string `json:"buyer" binding:"required"`
}

// ClaimResponse is the outcome of a claim submission. Settled false means
// nothing had unlocked, which is a successful no-op.
type ClaimResponse struct {
	Buyer   string    `json:"buyer"`
	Amount  string    `json:"amount"`
	Settled bool      `json:"settled"`
	At      time.Time `json:"at"`
}

// NewClaimResponse maps a claim result to its wire representation
func NewClaimResponse(result *engine.ClaimResult) ClaimResponse {
	return ClaimResponse{
		Buyer:   result.Buyer,
		Amount:  result.Amount.String(),
		Settled: result.Settled,
		At:      result.At,
	}
}

// ClaimableResponse is the claim preview read model
type ClaimableResponse struct {
	Buyer        string     `json:"buyer"`
	Purchased    string     `json:"purchased"`
	Unlocked     string     `json:"unlocked"`
	Claimed      string     `json:"claimed"`
	Claimable    string     `json:"claimable"`
	NextUnlockAt *time.Time `json:"next_unlock_at,omitempty"`
}

// NewClaimableResponse maps a claimable breakdown to its wire representation
func NewClaimableResponse(breakdown *engine.ClaimableBreakdown) ClaimableResponse {
	return ClaimableResponse{
		Buyer:        breakdown.Buyer,
		Purchased:    breakdown.Purchased.String(),
		Unlocked:     breakdown.Unlocked.String(),
		Claimed:      breakdown.Claimed.String(),
		Claimable:    breakdown.Claimable.String(),
		NextUnlockAt: breakdown.NextUnlockAt,
	}
}
