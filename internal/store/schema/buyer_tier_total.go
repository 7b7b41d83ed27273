package schema

import (
	"time"
)

// BuyerTierTotal represents the buyer_tier_totals table - the per-(buyer,
// tier) running purchase total used to enforce the per-buyer limit. Mutated
// only inside the atomic admission transaction.
type BuyerTierTotal struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// TierID references the tier being bought into
	TierID int64 `gorm:"column:tier_id;not null;uniqueIndex:idx_buyer_tier_totals_tier_buyer,priority:1"`
	// Buyer is the canonical buyer address
	Buyer string `gorm:"column:buyer;not null;type:text;uniqueIndex:idx_buyer_tier_totals_tier_buyer,priority:2"`
	// Bought is the buyer's cumulative admitted amount within the tier
	Bought string `gorm:"column:bought;not null;default:0;type:numeric(78,0)"`
	// CreatedAt is the timestamp when this counter was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this counter was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`

	// Associations
	Tier SaleTier `gorm:"foreignKey:TierID;constraint:OnDelete:RESTRICT"`
}

// TableName specifies the table name for the BuyerTierTotal model
func (BuyerTierTotal) TableName() string {
	return "buyer_tier_totals"
}
