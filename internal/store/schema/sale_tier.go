package schema

import (
	"time"
)

// SaleTier represents the sale_tiers table - one priced, capped sale phase.
// Rows are written once at seed time; only the sold counter is mutated, and
// only inside the atomic admission transaction.
type SaleTier struct {
	// ID is the tier ordering key (1-based, assigned by seed data)
	ID int64 `gorm:"column:id;primaryKey"`
	// Price is the payment amount per whole token in smallest payment units (up to 78 digits)
	Price string `gorm:"column:price;not null;type:numeric(78,0)"`
	// TotalAllocation is the maximum token base units this tier may sell
	TotalAllocation string `gorm:"column:total_allocation;not null;type:numeric(78,0)"`
	// Sold is the running sum of admitted purchase amounts
	Sold string `gorm:"column:sold;not null;default:0;type:numeric(78,0)"`
	// MinPurchase is the minimum token amount for a single purchase
	MinPurchase string `gorm:"column:min_purchase;not null;type:numeric(78,0)"`
	// MaxPurchase caps a buyer's running total within the tier
	MaxPurchase string `gorm:"column:max_purchase;not null;type:numeric(78,0)"`
	// TGEPercent is the immediately unlocked share of a purchase (0-100)
	TGEPercent int `gorm:"column:tge_percent;not null"`
	// VestingMonths is the linear vesting duration of the non-TGE remainder
	VestingMonths int `gorm:"column:vesting_months;not null"`
	// StartsAt opens the activity window; NULL means the tier activates on predecessor exhaustion
	StartsAt *time.Time `gorm:"column:starts_at;type:timestamptz"`
	// EndsAt closes the activity window (exclusive); NULL means no fixed end
	EndsAt *time.Time `gorm:"column:ends_at;type:timestamptz"`
	// CreatedAt is the timestamp when this tier was seeded
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this tier was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the SaleTier model
func (SaleTier) TableName() string {
	return "sale_tiers"
}
