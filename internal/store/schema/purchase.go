package schema

import (
	"time"

	"gorm.io/datatypes"
)

// Purchase represents the purchases table - the append-only log of admitted
// purchases. Rows are created inside the admission transaction, are immutable
// afterwards, and are never deleted.
type Purchase struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// UID is the ULID reference handed to external systems
	UID string `gorm:"column:uid;not null;uniqueIndex;type:text"`
	// Buyer is the canonical (lowercase) buyer address
	Buyer string `gorm:"column:buyer;not null;type:text;index:idx_purchases_buyer;uniqueIndex:idx_purchases_buyer_tier_seq,priority:1"`
	// TierID references the tier the purchase was admitted into
	TierID int64 `gorm:"column:tier_id;not null;index:idx_purchases_tier;uniqueIndex:idx_purchases_buyer_tier_seq,priority:2"`
	// Seq is the buyer's purchase sequence number within the tier
	Seq int `gorm:"column:seq;not null;uniqueIndex:idx_purchases_buyer_tier_seq,priority:3"`
	// Amount is the purchased token amount in base units
	Amount string `gorm:"column:amount;not null;type:numeric(78,0)"`
	// Payment is the payment amount in smallest payment units
	Payment string `gorm:"column:payment;not null;type:numeric(78,0)"`
	// Raw carries opaque payment metadata supplied by the purchase workflow
	Raw datatypes.JSON `gorm:"column:raw;type:jsonb"`
	// Timestamp is the admission instant (UTC) used by the vesting schedule
	Timestamp time.Time `gorm:"column:timestamp;not null;type:timestamptz"`
	// CreatedAt is the timestamp when this row was inserted
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`

	// Associations
	Tier SaleTier `gorm:"foreignKey:TierID;constraint:OnDelete:RESTRICT"`
}

// TableName specifies the table name for the Purchase model
func (Purchase) TableName() string {
	return "purchases"
}
