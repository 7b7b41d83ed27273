package schema

import (
	"time"
)

// ClaimState represents the claim_states table - the per-buyer cumulative
// claimed counter. CumulativeClaimed is monotonically non-decreasing and is
// mutated only inside the atomic claim transaction.
type ClaimState struct {
	// Buyer is the canonical buyer address
	Buyer string `gorm:"column:buyer;primaryKey;type:text"`
	// CumulativeClaimed is the total amount the buyer has ever claimed
	CumulativeClaimed string `gorm:"column:cumulative_claimed;not null;default:0;type:numeric(78,0)"`
	// LastClaimAt is the instant of the most recent successful claim
	LastClaimAt *time.Time `gorm:"column:last_claim_at;type:timestamptz"`
	// CreatedAt is the timestamp when this row was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this row was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the ClaimState model
func (ClaimState) TableName() string {
	return "claim_states"
}
