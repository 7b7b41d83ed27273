package domain

import (
	"time"
)

// PurchaseRecord is one admitted purchase. Records are append-only: created
// by the allocation ledger on successful admission, immutable afterwards,
// never deleted. Identity is (Buyer, TierID, Seq); UID is a ULID reference
// handed to external systems.
type PurchaseRecord struct {
	UID       string
	Buyer     string
	TierID    int64
	Seq       int
	Amount    Amount
	Payment   Amount
	Timestamp time.Time
}

// ClaimState is the per-buyer cumulative-claimed counter. CumulativeClaimed
// is monotonically non-decreasing and never exceeds the buyer's total
// unlocked amount. Mutated only by the atomic claim operation.
type ClaimState struct {
	Buyer             string
	CumulativeClaimed Amount
	LastClaimAt       *time.Time
}
