package domain

import (
	"time"
)

// SettlementEventType identifies the kind of settlement event.
type SettlementEventType string

const (
	EventTypePurchaseAdmitted SettlementEventType = "purchase.admitted"
	EventTypeClaimSettled     SettlementEventType = "claim.settled"
)

// SettlementEvent is the normalized message published after an admission or
// claim commits. The external on-chain executor consumes these to perform
// the actual token transfers; publishing is best-effort and never part of
// the ledger's atomic state transition.
type SettlementEvent struct {
	Type        SettlementEventType `json:"type"`
	Buyer       string              `json:"buyer"`
	TierID      int64               `json:"tier_id,omitempty"`
	PurchaseUID string              `json:"purchase_uid,omitempty"`
	Amount      Amount              `json:"amount"`
	Timestamp   time.Time           `json:"timestamp"`
}
