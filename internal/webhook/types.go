package webhook

import (
	"time"

	"github.com/tokenforge/presale-engine/internal/domain"
)

// Event is a signed webhook envelope around a settlement event
type Event struct {
	// EventID is a unique identifier for this event (ULID for time-sortable uniqueness)
	EventID string `json:"event_id"`
	// EventType mirrors the settlement event type (e.g. "purchase.admitted")
	EventType string `json:"event_type"`
	// Timestamp is when the event was generated
	Timestamp time.Time `json:"timestamp"`
	// Data contains the settlement payload
	Data domain.SettlementEvent `json:"data"`
}
