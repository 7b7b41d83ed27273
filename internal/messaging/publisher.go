package messaging

import (
	"context"

	"github.com/tokenforge/presale-engine/internal/domain"
)

// Publisher defines the interface for publishing settlement events to a
// message broker. Publishing is best-effort: a failed publish never rolls
// back the ledger write it announces.
//
//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// PublishSettlement publishes an admitted purchase or settled claim
	PublishSettlement(ctx context.Context, event *domain.SettlementEvent) error
	// Close closes the connection
	Close()
}
