package webhook

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/tokenforge/presale-engine/internal/adapter"
	"github.com/tokenforge/presale-engine/internal/domain"
	"github.com/tokenforge/presale-engine/internal/messaging"
)

// Config holds the webhook notifier configuration
type Config struct {
	// URL is the receiver endpoint settlement events are delivered to
	URL string
	// Secret is the shared HMAC key the receiver verifies signatures with
	Secret string
}

type notifier struct {
	config Config
	http   adapter.HTTPClient
}

// NewNotifier creates a webhook publisher that delivers HMAC-signed
// settlement events to a single receiver endpoint.
func NewNotifier(cfg Config, httpClient adapter.HTTPClient) messaging.Publisher {
	return &notifier{
		config: cfg,
		http:   httpClient,
	}
}

func (n *notifier) PublishSettlement(ctx context.Context, event *domain.SettlementEvent) error {
	wrapped := Event{
		EventID:   ulid.Make().String(),
		EventType: string(event.Type),
		Timestamp: event.Timestamp,
		Data:      *event,
	}

	payload, signature, timestamp, err := GenerateSignedPayload(n.config.Secret, wrapped)
	if err != nil {
		return err
	}

	headers := map[string]string{
		"Content-Type":         "application/json",
		"X-Webhook-Signature":  signature,
		"X-Webhook-Event-ID":   wrapped.EventID,
		"X-Webhook-Event-Type": wrapped.EventType,
		"X-Webhook-Timestamp":  fmt.Sprintf("%d", timestamp),
		"User-Agent":           "Presale-Engine-Webhook/1.0",
	}

	if _, err := n.http.PostWithHeaders(ctx, n.config.URL, headers, payload); err != nil {
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}

	return nil
}

func (n *notifier) Close() {}
