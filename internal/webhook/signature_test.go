package webhook_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenforge/presale-engine/internal/domain"
	"github.com/tokenforge/presale-engine/internal/webhook"
)

func TestGenerateSignedPayload(t *testing.T) {
	event := webhook.Event{
		EventID:   "01JG8XAMPLE1234567890123456",
		EventType: string(domain.EventTypePurchaseAdmitted),
		Timestamp: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
		Data: domain.SettlementEvent{
			Type:        domain.EventTypePurchaseAdmitted,
			Buyer:       "0xabcd567890123456789012345678901234567890",
			TierID:      1,
			PurchaseUID: "01JG8XAMPLE1234567890123457",
			Amount:      domain.MustAmount("100"),
			Timestamp:   time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
		},
	}

	t.Run("generates a verifiable signature", func(t *testing.T) {
		secret := "test-secret-key"

		payload, signature, timestamp, err := webhook.GenerateSignedPayload(secret, event)
		require.NoError(t, err)
		require.NotEmpty(t, payload)
		assert.Greater(t, timestamp, int64(0))

		// Recompute the signature the way a receiving client would
		signaturePayload := fmt.Sprintf("%d.%s.%s", timestamp, event.EventID, string(payload))
		h := hmac.New(sha256.New, []byte(secret))
		h.Write([]byte(signaturePayload))
		expected := "sha256=" + hex.EncodeToString(h.Sum(nil))
		assert.Equal(t, expected, signature)
	})

	t.Run("payload round-trips the settlement event", func(t *testing.T) {
		payload, _, _, err := webhook.GenerateSignedPayload("secret", event)
		require.NoError(t, err)

		var decoded webhook.Event
		require.NoError(t, json.Unmarshal(payload, &decoded))
		assert.Equal(t, event.EventID, decoded.EventID)
		assert.Equal(t, event.Data.Buyer, decoded.Data.Buyer)
		assert.Equal(t, "100", decoded.Data.Amount.String())
	})

	t.Run("different secrets produce different signatures", func(t *testing.T) {
		_, sig1, _, err := webhook.GenerateSignedPayload("secret-one", event)
		require.NoError(t, err)
		_, sig2, _, err := webhook.GenerateSignedPayload("secret-two", event)
		require.NoError(t, err)
		assert.NotEqual(t, sig1, sig2)
	})
}
