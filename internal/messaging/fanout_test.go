package messaging_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenforge/presale-engine/internal/domain"
	"github.com/tokenforge/presale-engine/internal/messaging"
	"github.com/tokenforge/presale-engine/internal/mocks"
)

func TestFanout(t *testing.T) {
	event := &domain.SettlementEvent{
		Type:      domain.EventTypePurchaseAdmitted,
		Buyer:     "0xabcd567890123456789012345678901234567890",
		Amount:    domain.MustAmount("100"),
		Timestamp: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
	}

	t.Run("delivers to every publisher", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		first := mocks.NewMockPublisher(ctrl)
		second := mocks.NewMockPublisher(ctrl)
		first.EXPECT().PublishSettlement(gomock.Any(), event).Return(nil)
		second.EXPECT().PublishSettlement(gomock.Any(), event).Return(nil)

		fanout := messaging.NewFanout(first, second)
		require.NoError(t, fanout.PublishSettlement(context.Background(), event))
	})

	t.Run("a failing publisher does not stop the others", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		first := mocks.NewMockPublisher(ctrl)
		second := mocks.NewMockPublisher(ctrl)
		first.EXPECT().PublishSettlement(gomock.Any(), event).Return(assert.AnError)
		second.EXPECT().PublishSettlement(gomock.Any(), event).Return(nil)

		fanout := messaging.NewFanout(first, second)
		err := fanout.PublishSettlement(context.Background(), event)
		require.ErrorIs(t, err, assert.AnError)
	})

	t.Run("close closes every publisher", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		first := mocks.NewMockPublisher(ctrl)
		second := mocks.NewMockPublisher(ctrl)
		first.EXPECT().Close()
		second.EXPECT().Close()

		messaging.NewFanout(first, second).Close()
	})
}
