package producer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukando/payment-service/internal/domain"
	"github.com/mukando/payment-service/pkg/logger"
)

func TestRecordCompleted_PublishesEvent(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var event TransactionEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		assert.Equal(t, "payment.completed", event.EventType)
		assert.Equal(t, "MKD123ABC", event.Reference)
		assert.Equal(t, "TXN-42", event.TransactionID)
		assert.Equal(t, string(domain.StatusCompleted), event.Status)
		assert.Equal(t, 50.0, event.Amount)
		assert.Equal(t, "USD", event.CurrencyCode)
		assert.NotEmpty(t, event.EventID)
		assert.False(t, event.OccurredAt.IsZero())
		return nil
	})

	p := NewTransactionProducer(mock, logger.NewNop())
	err := p.RecordCompleted(context.Background(), &domain.PaymentResult{
		Success:       true,
		Status:        domain.StatusCompleted,
		Reference:     "MKD123ABC",
		TransactionID: "TXN-42",
		Amount:        50.0,
		CurrencyCode:  "USD",
		PaymentMethod: domain.MethodEcocash,
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestRecordFailed_PublishesReason(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var event TransactionEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		assert.Equal(t, "payment.failed", event.EventType)
		assert.Equal(t, "MKD999ZZZ", event.Reference)
		assert.Equal(t, "insufficient funds", event.Reason)
		assert.Equal(t, string(domain.StatusFailed), event.Status)
		return nil
	})

	p := NewTransactionProducer(mock, logger.NewNop())
	err := p.RecordFailed(context.Background(), "MKD999ZZZ", "insufficient funds")
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestPublish_BrokerErrorSurfaces(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(assert.AnError)

	p := NewTransactionProducer(mock, logger.NewNop())
	err := p.RecordFailed(context.Background(), "MKD999ZZZ", "declined")
	require.Error(t, err)
	require.NoError(t, p.Close())
}

func TestPublish_CancelledContext(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewTransactionProducer(mock, logger.NewNop())
	err := p.RecordFailed(ctx, "MKD999ZZZ", "declined")
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, p.Close())
}
