package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/mukando/payment-service/internal/domain"
	"github.com/mukando/payment-service/pkg/logger"
)

// Topics for terminal payment outcomes.
const (
	TopicPaymentCompleted = "payment.completed"
	TopicPaymentFailed    = "payment.failed"
)

// TransactionEvent is the message published for a terminal payment outcome.
// Downstream consumers (the savings-group ledger, notifications) key on the
// transaction reference.
type TransactionEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	Reference     string    `json:"reference"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Status        string    `json:"status"`
	Amount        float64   `json:"amount,omitempty"`
	CurrencyCode  string    `json:"currency_code,omitempty"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// TransactionProducer publishes terminal payment outcomes to Kafka. It
// implements the processor's transaction recorder.
type TransactionProducer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
}

// NewTransactionProducer creates a producer on top of an existing sarama
// sync producer.
func NewTransactionProducer(p sarama.SyncProducer, log *logger.Logger) *TransactionProducer {
	return &TransactionProducer{producer: p, log: log}
}

// RecordCompleted publishes a payment.completed event for a confirmed payment.
func (p *TransactionProducer) RecordCompleted(ctx context.Context, result *domain.PaymentResult) error {
	event := TransactionEvent{
		EventID:       uuid.NewString(),
		EventType:     "payment.completed",
		Reference:     result.Reference,
		TransactionID: result.TransactionID,
		Status:        string(domain.StatusCompleted),
		Amount:        result.Amount,
		CurrencyCode:  result.CurrencyCode,
		PaymentMethod: result.PaymentMethod,
		OccurredAt:    time.Now().UTC(),
	}
	return p.publish(ctx, TopicPaymentCompleted, event)
}

// RecordFailed publishes a payment.failed event with the failure reason.
func (p *TransactionProducer) RecordFailed(ctx context.Context, reference, reason string) error {
	event := TransactionEvent{
		EventID:    uuid.NewString(),
		EventType:  "payment.failed",
		Reference:  reference,
		Status:     string(domain.StatusFailed),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
	return p.publish(ctx, TopicPaymentFailed, event)
}

func (p *TransactionProducer) publish(ctx context.Context, topic string, event TransactionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal transaction event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.Reference),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.EventType)},
			{Key: []byte("event_id"), Value: []byte(event.EventID)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send %s event: %w", event.EventType, err)
	}

	p.log.Debugw("published transaction event",
		"topic", topic,
		"reference", event.Reference,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

// Close shuts down the underlying sarama producer.
func (p *TransactionProducer) Close() error {
	return p.producer.Close()
}
