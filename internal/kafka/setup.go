package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/mukando/payment-service/internal/kafka/producer"
	"github.com/mukando/payment-service/pkg/logger"
)

// EnsureTopics creates the payment event topics if they do not exist yet.
// Uses kafka-go for the admin round trip; the producer itself runs on
// sarama.
func EnsureTopics(brokers []string, log *logger.Logger) error {
	if len(brokers) == 0 || brokers[0] == "" {
		return errors.New("kafka broker address is empty")
	}

	required := []kafkaGo.TopicConfig{
		{Topic: producer.TopicPaymentCompleted, NumPartitions: 3, ReplicationFactor: 1},
		{Topic: producer.TopicPaymentFailed, NumPartitions: 3, ReplicationFactor: 1},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, err := kafkaGo.DialLeader(ctx, "tcp", brokers[0], "", 0)
	if err != nil {
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("kafka read partitions failed: %w", err)
	}

	existing := make(map[string]bool)
	for _, p := range partitions {
		existing[p.Topic] = true
	}

	var missing []kafkaGo.TopicConfig
	for _, tc := range required {
		if !existing[tc.Topic] {
			missing = append(missing, tc)
		}
	}
	if len(missing) == 0 {
		log.Debugw("all payment topics already exist")
		return nil
	}

	if err := conn.CreateTopics(missing...); err != nil {
		if errors.Is(err, kafkaGo.TopicAlreadyExists) {
			return nil
		}
		return fmt.Errorf("kafka create topics failed: %w", err)
	}

	log.Infow("created payment topics", "count", len(missing))
	return nil
}
