package consent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"zykor/internal/platform/kafka/producer"
	id "zykor/pkg/domain"
)

// HaltNotifier tells downstream processors to stop processing under a
// withdrawn consent. Withdrawal halts future processing only; records of past
// processing remain as evidence.
type HaltNotifier interface {
	NotifyWithdrawal(ctx context.Context, subjectID id.SubjectID, purpose string, at time.Time) error
}

// KafkaHaltNotifier publishes withdrawal halts to a Kafka topic consumed by
// every processor that acts on consent.
type KafkaHaltNotifier struct {
	producer producer.Producer
	topic    string
}

// NewKafkaHaltNotifier creates a notifier publishing to topic.
func NewKafkaHaltNotifier(p producer.Producer, topic string) *KafkaHaltNotifier {
	return &KafkaHaltNotifier{producer: p, topic: topic}
}

type haltEvent struct {
	SubjectID string    `json:"subject_id"`
	Purpose   string    `json:"purpose"`
	HaltedAt  time.Time `json:"halted_at"`
}

func (n *KafkaHaltNotifier) NotifyWithdrawal(ctx context.Context, subjectID id.SubjectID, purpose string, at time.Time) error {
	payload, err := json.Marshal(haltEvent{
		SubjectID: subjectID.String(),
		Purpose:   purpose,
		HaltedAt:  at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal halt event: %w", err)
	}
	if err := n.producer.Produce(ctx, &producer.Message{
		Topic: n.topic,
		Key:   []byte(subjectID.String()),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("publish halt event: %w", err)
	}
	return nil
}

// NoopHaltNotifier discards halt notifications. Used when Kafka is not
// configured and in tests.
type NoopHaltNotifier struct{}

func (NoopHaltNotifier) NotifyWithdrawal(context.Context, id.SubjectID, string, time.Time) error {
	return nil
}
