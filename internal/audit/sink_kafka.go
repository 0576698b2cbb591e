package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"zykor/internal/platform/kafka/producer"
)

// KafkaTee wraps a primary store and mirrors every appended entry onto a
// Kafka topic for downstream SIEM and compliance consumers. The primary store
// is the source of truth; the mirror is fire-and-forget.
type KafkaTee struct {
	primary  Store
	producer producer.Producer
	topic    string
	logger   *slog.Logger
}

// NewKafkaTee wraps primary so appends also publish to topic.
func NewKafkaTee(primary Store, p producer.Producer, topic string, logger *slog.Logger) *KafkaTee {
	return &KafkaTee{primary: primary, producer: p, topic: topic, logger: logger}
}

func (t *KafkaTee) Append(ctx context.Context, event Event) error {
	if err := t.primary.Append(ctx, event); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		t.logger.Error("marshal audit event for kafka", "error", err)
		return nil
	}
	if err := t.producer.ProduceAsync(&producer.Message{
		Topic: t.topic,
		Key:   []byte(event.SubjectID.String()),
		Value: payload,
	}); err != nil {
		t.logger.Error("mirror audit event to kafka", "error", err, "action", event.Action)
	}
	return nil
}

func (t *KafkaTee) ListBySubject(ctx context.Context, subjectID string, limit int) ([]Event, error) {
	return t.primary.ListBySubject(ctx, subjectID, limit)
}

func (t *KafkaTee) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return t.primary.PurgeOlderThan(ctx, cutoff)
}
