package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"zykor/internal/platform/kafka/producer"
	id "zykor/pkg/domain"
)

// AnalyticsHook publishes a deletion event so the analytics pipeline can
// purge its own copies. Downstream consumers treat the event as a tombstone
// for everything keyed to the subject.
type AnalyticsHook struct {
	producer producer.Producer
	topic    string
	now      func() time.Time
}

// NewAnalyticsHook creates a hook publishing deletions to topic.
func NewAnalyticsHook(p producer.Producer, topic string) *AnalyticsHook {
	return &AnalyticsHook{producer: p, topic: topic, now: time.Now}
}

func (h *AnalyticsHook) Name() string { return "analytics" }

type deletionEvent struct {
	SubjectID string    `json:"subject_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *AnalyticsHook) DeleteSubjectData(ctx context.Context, subjectID id.SubjectID) error {
	payload, err := json.Marshal(deletionEvent{
		SubjectID: subjectID.String(),
		Reason:    "erasure",
		Timestamp: h.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal deletion event: %w", err)
	}

	// Synchronous produce: the erasure response claims this system was
	// affected, so delivery must be acknowledged.
	if err := h.producer.Produce(ctx, &producer.Message{
		Topic: h.topic,
		Key:   []byte(subjectID.String()),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("publish deletion event: %w", err)
	}
	return nil
}
