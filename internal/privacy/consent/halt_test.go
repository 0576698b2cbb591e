package consent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"zykor/internal/platform/kafka/producer"
	"zykor/internal/platform/kafka/producer/mocks"
)

// HaltNotifierSuite tests withdrawal halt publishing.
//
// Justification: withdrawal halts future processing through this event;
// consumers key their halt state off the payload, so its shape and the
// subject-keyed partitioning are contract.
type HaltNotifierSuite struct {
	suite.Suite
	ctx      context.Context
	producer *mocks.MockProducer
	notifier *KafkaHaltNotifier
}

func TestHaltNotifierSuite(t *testing.T) {
	suite.Run(t, new(HaltNotifierSuite))
}

func (s *HaltNotifierSuite) SetupTest() {
	s.ctx = context.Background()
	s.producer = mocks.NewMockProducer(gomock.NewController(s.T()))
	s.notifier = NewKafkaHaltNotifier(s.producer, "privacy.halts")
}

func (s *HaltNotifierSuite) TestPublishesHaltEvent() {
	at := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	var captured *producer.Message
	s.producer.EXPECT().
		Produce(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg *producer.Message) error {
			captured = msg
			return nil
		})

	s.Require().NoError(s.notifier.NotifyWithdrawal(s.ctx, "cust-1", "marketing", at))

	s.Require().NotNil(captured)
	s.Equal("privacy.halts", captured.Topic)
	s.Equal("cust-1", string(captured.Key))

	var event struct {
		SubjectID string    `json:"subject_id"`
		Purpose   string    `json:"purpose"`
		HaltedAt  time.Time `json:"halted_at"`
	}
	s.Require().NoError(json.Unmarshal(captured.Value, &event))
	s.Equal("cust-1", event.SubjectID)
	s.Equal("marketing", event.Purpose)
	s.True(event.HaltedAt.Equal(at))
}

func (s *HaltNotifierSuite) TestProduceFailurePropagates() {
	s.producer.EXPECT().
		Produce(gomock.Any(), gomock.Any()).
		Return(errors.New("brokers unreachable"))

	s.Error(s.notifier.NotifyWithdrawal(s.ctx, "cust-1", "marketing", time.Now()))
}
