package hooks

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

// AnalyticsHookSuite tests the deletion tombstone publisher.
//
// Justification: the erasure response tells the subject which systems were
// purged; claiming "analytics" requires an acknowledged produce, so a broker
// failure must surface as a hook failure rather than a silent drop.
type AnalyticsHookSuite struct {
	suite.Suite
	ctx      context.Context
	producer *mocks.MockProducer
	hook     *AnalyticsHook
	now      time.Time
}

func TestAnalyticsHookSuite(t *testing.T) {
	suite.Run(t, new(AnalyticsHookSuite))
}

func (s *AnalyticsHookSuite) SetupTest() {
	s.ctx = context.Background()
	s.producer = mocks.NewMockProducer(gomock.NewController(s.T()))
	s.hook = NewAnalyticsHook(s.producer, "privacy.deletions")
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.hook.now = func() time.Time { return s.now }
}

func (s *AnalyticsHookSuite) TestPublishesTombstone() {
	var captured *producer.Message
	s.producer.EXPECT().
		Produce(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg *producer.Message) error {
			captured = msg
			return nil
		})

	s.Require().NoError(s.hook.DeleteSubjectData(s.ctx, "cust-1"))

	s.Require().NotNil(captured)
	s.Equal("privacy.deletions", captured.Topic)
	s.Equal("cust-1", string(captured.Key))

	var event struct {
		SubjectID string    `json:"subject_id"`
		Reason    string    `json:"reason"`
		Timestamp time.Time `json:"timestamp"`
	}
	s.Require().NoError(json.Unmarshal(captured.Value, &event))
	s.Equal("cust-1", event.SubjectID)
	s.Equal("erasure", event.Reason)
	s.True(event.Timestamp.Equal(s.now))
}

func (s *AnalyticsHookSuite) TestProduceFailureIsHookFailure() {
	s.producer.EXPECT().
		Produce(gomock.Any(), gomock.Any()).
		Return(errors.New("brokers unreachable"))

	s.Error(s.hook.DeleteSubjectData(s.ctx, "cust-1"))
}
