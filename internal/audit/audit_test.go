package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "zykor/pkg/domain"
)

// MemoryStoreSuite tests the bounded ring-buffer store.
//
// Justification: the buffer must overwrite oldest-first under sustained load
// and must never return entries out of order; both are easy to break when
// wrapping indices by hand.
type MemoryStoreSuite struct {
	suite.Suite
	ctx context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) event(n int, subject string) Event {
	return Event{
		ID:        id.NewEntryID(),
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute),
		Action:    fmt.Sprintf("action-%d", n),
		SubjectID: id.SubjectID(subject),
		Actor:     "system",
	}
}

func (s *MemoryStoreSuite) TestAppendAndListNewestFirst() {
	store := NewMemoryStore(10)
	for i := 0; i < 3; i++ {
		s.Require().NoError(store.Append(s.ctx, s.event(i, "cust-1")))
	}

	got, err := store.ListBySubject(s.ctx, "cust-1", 0)
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal("action-2", got[0].Action)
	s.Equal("action-0", got[2].Action)
}

func (s *MemoryStoreSuite) TestRingOverwritesOldest() {
	store := NewMemoryStore(3)
	for i := 0; i < 5; i++ {
		s.Require().NoError(store.Append(s.ctx, s.event(i, "cust-1")))
	}
	s.Equal(3, store.Len())

	got, err := store.ListBySubject(s.ctx, "cust-1", 0)
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal("action-4", got[0].Action)
	s.Equal("action-2", got[2].Action)
}

func (s *MemoryStoreSuite) TestListUnknownSubject() {
	store := NewMemoryStore(10)
	s.Require().NoError(store.Append(s.ctx, s.event(0, "cust-1")))

	_, err := store.ListBySubject(s.ctx, "cust-2", 0)
	s.ErrorIs(err, ErrNotFound)
}

func (s *MemoryStoreSuite) TestListHonorsLimit() {
	store := NewMemoryStore(10)
	for i := 0; i < 5; i++ {
		s.Require().NoError(store.Append(s.ctx, s.event(i, "cust-1")))
	}

	got, err := store.ListBySubject(s.ctx, "cust-1", 2)
	s.Require().NoError(err)
	s.Len(got, 2)
	s.Equal("action-4", got[0].Action)
}

func (s *MemoryStoreSuite) TestPurgeOlderThan() {
	store := NewMemoryStore(10)
	for i := 0; i < 5; i++ {
		s.Require().NoError(store.Append(s.ctx, s.event(i, "cust-1")))
	}

	cutoff := time.Date(2026, 1, 1, 0, 3, 0, 0, time.UTC)
	purged, err := store.PurgeOlderThan(s.ctx, cutoff)
	s.Require().NoError(err)
	s.Equal(3, purged)
	s.Equal(2, store.Len())

	got, err := store.ListBySubject(s.ctx, "cust-1", 0)
	s.Require().NoError(err)
	s.Equal("action-4", got[0].Action)
	s.Equal("action-3", got[1].Action)
}

// failingStore always errors, for exercising the publisher's best-effort path.
type failingStore struct{}

func (failingStore) Append(context.Context, Event) error { return errors.New("store down") }
func (failingStore) ListBySubject(context.Context, string, int) ([]Event, error) {
	return nil, ErrNotFound
}
func (failingStore) PurgeOlderThan(context.Context, time.Time) (int, error) {
	return 0, errors.New("store down")
}

// PublisherSuite tests the audit write facade.
//
// Justification: auditing is best-effort; a failing store must never
// surface to the operation being audited, and the async path must flush
// on close so shutdown does not lose buffered evidence.
type PublisherSuite struct {
	suite.Suite
	ctx    context.Context
	logger *slog.Logger
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.Default()
}

func (s *PublisherSuite) TestRecordStampsEvent() {
	store := NewMemoryStore(10)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	pub := NewPublisher(store, s.logger, WithClock(func() time.Time { return now }))

	pub.Record(s.ctx, "consent_recorded", "cust-1", "api", map[string]string{"purpose": "marketing"})

	got, err := store.ListBySubject(s.ctx, "cust-1", 0)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("consent_recorded", got[0].Action)
	s.Equal("api", got[0].Actor)
	s.Equal(now, got[0].Timestamp)
	s.False(got[0].ID.IsNil())
}

func (s *PublisherSuite) TestFailingStoreDoesNotPanic() {
	pub := NewPublisher(failingStore{}, s.logger)
	s.NotPanics(func() {
		pub.Record(s.ctx, "consent_recorded", "cust-1", "api", nil)
	})
}

func (s *PublisherSuite) TestAsyncFlushesOnClose() {
	store := NewMemoryStore(100)
	pub := NewPublisher(store, s.logger, WithAsync(64))

	for i := 0; i < 10; i++ {
		pub.Record(s.ctx, "data_processing", "cust-1", "system", nil)
	}
	pub.Close()

	got, err := store.ListBySubject(s.ctx, "cust-1", 0)
	s.Require().NoError(err)
	s.Len(got, 10)
}
