package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zykor/internal/audit"
	"zykor/internal/platform/config"
	"zykor/internal/privacy/consent"
	"zykor/internal/privacy/hooks"
	"zykor/internal/privacy/models"
	"zykor/internal/privacy/retention"
	"zykor/internal/privacy/store"
	id "zykor/pkg/domain"
	dErrors "zykor/pkg/domain-errors"
)

// storeEraser deletes from the memory store, optionally failing for chosen
// subjects or blocking until released. It records the reason given for each
// deletion.
type storeEraser struct {
	subjects *store.MemorySubjectStore

	mu      sync.Mutex
	failFor map[id.SubjectID]error
	reasons map[id.SubjectID]string
	entered chan struct{}
	block   chan struct{}
}

func (e *storeEraser) EraseSubject(ctx context.Context, subjectID id.SubjectID, reason string) (hooks.Result, error) {
	if e.entered != nil {
		e.entered <- struct{}{}
	}
	if e.block != nil {
		<-e.block
	}
	e.mu.Lock()
	e.reasons[subjectID] = reason
	err := e.failFor[subjectID]
	e.mu.Unlock()
	if err != nil {
		return hooks.Result{}, err
	}
	if err := e.subjects.Delete(ctx, subjectID); err != nil {
		return hooks.Result{}, err
	}
	return hooks.Result{Affected: []string{"database"}}, nil
}

// ServiceSuite tests the retention cleanup pass.
//
// Justification: cleanup deletes personal data without a human request; the
// eligibility rule, run exclusivity, and best-effort continuation on
// per-subject failure all need to hold or data is lost or leaked.
type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	subjects *store.MemorySubjectStore
	auditLog *audit.MemoryStore
	eraser   *storeEraser
	svc      *Service
	now      time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.subjects = store.NewMemorySubjectStore()
	s.auditLog = audit.NewMemoryStore(1000)
	s.eraser = &storeEraser{
		subjects: s.subjects,
		failFor:  map[id.SubjectID]error{},
		reasons:  map[id.SubjectID]string{},
	}
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	cfg := config.PrivacyConfig{
		ConsentValidityMonths:     24,
		AuditLogRetentionMonths:   60,
		InactivityThresholdMonths: 36,
	}
	auditPub := audit.NewPublisher(s.auditLog, slog.Default())
	consentSvc := consent.NewService(s.subjects, cfg, auditPub, slog.Default(),
		consent.WithClock(func() time.Time { return s.now }),
	)
	s.svc = NewService(
		s.subjects,
		retention.NewEngine(cfg),
		s.eraser,
		consentSvc,
		s.auditLog,
		auditPub,
		cfg,
		slog.Default(),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *ServiceSuite) addConsent(subject id.SubjectID, consentDate time.Time) {
	s.Require().NoError(s.subjects.AppendConsent(s.ctx, &models.ConsentRecord{
		ID:           id.NewConsentID(),
		SubjectID:    subject,
		Purpose:      "marketing",
		LegalBasis:   models.BasisConsent,
		ConsentGiven: true,
		ConsentDate:  consentDate,
	}))
}

func (s *ServiceSuite) TestEmptyRun() {
	summary, err := s.svc.Run(s.ctx)
	s.Require().NoError(err)
	s.Zero(summary.DeletedRecords)
	s.Zero(summary.ExpiredConsents)
	s.Zero(summary.ProcessedRequests)
}

func (s *ServiceSuite) TestWithdrawsExpiredConsents() {
	s.addConsent("cust-1", s.now.AddDate(0, 0, -25*30))
	s.addConsent("cust-1", s.now.AddDate(0, 0, -10))

	// Recent activity keeps the subject itself out of the deletion list.
	summary, err := s.svc.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, summary.ExpiredConsents)
	s.Zero(summary.DeletedRecords)

	subj, err := s.subjects.Get(s.ctx, "cust-1")
	s.Require().NoError(err)
	s.Require().NotNil(subj.Consents[0].WithdrawnDate)
	s.False(subj.Consents[0].ConsentGiven)

	// Scheduler-driven expiry leaves the same audit evidence as a
	// subject-initiated withdrawal.
	entries, err := s.auditLog.ListBySubject(s.ctx, "cust-1", 0)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(models.AuditActionConsentWithdrawn, entries[0].Action)
	s.Equal("validity_expired", entries[0].Details["reason"])
}

func (s *ServiceSuite) TestDeletesSubjectsPastRetention() {
	// Only history is a long-expired consent; inactive past the threshold.
	s.addConsent("cust-old", s.now.AddDate(0, 0, -40*30))
	s.addConsent("cust-active", s.now.AddDate(0, 0, -5))

	summary, err := s.svc.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, summary.DeletedRecords)
	s.Equal(1, summary.ExpiredConsents)

	_, err = s.subjects.Get(s.ctx, "cust-old")
	s.ErrorIs(err, store.ErrNotFound)
	_, err = s.subjects.Get(s.ctx, "cust-active")
	s.NoError(err)

	s.Equal("inactive for more than 36 months with no valid consent", s.eraser.reasons["cust-old"])
}

func (s *ServiceSuite) TestBlockedDeletionIsSkipped() {
	s.addConsent("cust-old", s.now.AddDate(0, 0, -40*30))
	s.eraser.failFor["cust-old"] = dErrors.New(dErrors.CodeErasureBlocked,
		"processing records carry a legal obligation")

	summary, err := s.svc.Run(s.ctx)
	s.Require().NoError(err)
	s.Zero(summary.DeletedRecords)

	_, err = s.subjects.Get(s.ctx, "cust-old")
	s.NoError(err, "blocked subjects are left alone")
}

func (s *ServiceSuite) TestExpiryFeedsSameRunDeletion() {
	// Consent expired but still marked given; subject inactive past the
	// threshold. Step (a) withdraws it, so step (b) in the same run no
	// longer sees a valid consent keeping the subject.
	s.addConsent("cust-1", s.now.AddDate(0, 0, -40*30))

	summary, err := s.svc.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, summary.ExpiredConsents)
	s.Equal(1, summary.DeletedRecords)
}

func (s *ServiceSuite) TestDeletionFailureDoesNotAbortRun() {
	s.addConsent("cust-a", s.now.AddDate(0, 0, -40*30))
	s.addConsent("cust-b", s.now.AddDate(0, 0, -40*30))
	s.eraser.failFor["cust-a"] = errors.New("downstream unavailable")

	summary, err := s.svc.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, summary.DeletedRecords, "the failing subject is skipped, not fatal")

	// The failed subject remains a candidate for the next run.
	_, err = s.subjects.Get(s.ctx, "cust-a")
	s.NoError(err)
	_, err = s.subjects.Get(s.ctx, "cust-b")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *ServiceSuite) TestPurgesAgedAuditEntries() {
	s.Require().NoError(s.auditLog.Append(s.ctx, audit.Event{
		ID:        id.NewEntryID(),
		Timestamp: s.now.AddDate(0, 0, -61*30),
		Action:    "consent_recorded",
		SubjectID: "cust-1",
	}))
	s.Require().NoError(s.auditLog.Append(s.ctx, audit.Event{
		ID:        id.NewEntryID(),
		Timestamp: s.now.AddDate(0, 0, -1),
		Action:    "consent_recorded",
		SubjectID: "cust-1",
	}))

	summary, err := s.svc.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, summary.PurgedAuditEntries)
}

func (s *ServiceSuite) TestConcurrentRunIsSkipped() {
	s.addConsent("cust-old", s.now.AddDate(0, 0, -40*30))
	s.eraser.entered = make(chan struct{}, 1)
	s.eraser.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.svc.Run(s.ctx)
		s.NoError(err)
	}()

	// Wait until the first run is inside the eraser, then trigger again.
	<-s.eraser.entered
	_, err := s.svc.Run(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	close(s.eraser.block)
	<-done
	s.eraser.entered = nil

	// With the first run finished, a new run proceeds.
	_, err = s.svc.Run(s.ctx)
	s.NoError(err)
}
