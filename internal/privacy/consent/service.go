// Package consent implements the consent ledger: an append-only history of
// purpose-scoped grants and withdrawals per data subject.
package consent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"zykor/internal/audit"
	"zykor/internal/platform/config"
	"zykor/internal/privacy/metrics"
	"zykor/internal/privacy/models"
	"zykor/internal/privacy/store"
	id "zykor/pkg/domain"
	dErrors "zykor/pkg/domain-errors"
	"zykor/pkg/platform/keylock"
)

// Service records and withdraws consent. Writes are serialized per subject so
// concurrent operations on one subject cannot interleave; different subjects
// proceed in parallel.
type Service struct {
	subjects store.SubjectStore
	cfg      config.PrivacyConfig
	audit    *audit.Publisher
	logger   *slog.Logger

	locks   *keylock.Map
	halt    HaltNotifier
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithHaltNotifier sets the processor halt notifier invoked on withdrawal.
func WithHaltNotifier(n HaltNotifier) Option {
	return func(s *Service) { s.halt = n }
}

// WithMetrics enables metric collection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocks replaces the per-subject lock map, letting main share one map
// across every service that mutates subject state.
func WithLocks(locks *keylock.Map) Option {
	return func(s *Service) { s.locks = locks }
}

// NewService creates the consent service.
func NewService(subjects store.SubjectStore, cfg config.PrivacyConfig, auditPub *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		subjects: subjects,
		cfg:      cfg,
		audit:    auditPub,
		logger:   logger,
		locks:    keylock.New(),
		halt:     NoopHaltNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordInput carries the evidence captured at the point of consent.
type RecordInput struct {
	SubjectID    id.SubjectID
	Purpose      string
	LegalBasis   models.LegalBasis
	ConsentGiven bool
	Source       string
	IPAddress    string
	UserAgent    string
}

// RecordConsent appends a consent record. Every call appends: a repeat grant
// for the same purpose creates a new record rather than updating the old one,
// so the ledger shows what the subject agreed to and when. The subject is
// created lazily on first contact.
func (s *Service) RecordConsent(ctx context.Context, in RecordInput) (*models.ConsentRecord, error) {
	if in.SubjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject ID is required")
	}
	if in.Purpose == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "purpose is required")
	}
	if !in.LegalBasis.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown legal basis: "+string(in.LegalBasis))
	}

	record := &models.ConsentRecord{
		ID:           id.NewConsentID(),
		SubjectID:    in.SubjectID,
		Purpose:      in.Purpose,
		LegalBasis:   in.LegalBasis,
		ConsentGiven: in.ConsentGiven,
		ConsentDate:  s.now().UTC(),
		Source:       in.Source,
		IPAddress:    in.IPAddress,
		UserAgent:    in.UserAgent,
		Device:       describeDevice(in.UserAgent),
		Version:      s.cfg.ConsentTermsVersion,
	}

	key := in.SubjectID.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if err := s.subjects.AppendConsent(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "append consent record")
	}

	s.metrics.IncConsentRecorded(in.Purpose, in.ConsentGiven)
	s.audit.Record(ctx, models.AuditActionConsentRecorded, in.SubjectID, "api", map[string]string{
		"consent_id":  record.ID.String(),
		"purpose":     in.Purpose,
		"legal_basis": string(in.LegalBasis),
		"given":       boolLabel(in.ConsentGiven),
		"version":     record.Version,
	})
	return record, nil
}

// WithdrawConsent marks the most recent active record for the purpose as
// withdrawn. Returns false with no error when the subject has no active
// consent for the purpose: withdrawing nothing is not a failure.
func (s *Service) WithdrawConsent(ctx context.Context, subjectID id.SubjectID, purpose string) (bool, error) {
	if subjectID.IsNil() {
		return false, dErrors.New(dErrors.CodeInvalidInput, "subject ID is required")
	}
	if purpose == "" {
		return false, dErrors.New(dErrors.CodeInvalidInput, "purpose is required")
	}

	at := s.now().UTC()

	key := subjectID.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	record, err := s.subjects.WithdrawConsent(ctx, subjectID, purpose, at)
	if errors.Is(err, store.ErrNoActiveConsent) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "withdraw consent")
	}

	s.metrics.IncConsentWithdrawn(purpose)
	s.audit.Record(ctx, models.AuditActionConsentWithdrawn, subjectID, "api", map[string]string{
		"consent_id": record.ID.String(),
		"purpose":    purpose,
	})

	if err := s.halt.NotifyWithdrawal(ctx, subjectID, purpose, at); err != nil {
		// The withdrawal itself is committed; downstream halt delivery is
		// retried by consumers reconciling against the ledger.
		s.logger.Error("withdrawal halt notification failed",
			"subject_id", subjectID.String(),
			"purpose", purpose,
			"error", err,
		)
	}
	return true, nil
}

// ExpireConsents withdraws every consent-basis grant that has aged past the
// validity window. Each record gets the same side effects as a
// subject-initiated withdrawal: a consent_withdrawn audit entry and a
// processor halt notification. Invoked by the retention cleanup pass.
func (s *Service) ExpireConsents(ctx context.Context) (int, error) {
	now := s.now().UTC()
	cutoff := now.Add(-time.Duration(s.cfg.ConsentValidityMonths) * 30 * 24 * time.Hour)

	withdrawn, err := s.subjects.WithdrawExpiredConsents(ctx, cutoff, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "withdraw expired consents")
	}

	for _, rec := range withdrawn {
		s.metrics.IncConsentWithdrawn(rec.Purpose)
		s.audit.Record(ctx, models.AuditActionConsentWithdrawn, rec.SubjectID, "scheduler", map[string]string{
			"consent_id": rec.ID.String(),
			"purpose":    rec.Purpose,
			"reason":     "validity_expired",
		})
		if err := s.halt.NotifyWithdrawal(ctx, rec.SubjectID, rec.Purpose, now); err != nil {
			s.logger.Error("withdrawal halt notification failed",
				"subject_id", rec.SubjectID.String(),
				"purpose", rec.Purpose,
				"error", err,
			)
		}
	}
	return len(withdrawn), nil
}

// ListConsents returns the subject's full consent history, oldest first.
func (s *Service) ListConsents(ctx context.Context, subjectID id.SubjectID) ([]*models.ConsentRecord, error) {
	subj, err := s.subjects.Get(ctx, subjectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "data subject not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load data subject")
	}
	return subj.Consents, nil
}

// HasActiveConsent reports whether the subject currently has an active,
// unexpired consent for the purpose. Unknown subjects have no consent.
func (s *Service) HasActiveConsent(ctx context.Context, subjectID id.SubjectID, purpose string) (bool, error) {
	subj, err := s.subjects.Get(ctx, subjectID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "load data subject")
	}

	active := subj.ActiveConsent(purpose)
	if active == nil {
		return false, nil
	}
	return !active.IsExpired(s.now().UTC(), s.cfg.ConsentValidityMonths), nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
