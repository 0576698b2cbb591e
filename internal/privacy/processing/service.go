// Package processing implements the record of processing activities: pure
// append-only evidence of what was done with whose data and under which
// legal basis.
package processing

import (
	"context"
	"log/slog"
	"time"

	"zykor/internal/audit"
	"zykor/internal/privacy/metrics"
	"zykor/internal/privacy/models"
	"zykor/internal/privacy/store"
	id "zykor/pkg/domain"
	dErrors "zykor/pkg/domain-errors"
)

// Service appends processing records. There is deliberately no update or
// delete: processing evidence only leaves the system through subject erasure.
type Service struct {
	subjects store.SubjectStore
	audit    *audit.Publisher
	logger   *slog.Logger

	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics enables metric collection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the processing activity service.
func NewService(subjects store.SubjectStore, auditPub *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		subjects: subjects,
		audit:    auditPub,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogInput describes one processing activity to record.
type LogInput struct {
	SubjectID  id.SubjectID
	Activity   string
	Purpose    string
	LegalBasis models.LegalBasis
	Categories []models.DataCategory
	System     string
	Automated  bool
	Metadata   map[string]string
}

// LogActivity appends a processing record, lazily creating the subject and
// bumping its activity clock.
func (s *Service) LogActivity(ctx context.Context, in LogInput) (*models.ProcessingRecord, error) {
	if in.SubjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject ID is required")
	}
	if in.Activity == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "activity is required")
	}
	if !in.LegalBasis.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown legal basis: "+string(in.LegalBasis))
	}
	for _, c := range in.Categories {
		if !c.IsValid() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown data category: "+string(c))
		}
	}

	record := &models.ProcessingRecord{
		ID:         id.NewProcessingID(),
		SubjectID:  in.SubjectID,
		Activity:   in.Activity,
		Purpose:    in.Purpose,
		LegalBasis: in.LegalBasis,
		Categories: in.Categories,
		Timestamp:  s.now().UTC(),
		System:     in.System,
		Automated:  in.Automated,
		Metadata:   in.Metadata,
	}

	if err := s.subjects.AppendProcessing(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "append processing record")
	}

	s.metrics.IncProcessingLogged(string(in.LegalBasis))
	s.audit.Record(ctx, models.AuditActionDataProcessing, in.SubjectID, "system", map[string]string{
		"processing_id": record.ID.String(),
		"activity":      in.Activity,
		"legal_basis":   string(in.LegalBasis),
		"system":        in.System,
	})
	return record, nil
}
