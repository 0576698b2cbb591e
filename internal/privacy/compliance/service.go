// Package compliance implements the read-only auditor: a point-in-time scan
// of subjects and requests producing a graded report.
package compliance

import (
	"context"
	"fmt"
	"time"

	"zykor/internal/platform/config"
	"zykor/internal/privacy/models"
	"zykor/internal/privacy/retention"
	"zykor/internal/privacy/store"
	dErrors "zykor/pkg/domain-errors"
)

// Grade is the overall compliance verdict.
type Grade string

const (
	GradeCompliant    Grade = "compliant"
	GradePartial      Grade = "partial"
	GradeNonCompliant Grade = "non_compliant"
)

// Stats summarizes the scanned state.
type Stats struct {
	TotalDataSubjects int `json:"total_data_subjects"`
	TotalConsents     int `json:"total_consents"`
	ExpiredConsents   int `json:"expired_consents"`
	PendingRequests   int `json:"pending_requests"`
	OverdueRequests   int `json:"overdue_requests"`
	DataToDelete      int `json:"data_to_delete"`
}

// Report is the auditor's output.
type Report struct {
	GeneratedAt     time.Time `json:"generated_at"`
	Overall         Grade     `json:"overall"`
	Issues          []string  `json:"issues"`
	Recommendations []string  `json:"recommendations"`
	Stats           Stats     `json:"stats"`
}

// Service computes compliance reports. Strictly read-only: safe to call at
// arbitrary frequency from monitoring.
type Service struct {
	subjects  store.SubjectStore
	requests  store.RequestStore
	retention *retention.Engine
	cfg       config.PrivacyConfig
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the compliance auditor.
func NewService(subjects store.SubjectStore, requests store.RequestStore, retentionEngine *retention.Engine, cfg config.PrivacyConfig, opts ...Option) *Service {
	s := &Service{
		subjects:  subjects,
		requests:  requests,
		retention: retentionEngine,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckCompliance scans all subjects and requests and grades the result.
// The grade is a strict ordinal on the issue count: zero issues is compliant,
// one or two is partial, three or more is non_compliant.
func (s *Service) CheckCompliance(ctx context.Context) (*Report, error) {
	now := s.now().UTC()

	subjects, err := s.subjects.ListSubjects(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list data subjects")
	}
	requests, err := s.requests.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list privacy requests")
	}

	stats := Stats{TotalDataSubjects: len(subjects)}

	for _, subj := range subjects {
		stats.TotalConsents += len(subj.Consents)
		for _, c := range subj.Consents {
			// Expired but not withdrawn: the grant outlived its validity
			// window and nobody acted on it.
			if c.ConsentGiven && c.IsExpired(now, s.cfg.ConsentValidityMonths) {
				stats.ExpiredConsents++
			}
		}
	}

	for _, req := range requests {
		if req.Status != models.StatusPending {
			continue
		}
		stats.PendingRequests++
		if req.IsOverdue(now, s.cfg.ResponseDeadlineDays) {
			stats.OverdueRequests++
		}
	}

	stats.DataToDelete = len(s.retention.IdentifyForDeletion(subjects, now))

	var issues, recommendations []string
	if stats.ExpiredConsents > 0 {
		issues = append(issues, fmt.Sprintf("%d expired consents found", stats.ExpiredConsents))
		recommendations = append(recommendations, "renew expired consents or delete the data")
	}
	if stats.OverdueRequests > 0 {
		issues = append(issues, fmt.Sprintf("%d privacy requests overdue", stats.OverdueRequests))
		recommendations = append(recommendations, "process pending requests within the response deadline")
	}
	if stats.DataToDelete > 0 {
		issues = append(issues, fmt.Sprintf("%d subjects eligible for deletion under retention policy", stats.DataToDelete))
		recommendations = append(recommendations, "run the retention cleanup")
	}
	if s.cfg.Controller.DPOEmail == "" {
		issues = append(issues, "data protection officer contact not configured")
		recommendations = append(recommendations, "configure the DPO contact email")
	}

	overall := GradeCompliant
	switch {
	case len(issues) >= 3:
		overall = GradeNonCompliant
	case len(issues) >= 1:
		overall = GradePartial
	}

	return &Report{
		GeneratedAt:     now,
		Overall:         overall,
		Issues:          issues,
		Recommendations: recommendations,
		Stats:           stats,
	}, nil
}
