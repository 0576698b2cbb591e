package request

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zykor/internal/audit"
	"zykor/internal/platform/config"
	"zykor/internal/privacy/hooks"
	"zykor/internal/privacy/models"
	"zykor/internal/privacy/retention"
	"zykor/internal/privacy/store"
	id "zykor/pkg/domain"
	dErrors "zykor/pkg/domain-errors"
)

type stubHook struct {
	name string
	err  error
}

func (h *stubHook) Name() string { return h.name }
func (h *stubHook) DeleteSubjectData(context.Context, id.SubjectID) error {
	return h.err
}

// ServiceSuite tests the privacy request workflow end to end against the
// memory stores.
//
// Justification: the workflow ties together the state machine, the erasure
// block, the downstream fan-out, and the audit trail; unit-testing the parts
// in isolation would miss the transitions persisted between steps.
type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	subjects  *store.MemorySubjectStore
	requests  *store.MemoryRequestStore
	auditLog  *audit.MemoryStore
	analytics *stubHook
	svc       *Service
	now       time.Time
	cfg       config.PrivacyConfig
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.subjects = store.NewMemorySubjectStore()
	s.requests = store.NewMemoryRequestStore()
	s.auditLog = audit.NewMemoryStore(100)
	s.analytics = &stubHook{name: "analytics"}
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	s.cfg = config.PrivacyConfig{
		Controller: config.ControllerIdentity{
			Name:     "Zykor Tecnologia Ltda",
			DPOEmail: "dpo@zykor.com.br",
		},
		ConsentValidityMonths:     24,
		ResponseDeadlineDays:      15,
		InactivityThresholdMonths: 36,
	}

	executor := hooks.NewExecutor([]hooks.Hook{
		&stubHook{name: "database"},
		&stubHook{name: "cache"},
		s.analytics,
	}, slog.Default(), nil)

	s.svc = NewService(
		s.subjects, s.requests,
		retention.NewEngine(s.cfg),
		executor,
		audit.NewPublisher(s.auditLog, slog.Default()),
		s.cfg,
		slog.Default(),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *ServiceSuite) seedSubject(subjectID id.SubjectID) {
	s.Require().NoError(s.subjects.AppendConsent(s.ctx, &models.ConsentRecord{
		ID:           id.NewConsentID(),
		SubjectID:    subjectID,
		Purpose:      "marketing",
		LegalBasis:   models.BasisConsent,
		ConsentGiven: true,
		ConsentDate:  s.now.AddDate(0, -1, 0),
		Source:       "web",
		Version:      "1.0",
	}))
	s.Require().NoError(s.subjects.AppendProcessing(s.ctx, &models.ProcessingRecord{
		ID:         id.NewProcessingID(),
		SubjectID:  subjectID,
		Activity:   "newsletter_delivery",
		LegalBasis: models.BasisConsent,
		Categories: []models.DataCategory{models.CategoryContact},
		Timestamp:  s.now.AddDate(0, 0, -5),
		System:     "mailer",
	}))
}

func (s *ServiceSuite) createRequest(subjectID id.SubjectID, t models.RequestType) *models.PrivacyRequest {
	req, err := s.svc.CreateRequest(s.ctx, CreateInput{
		SubjectID: subjectID,
		Type:      t,
	})
	s.Require().NoError(err)
	return req
}

func (s *ServiceSuite) TestCreateRequest() {
	req := s.createRequest("cust-1", models.RequestAccess)

	s.Equal(models.StatusPending, req.Status)
	s.Equal(models.UrgencyMedium, req.Urgency, "urgency defaults to medium")
	s.Equal(s.now, req.RequestDate)

	entries, err := s.auditLog.ListBySubject(s.ctx, "cust-1", 0)
	s.Require().NoError(err)
	s.Equal(models.AuditActionRequestCreated, entries[0].Action)
}

func (s *ServiceSuite) TestCreateRequestValidation() {
	_, err := s.svc.CreateRequest(s.ctx, CreateInput{Type: models.RequestAccess})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = s.svc.CreateRequest(s.ctx, CreateInput{SubjectID: "cust-1", Type: "deletion"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestProcessAccess() {
	s.seedSubject("cust-1")
	req := s.createRequest("cust-1", models.RequestAccess)

	export, err := s.svc.ProcessAccess(s.ctx, req.ID, "dpo@zykor.com.br")
	s.Require().NoError(err)

	s.Equal("cust-1", export.BasicInfo.SubjectID)
	s.Equal("Zykor Tecnologia Ltda", export.Controller.Name)
	s.Require().Len(export.Consents, 1)
	s.Nil(export.Consents[0].WithdrawnDate)
	s.Require().Len(export.Processing, 1)
	s.Equal([]string{"contact"}, export.Processing[0].Categories)
	s.Require().Len(export.RetentionInfo, 1)
	s.Equal(models.CategoryContact, export.RetentionInfo[0].Category)

	final, err := s.svc.GetRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, final.Status)
	s.Equal("dpo@zykor.com.br", final.HandledBy)
	s.NotNil(final.CompletionDate)

	entries, err := s.auditLog.ListBySubject(s.ctx, "cust-1", 1)
	s.Require().NoError(err)
	s.Equal(models.AuditActionAccessCompleted, entries[0].Action)
	s.Equal("basic_info,consents,data_processing,retention_info", entries[0].Details["data_exported"])
}

func (s *ServiceSuite) TestProcessAccessWrongType() {
	s.seedSubject("cust-1")
	req := s.createRequest("cust-1", models.RequestErasure)

	_, err := s.svc.ProcessAccess(s.ctx, req.ID, "dpo")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidRequestType))

	// The request is untouched.
	got, err := s.svc.GetRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)
}

func (s *ServiceSuite) TestProcessAccessUnknownSubject() {
	req := s.createRequest("ghost", models.RequestAccess)
	_, err := s.svc.ProcessAccess(s.ctx, req.ID, "dpo")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestProcessAccessTwice() {
	s.seedSubject("cust-1")
	req := s.createRequest("cust-1", models.RequestAccess)

	_, err := s.svc.ProcessAccess(s.ctx, req.ID, "dpo")
	s.Require().NoError(err)

	_, err = s.svc.ProcessAccess(s.ctx, req.ID, "dpo")
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation), "completed requests are immutable")
}

func (s *ServiceSuite) TestProcessErasure() {
	s.seedSubject("cust-1")
	req := s.createRequest("cust-1", models.RequestErasure)

	result, err := s.svc.ProcessErasure(s.ctx, req.ID, "dpo")
	s.Require().NoError(err)
	s.True(result.Erased)
	s.ElementsMatch([]string{"database", "cache", "analytics"}, result.SystemsAffected)
	s.Empty(result.SystemsFailed)

	_, err = s.subjects.Get(s.ctx, "cust-1")
	s.ErrorIs(err, store.ErrNotFound)

	final, err := s.svc.GetRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, final.Status)
	s.Contains(final.Response, "database")

	entries, err := s.auditLog.ListBySubject(s.ctx, "cust-1", 1)
	s.Require().NoError(err)
	s.Equal(models.AuditActionErasureCompleted, entries[0].Action)
}

func (s *ServiceSuite) TestProcessErasureBlockedByLegalObligation() {
	s.seedSubject("cust-1")
	s.Require().NoError(s.subjects.AppendProcessing(s.ctx, &models.ProcessingRecord{
		ID:         id.NewProcessingID(),
		SubjectID:  "cust-1",
		Activity:   "invoice_retention",
		LegalBasis: models.BasisLegalObligation,
		Timestamp:  s.now,
	}))
	req := s.createRequest("cust-1", models.RequestErasure)

	result, err := s.svc.ProcessErasure(s.ctx, req.ID, "dpo")
	s.Require().NoError(err, "the block is an outcome, not an error")
	s.False(result.Erased)
	s.Contains(result.Reason, "legal obligation")

	// The request goes straight to rejected and the subject survives intact.
	final, err := s.svc.GetRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, final.Status)
	s.Contains(final.Response, "legal obligation")

	subj, err := s.subjects.Get(s.ctx, "cust-1")
	s.Require().NoError(err)
	s.Len(subj.Consents, 1)
	s.Len(subj.Processing, 2)
}

func (s *ServiceSuite) TestProcessErasureHookFailureStillCompletes() {
	s.seedSubject("cust-1")
	s.analytics.err = errors.New("broker unreachable")
	req := s.createRequest("cust-1", models.RequestErasure)

	result, err := s.svc.ProcessErasure(s.ctx, req.ID, "dpo")
	s.Require().NoError(err)
	s.True(result.Erased)
	s.ElementsMatch([]string{"database", "cache"}, result.SystemsAffected)
	s.Equal([]string{"analytics"}, result.SystemsFailed)

	final, err := s.svc.GetRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, final.Status)
	s.Contains(final.Response, "pending: analytics")
}

func (s *ServiceSuite) TestEraseSubjectRecordsDeletionAudit() {
	s.seedSubject("cust-1")

	result, err := s.svc.EraseSubject(s.ctx, "cust-1", "inactive for more than 36 months with no valid consent")
	s.Require().NoError(err)
	s.ElementsMatch([]string{"database", "cache", "analytics"}, result.Affected)

	_, err = s.subjects.Get(s.ctx, "cust-1")
	s.ErrorIs(err, store.ErrNotFound)

	entries, err := s.auditLog.ListBySubject(s.ctx, "cust-1", 1)
	s.Require().NoError(err)
	s.Equal(models.AuditActionDataDeleted, entries[0].Action)
	s.Equal("inactive for more than 36 months with no valid consent", entries[0].Details["reason"])
	s.Contains(entries[0].Details["systems_affected"], "database")
}

func (s *ServiceSuite) TestEraseSubjectBlockedByLegalObligation() {
	s.seedSubject("cust-1")
	s.Require().NoError(s.subjects.AppendProcessing(s.ctx, &models.ProcessingRecord{
		ID:         id.NewProcessingID(),
		SubjectID:  "cust-1",
		Activity:   "invoice_retention",
		LegalBasis: models.BasisLegalObligation,
		Timestamp:  s.now,
	}))

	_, err := s.svc.EraseSubject(s.ctx, "cust-1", "retention window elapsed")
	s.True(dErrors.HasCode(err, dErrors.CodeErasureBlocked))

	// Nothing was deleted.
	subj, getErr := s.subjects.Get(s.ctx, "cust-1")
	s.Require().NoError(getErr)
	s.Len(subj.Processing, 2)
}

func (s *ServiceSuite) TestEraseSubjectUnknown() {
	_, err := s.svc.EraseSubject(s.ctx, "ghost", "retention window elapsed")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestProcessErasureWrongType() {
	s.seedSubject("cust-1")
	req := s.createRequest("cust-1", models.RequestAccess)

	_, err := s.svc.ProcessErasure(s.ctx, req.ID, "dpo")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidRequestType))
}

func (s *ServiceSuite) TestResolveRequestCompleted() {
	req := s.createRequest("cust-1", models.RequestRectification)

	resolved, err := s.svc.ResolveRequest(s.ctx, req.ID, OutcomeCompleted, "address corrected", "support")
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, resolved.Status)
	s.Equal("address corrected", resolved.Response)
	s.Equal("support", resolved.HandledBy)

	entries, err := s.auditLog.ListBySubject(s.ctx, "cust-1", 1)
	s.Require().NoError(err)
	s.Equal("rectification_request_completed", entries[0].Action)
}

func (s *ServiceSuite) TestResolveRequestRejected() {
	req := s.createRequest("cust-1", models.RequestObjection)

	resolved, err := s.svc.ResolveRequest(s.ctx, req.ID, OutcomeRejected, "objection overridden by contract", "support")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, resolved.Status)

	entries, err := s.auditLog.ListBySubject(s.ctx, "cust-1", 1)
	s.Require().NoError(err)
	s.Equal("objection_request_rejected", entries[0].Action)
}

func (s *ServiceSuite) TestResolveRequestGuards() {
	access := s.createRequest("cust-1", models.RequestAccess)
	_, err := s.svc.ResolveRequest(s.ctx, access.ID, OutcomeCompleted, "done", "support")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidRequestType))

	other := s.createRequest("cust-1", models.RequestPortability)
	_, err = s.svc.ResolveRequest(s.ctx, other.ID, OutcomeCompleted, "", "support")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = s.svc.ResolveRequest(s.ctx, other.ID, "parked", "later", "support")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = s.svc.ResolveRequest(s.ctx, id.NewRequestID(), OutcomeCompleted, "done", "support")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
