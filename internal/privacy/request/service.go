// Package request implements the data-subject-rights workflow: request
// intake, the access export, erasure with downstream fan-out, and manual
// resolution of the remaining right types.
package request

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zykor/internal/audit"
	"zykor/internal/platform/config"
	"zykor/internal/privacy/hooks"
	"zykor/internal/privacy/metrics"
	"zykor/internal/privacy/models"
	"zykor/internal/privacy/retention"
	"zykor/internal/privacy/store"
	id "zykor/pkg/domain"
	dErrors "zykor/pkg/domain-errors"
	"zykor/pkg/platform/keylock"
)

// Service drives privacy requests through their lifecycle. Erasure mutations
// are serialized per subject via keyed locks so a concurrent consent write
// cannot interleave with the delete.
type Service struct {
	subjects  store.SubjectStore
	requests  store.RequestStore
	retention *retention.Engine
	executor  *hooks.Executor
	audit     *audit.Publisher
	cfg       config.PrivacyConfig
	logger    *slog.Logger

	locks       *keylock.Map
	metrics     *metrics.Metrics
	hookTimeout time.Duration
	now         func() time.Time
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

// WithHookTimeout bounds the erasure fan-out.
func WithHookTimeout(d time.Duration) Option {
	return func(s *Service) { s.hookTimeout = d }
}

// WithLocks replaces the per-subject lock map, letting main share one map
// across every service that mutates subject state.
func WithLocks(locks *keylock.Map) Option {
	return func(s *Service) { s.locks = locks }
}

// NewService creates the request workflow service.
func NewService(
	subjects store.SubjectStore,
	requests store.RequestStore,
	retentionEngine *retention.Engine,
	executor *hooks.Executor,
	auditPub *audit.Publisher,
	cfg config.PrivacyConfig,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		subjects:    subjects,
		requests:    requests,
		retention:   retentionEngine,
		executor:    executor,
		audit:       auditPub,
		cfg:         cfg,
		logger:      logger,
		locks:       keylock.New(),
		hookTimeout: 2 * time.Minute,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput describes a new privacy request.
type CreateInput struct {
	SubjectID   id.SubjectID
	Type        models.RequestType
	Description string
	Urgency     models.Urgency
	Metadata    map[string]string
}

// CreateRequest registers a new pending request. The response deadline clock
// starts at the request date.
func (s *Service) CreateRequest(ctx context.Context, in CreateInput) (*models.PrivacyRequest, error) {
	if in.SubjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject ID is required")
	}
	if !in.Type.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown request type: "+string(in.Type))
	}
	urgency := in.Urgency
	if urgency == "" {
		urgency = models.UrgencyMedium
	}
	if !urgency.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown urgency: "+string(in.Urgency))
	}

	req := &models.PrivacyRequest{
		ID:          id.NewRequestID(),
		SubjectID:   in.SubjectID,
		Type:        in.Type,
		Status:      models.StatusPending,
		RequestDate: s.now().UTC(),
		Description: in.Description,
		Urgency:     urgency,
		Metadata:    in.Metadata,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create privacy request")
	}

	s.metrics.IncRequestCreated(string(in.Type))
	s.audit.Record(ctx, models.AuditActionRequestCreated, in.SubjectID, "api", map[string]string{
		"request_id": req.ID.String(),
		"type":       string(in.Type),
		"urgency":    string(urgency),
	})
	return req, nil
}

// GetRequest returns the request or a not-found error.
func (s *Service) GetRequest(ctx context.Context, requestID id.RequestID) (*models.PrivacyRequest, error) {
	req, err := s.requests.Get(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "privacy request not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load privacy request")
	}
	return req, nil
}

// ListRequests returns all requests, newest first.
func (s *Service) ListRequests(ctx context.Context) ([]*models.PrivacyRequest, error) {
	reqs, err := s.requests.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list privacy requests")
	}
	return reqs, nil
}

// ProcessAccess fulfills an access request: the request moves to in_progress,
// the subject's data is exported, and the request completes. The export is
// the response artifact handed to the subject.
func (s *Service) ProcessAccess(ctx context.Context, requestID id.RequestID, handledBy string) (*AccessExport, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Type != models.RequestAccess {
		return nil, dErrors.New(dErrors.CodeInvalidRequestType,
			"request "+requestID.String()+" is not an access request")
	}

	subj, err := s.subjects.Get(ctx, req.SubjectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "data subject not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load data subject")
	}

	if err := req.BeginProcessing(); err != nil {
		return nil, err
	}
	req.HandledBy = handledBy
	if err := s.updateRequest(ctx, req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	export := s.buildExport(subj, now)

	if err := req.Complete("data export delivered to subject", now); err != nil {
		return nil, err
	}
	if err := s.updateRequest(ctx, req); err != nil {
		return nil, err
	}

	s.metrics.IncRequestResolved(string(req.Type), string(req.Status))
	s.audit.Record(ctx, models.AuditActionAccessCompleted, req.SubjectID, handledBy, map[string]string{
		"request_id":    req.ID.String(),
		"data_exported": strings.Join(export.sections(), ","),
	})
	return export, nil
}

// ErasureResult reports an erasure fan-out to the caller.
type ErasureResult struct {
	Erased          bool     `json:"erased"`
	Reason          string   `json:"reason,omitempty"`
	SystemsAffected []string `json:"systems_affected,omitempty"`
	SystemsFailed   []string `json:"systems_failed,omitempty"`
}

// ProcessErasure fulfills an erasure request. A subject with any
// legal-obligation processing record cannot be erased: the request is
// rejected and the result reports Erased=false. The block is an outcome of
// the request, not an error to the caller.
//
// Otherwise the subject's primary record is deleted under the subject lock,
// then the downstream hooks run. Hook failures are reported but do not undo
// the primary deletion; the request completes listing the systems that
// confirmed.
func (s *Service) ProcessErasure(ctx context.Context, requestID id.RequestID, handledBy string) (*ErasureResult, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Type != models.RequestErasure {
		return nil, dErrors.New(dErrors.CodeInvalidRequestType,
			"request "+requestID.String()+" is not an erasure request")
	}

	subj, err := s.subjects.Get(ctx, req.SubjectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "data subject not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load data subject")
	}

	now := s.now().UTC()

	if subj.HasLegalObligation() {
		// Blocked before processing starts: pending -> rejected.
		reason := "erasure blocked: processing records carry a legal obligation"
		if err := req.Reject(reason, now); err != nil {
			return nil, err
		}
		req.HandledBy = handledBy
		if err := s.updateRequest(ctx, req); err != nil {
			return nil, err
		}
		s.metrics.IncRequestResolved(string(req.Type), string(req.Status))
		return &ErasureResult{Erased: false, Reason: reason}, nil
	}

	if err := req.BeginProcessing(); err != nil {
		return nil, err
	}
	req.HandledBy = handledBy
	if err := s.updateRequest(ctx, req); err != nil {
		return nil, err
	}

	if err := s.eraseSubject(ctx, req.SubjectID); err != nil {
		return nil, err
	}

	hookCtx, cancel := context.WithTimeout(ctx, s.hookTimeout)
	defer cancel()
	fanout := s.executor.Run(hookCtx, req.SubjectID)

	if err := hookCtx.Err(); err != nil {
		// The primary record is gone but downstream systems timed out.
		// Leave the request in_progress so the fan-out can be retried.
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "erasure fan-out timed out")
	}

	result := &ErasureResult{
		Erased:          true,
		SystemsAffected: fanout.Affected,
	}
	for system := range fanout.Failed {
		result.SystemsFailed = append(result.SystemsFailed, system)
	}

	response := fmt.Sprintf("data erased from: %s", strings.Join(fanout.Affected, ", "))
	if len(result.SystemsFailed) > 0 {
		response += fmt.Sprintf(" (pending: %s)", strings.Join(result.SystemsFailed, ", "))
	}
	if err := req.Complete(response, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.updateRequest(ctx, req); err != nil {
		return nil, err
	}

	s.metrics.IncRequestResolved(string(req.Type), string(req.Status))
	s.audit.Record(ctx, models.AuditActionErasureCompleted, req.SubjectID, handledBy, map[string]string{
		"request_id":       req.ID.String(),
		"systems_affected": strings.Join(result.SystemsAffected, ","),
		"systems_failed":   strings.Join(result.SystemsFailed, ","),
	})
	return result, nil
}

// EraseSubject removes the subject's primary record under its lock and fans
// out to the downstream hooks. Exposed for the retention cleanup path, which
// shares the erasure mechanics but not the request workflow; the reason says
// why the data is going away and ends up in the deletion audit entry.
//
// The legal-obligation block applies here too: retention eligibility only
// looks at inactivity and consent, so it is checked again before anything is
// deleted.
func (s *Service) EraseSubject(ctx context.Context, subjectID id.SubjectID, reason string) (hooks.Result, error) {
	subj, err := s.subjects.Get(ctx, subjectID)
	if errors.Is(err, store.ErrNotFound) {
		return hooks.Result{}, dErrors.New(dErrors.CodeNotFound, "data subject not found")
	}
	if err != nil {
		return hooks.Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "load data subject")
	}
	if subj.HasLegalObligation() {
		return hooks.Result{}, dErrors.New(dErrors.CodeErasureBlocked,
			"processing records carry a legal obligation")
	}

	if err := s.eraseSubject(ctx, subjectID); err != nil {
		return hooks.Result{}, err
	}

	hookCtx, cancel := context.WithTimeout(ctx, s.hookTimeout)
	defer cancel()
	result := s.executor.Run(hookCtx, subjectID)

	var failed []string
	for system := range result.Failed {
		failed = append(failed, system)
	}
	s.audit.Record(ctx, models.AuditActionDataDeleted, subjectID, "scheduler", map[string]string{
		"reason":           reason,
		"systems_affected": strings.Join(result.Affected, ","),
		"systems_failed":   strings.Join(failed, ","),
	})
	return result, nil
}

func (s *Service) eraseSubject(ctx context.Context, subjectID id.SubjectID) error {
	key := subjectID.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	err := s.subjects.Delete(ctx, subjectID)
	if errors.Is(err, store.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "data subject not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete data subject")
	}
	return nil
}

// Outcome is the terminal state requested for a manual resolution.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRejected  Outcome = "rejected"
)

// ResolveRequest manually resolves rectification, portability, restriction,
// and objection requests, whose fulfillment happens outside this system.
// Access and erasure requests must go through their dedicated processors.
func (s *Service) ResolveRequest(ctx context.Context, requestID id.RequestID, outcome Outcome, response, handledBy string) (*models.PrivacyRequest, error) {
	if response == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "response is required")
	}

	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Type == models.RequestAccess || req.Type == models.RequestErasure {
		return nil, dErrors.New(dErrors.CodeInvalidRequestType,
			string(req.Type)+" requests are resolved by their dedicated processor")
	}

	now := s.now().UTC()
	switch outcome {
	case OutcomeCompleted:
		if err := req.BeginProcessing(); err != nil {
			return nil, err
		}
		if err := req.Complete(response, now); err != nil {
			return nil, err
		}
	case OutcomeRejected:
		if err := req.Reject(response, now); err != nil {
			return nil, err
		}
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown outcome: "+string(outcome))
	}

	req.HandledBy = handledBy
	if err := s.updateRequest(ctx, req); err != nil {
		return nil, err
	}

	s.metrics.IncRequestResolved(string(req.Type), string(req.Status))
	action := string(req.Type) + "_request_completed"
	if req.Status == models.StatusRejected {
		action = string(req.Type) + "_request_rejected"
	}
	s.audit.Record(ctx, action, req.SubjectID, handledBy, map[string]string{
		"request_id": req.ID.String(),
	})
	return req, nil
}

func (s *Service) updateRequest(ctx context.Context, req *models.PrivacyRequest) error {
	if err := s.requests.Update(ctx, req); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "update privacy request")
	}
	return nil
}
