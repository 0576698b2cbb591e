// Package cleanup implements the periodic retention pass: withdrawing
// expired consents, deleting subjects past their retention window, and
// purging aged audit entries.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
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
)

// Summary reports one cleanup run.
type Summary struct {
	DeletedRecords     int `json:"deleted_records"`
	ExpiredConsents    int `json:"expired_consents"`
	ProcessedRequests  int `json:"processed_requests"`
	PurgedAuditEntries int `json:"purged_audit_entries"`
}

// Eraser is the erasure mechanics shared with the request workflow: delete
// the primary record under the subject lock, then fan out to hooks. The
// reason is carried into the deletion audit entry.
type Eraser interface {
	EraseSubject(ctx context.Context, subjectID id.SubjectID, reason string) (hooks.Result, error)
}

// ConsentExpirer withdraws consents past the validity window with the full
// withdrawal side effects. Cleanup never touches consent records directly:
// every withdrawal, scheduled or not, must leave the same audit and halt
// trail, and that contract lives in the consent service.
type ConsentExpirer interface {
	ExpireConsents(ctx context.Context) (int, error)
}

// Service runs retention cleanup. Runs are exclusive: a trigger while a run
// is in flight is skipped, never queued.
type Service struct {
	subjects   store.SubjectStore
	retention  *retention.Engine
	eraser     Eraser
	consents   ConsentExpirer
	auditStore audit.Store
	auditPub   *audit.Publisher
	cfg        config.PrivacyConfig
	logger     *slog.Logger

	running atomic.Bool
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

// NewService creates the cleanup service.
func NewService(
	subjects store.SubjectStore,
	retentionEngine *retention.Engine,
	eraser Eraser,
	consents ConsentExpirer,
	auditStore audit.Store,
	auditPub *audit.Publisher,
	cfg config.PrivacyConfig,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		subjects:   subjects,
		retention:  retentionEngine,
		eraser:     eraser,
		consents:   consents,
		auditStore: auditStore,
		auditPub:   auditPub,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one cleanup pass. A second trigger while a pass is in flight
// gets a conflict error; callers treat it as a skip. Per-subject deletion
// failures are logged and left for the next run, never aborting the pass.
func (s *Service) Run(ctx context.Context) (*Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, dErrors.New(dErrors.CodeConflict, "cleanup already running")
	}
	defer s.running.Store(false)

	started := s.now()
	now := started.UTC()
	summary := &Summary{}

	// (a) Withdraw consents past the validity window, through the consent
	// service so every expiry leaves the same audit and halt trail as a
	// subject-initiated withdrawal.
	expired, err := s.consents.ExpireConsents(ctx)
	if err != nil {
		s.metrics.ObserveCleanup("error", time.Since(started).Seconds(), 0, 0)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "withdraw expired consents")
	}
	summary.ExpiredConsents = expired

	// (b) Delete subjects past their retention window. The eligibility list
	// is computed after (a) so freshly expired consents no longer keep a
	// subject alive.
	subjects, err := s.subjects.ListSubjects(ctx)
	if err != nil {
		s.metrics.ObserveCleanup("error", time.Since(started).Seconds(), 0, expired)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list data subjects")
	}
	for _, cand := range s.retention.IdentifyForDeletion(subjects, now) {
		result, err := s.eraser.EraseSubject(ctx, cand.SubjectID, cand.Reason)
		if dErrors.HasCode(err, dErrors.CodeErasureBlocked) {
			s.logger.Warn("cleanup deletion blocked by legal obligation",
				"subject_id", cand.SubjectID.String(),
				"reason", cand.Reason,
			)
			continue
		}
		if err != nil {
			s.logger.Error("cleanup deletion failed, subject remains a candidate",
				"subject_id", cand.SubjectID.String(),
				"reason", cand.Reason,
				"error", err,
			)
			continue
		}
		summary.DeletedRecords++
		s.logger.Info("cleanup deleted subject data",
			"subject_id", cand.SubjectID.String(),
			"reason", cand.Reason,
		)
		if len(result.Failed) > 0 {
			s.logger.Warn("cleanup deletion partially applied downstream",
				"subject_id", cand.SubjectID.String(),
				"systems_affected", result.Affected,
			)
		}
	}

	// (c) Purge audit entries past their own retention clock.
	auditCutoff := now.Add(-time.Duration(s.cfg.AuditLogRetentionMonths) * 30 * 24 * time.Hour)
	purged, err := s.auditStore.PurgeOlderThan(ctx, auditCutoff)
	if err != nil {
		s.logger.Error("audit purge failed", "error", err)
	}
	summary.PurgedAuditEntries = purged

	s.metrics.ObserveCleanup("ok", time.Since(started).Seconds(), summary.DeletedRecords, summary.ExpiredConsents)
	s.auditPub.Record(ctx, models.AuditActionCleanupCompleted, "", "scheduler", map[string]string{
		"deleted_records":  fmt.Sprintf("%d", summary.DeletedRecords),
		"expired_consents": fmt.Sprintf("%d", summary.ExpiredConsents),
	})
	s.logger.Info("cleanup run finished",
		"deleted_records", summary.DeletedRecords,
		"expired_consents", summary.ExpiredConsents,
		"purged_audit_entries", summary.PurgedAuditEntries,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return summary, nil
}

// Schedule triggers Run on the given interval until ctx is cancelled.
// Intended to be started once from main in its own goroutine.
func (s *Service) Schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				if dErrors.HasCode(err, dErrors.CodeConflict) {
					s.logger.Info("cleanup trigger skipped, previous run still in flight")
					continue
				}
				s.logger.Error("scheduled cleanup failed", "error", err)
			}
		}
	}
}
