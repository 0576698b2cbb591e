// Package metrics holds Prometheus collectors for the privacy subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the shared collectors for consent, request, and cleanup
// operations. Services take a *Metrics and treat nil as "metrics disabled",
// so tests do not need a registry.
type Metrics struct {
	ConsentsRecorded  *prometheus.CounterVec
	ConsentsWithdrawn *prometheus.CounterVec
	ProcessingLogged  *prometheus.CounterVec

	RequestsCreated  *prometheus.CounterVec
	RequestsResolved *prometheus.CounterVec

	ErasureHookFailures *prometheus.CounterVec

	CleanupRuns        *prometheus.CounterVec
	CleanupDeleted     prometheus.Counter
	CleanupExpired     prometheus.Counter
	CleanupDurationSec prometheus.Histogram
}

// New registers and returns the privacy metrics collectors.
func New() *Metrics {
	return &Metrics{
		ConsentsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zykor_privacy_consents_recorded_total",
			Help: "Consent records appended, labeled by purpose and outcome",
		}, []string{"purpose", "given"}),
		ConsentsWithdrawn: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zykor_privacy_consents_withdrawn_total",
			Help: "Consents withdrawn, labeled by purpose",
		}, []string{"purpose"}),
		ProcessingLogged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zykor_privacy_processing_records_total",
			Help: "Processing activity records appended, labeled by legal basis",
		}, []string{"legal_basis"}),
		RequestsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zykor_privacy_requests_created_total",
			Help: "Privacy requests created, labeled by type",
		}, []string{"type"}),
		RequestsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zykor_privacy_requests_resolved_total",
			Help: "Privacy requests reaching a terminal state, labeled by type and status",
		}, []string{"type", "status"}),
		ErasureHookFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zykor_privacy_erasure_hook_failures_total",
			Help: "Downstream deletion hook failures, labeled by system",
		}, []string{"system"}),
		CleanupRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zykor_privacy_cleanup_runs_total",
			Help: "Cleanup runs, labeled by outcome",
		}, []string{"outcome"}),
		CleanupDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zykor_privacy_cleanup_deleted_records_total",
			Help: "Subjects deleted by retention cleanup",
		}),
		CleanupExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zykor_privacy_cleanup_expired_consents_total",
			Help: "Expired consents withdrawn by cleanup",
		}),
		CleanupDurationSec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "zykor_privacy_cleanup_duration_seconds",
			Help:    "Duration of cleanup runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}
}

func (m *Metrics) IncConsentRecorded(purpose string, given bool) {
	if m == nil {
		return
	}
	label := "false"
	if given {
		label = "true"
	}
	m.ConsentsRecorded.WithLabelValues(purpose, label).Inc()
}

func (m *Metrics) IncConsentWithdrawn(purpose string) {
	if m == nil {
		return
	}
	m.ConsentsWithdrawn.WithLabelValues(purpose).Inc()
}

func (m *Metrics) IncProcessingLogged(legalBasis string) {
	if m == nil {
		return
	}
	m.ProcessingLogged.WithLabelValues(legalBasis).Inc()
}

func (m *Metrics) IncRequestCreated(requestType string) {
	if m == nil {
		return
	}
	m.RequestsCreated.WithLabelValues(requestType).Inc()
}

func (m *Metrics) IncRequestResolved(requestType, status string) {
	if m == nil {
		return
	}
	m.RequestsResolved.WithLabelValues(requestType, status).Inc()
}

func (m *Metrics) IncErasureHookFailure(system string) {
	if m == nil {
		return
	}
	m.ErasureHookFailures.WithLabelValues(system).Inc()
}

func (m *Metrics) ObserveCleanup(outcome string, durationSeconds float64, deleted, expired int) {
	if m == nil {
		return
	}
	m.CleanupRuns.WithLabelValues(outcome).Inc()
	m.CleanupDurationSec.Observe(durationSeconds)
	m.CleanupDeleted.Add(float64(deleted))
	m.CleanupExpired.Add(float64(expired))
}
