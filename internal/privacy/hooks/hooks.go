// Package hooks fans subject erasure out to the downstream systems that hold
// copies of personal data. Each hook owns one system; the executor runs them
// concurrently and reports which systems confirmed deletion.
package hooks

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"zykor/internal/privacy/metrics"
	id "zykor/pkg/domain"
	dErrors "zykor/pkg/domain-errors"
)

// Hook deletes one subject's data from one downstream system.
type Hook interface {
	// Name identifies the system, e.g. "database" or "cache".
	Name() string

	DeleteSubjectData(ctx context.Context, subjectID id.SubjectID) error
}

// Result reports one erasure fan-out.
type Result struct {
	// Affected lists the systems that confirmed deletion.
	Affected []string

	// Failed maps system name to the error it returned. A failed system is
	// retried on the next erasure attempt; it never aborts the others.
	Failed map[string]error
}

// Executor runs all registered hooks for a subject.
type Executor struct {
	hooks   []Hook
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewExecutor creates an executor over the given hooks.
func NewExecutor(hooks []Hook, logger *slog.Logger, m *metrics.Metrics) *Executor {
	return &Executor{hooks: hooks, logger: logger, metrics: m}
}

// Systems returns the names of all registered hooks in registration order.
func (e *Executor) Systems() []string {
	out := make([]string, len(e.hooks))
	for i, h := range e.hooks {
		out[i] = h.Name()
	}
	return out
}

// Run executes every hook concurrently. A failing hook is logged and counted
// but does not stop the others; the subject's primary record is already gone
// by the time hooks run, so partial completion must be visible, not fatal.
func (e *Executor) Run(ctx context.Context, subjectID id.SubjectID) Result {
	errs := make([]error, len(e.hooks))

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range e.hooks {
		g.Go(func() error {
			errs[i] = h.DeleteSubjectData(gctx, subjectID)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines report via errs

	result := Result{Failed: make(map[string]error)}
	for i, h := range e.hooks {
		if err := errs[i]; err != nil {
			result.Failed[h.Name()] = dErrors.Wrap(err, dErrors.CodeDeletionFailure, h.Name()+" deletion failed")
			e.metrics.IncErasureHookFailure(h.Name())
			e.logger.Error("erasure hook failed",
				"system", h.Name(),
				"subject_id", subjectID.String(),
				"error", err,
			)
			continue
		}
		result.Affected = append(result.Affected, h.Name())
	}
	return result
}
