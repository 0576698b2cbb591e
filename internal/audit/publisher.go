package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	id "zykor/pkg/domain"
)

var (
	auditEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zykor_audit_events_total",
		Help: "Audit events recorded, by action",
	}, []string{"action"})
	auditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zykor_audit_events_dropped_total",
		Help: "Audit events dropped because the async buffer was full",
	})
	auditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zykor_audit_append_failures_total",
		Help: "Audit store append failures",
	})
)

// Publisher is the write-side facade services use to record audit events.
// Recording is best-effort: a failing audit store degrades to an error log
// and never fails the operation being audited.
type Publisher struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	events chan Event
	wg     sync.WaitGroup
	once   sync.Once
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsync buffers events in a channel drained by a background goroutine.
// When the buffer is full the event is dropped and counted, keeping hot paths
// from blocking on the audit store.
func WithAsync(buffer int) Option {
	return func(p *Publisher) {
		p.events = make(chan Event, buffer)
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher creates a publisher writing to store.
func NewPublisher(store Store, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.events != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Record appends an audit event for the given action and subject.
func (p *Publisher) Record(ctx context.Context, action string, subjectID id.SubjectID, actor string, details map[string]string) {
	event := Event{
		ID:        id.NewEntryID(),
		Timestamp: p.now().UTC(),
		Action:    action,
		SubjectID: subjectID,
		Actor:     actor,
		Details:   details,
	}
	auditEvents.WithLabelValues(action).Inc()

	if p.events != nil {
		select {
		case p.events <- event:
		default:
			auditDropped.Inc()
			p.logger.Warn("audit buffer full, event dropped", "action", action)
		}
		return
	}

	p.append(ctx, event)
}

// Close stops the async drainer after flushing buffered events.
func (p *Publisher) Close() {
	if p.events == nil {
		return
	}
	p.once.Do(func() {
		close(p.events)
	})
	p.wg.Wait()
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.events {
		p.append(context.Background(), event)
	}
}

func (p *Publisher) append(ctx context.Context, event Event) {
	if err := p.store.Append(ctx, event); err != nil {
		auditFailures.Inc()
		p.logger.Error("audit append failed",
			"action", event.Action,
			"subject_id", event.SubjectID.String(),
			"error", err,
		)
	}
}
