package audit

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no entries exist for the requested subject.
var ErrNotFound = errors.New("audit entries not found")

// Store persists audit entries.
type Store interface {
	// Append adds one entry. Implementations never modify existing entries.
	Append(ctx context.Context, event Event) error

	// ListBySubject returns entries for the subject, newest first, up to limit.
	// A limit <= 0 means no limit.
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]Event, error)

	// PurgeOlderThan removes entries with a timestamp before cutoff and
	// returns how many were removed. Audit logs have their own retention
	// clock; purging is the only sanctioned deletion.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
