package audit

import (
	"context"
	"sync"
	"time"
)

// DefaultCapacity bounds the in-memory log. Old entries are overwritten in
// ring-buffer fashion rather than growing without limit.
const DefaultCapacity = 10000

// MemoryStore is a bounded in-memory audit log. Suitable for development and
// tests; production deployments use PostgresStore.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []Event
	capacity int
	next     int
	full     bool
}

// NewMemoryStore creates a ring-buffer store with the given capacity.
// A capacity <= 0 falls back to DefaultCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		entries:  make([]Event, capacity),
		capacity: capacity,
	}
}

// Append adds an entry, overwriting the oldest once the buffer is full.
func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[s.next] = event
	s.next++
	if s.next == s.capacity {
		s.next = 0
		s.full = true
	}
	return nil
}

// ListBySubject returns entries for the subject, newest first.
func (s *MemoryStore) ListBySubject(_ context.Context, subjectID string, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, e := range s.snapshotNewestFirst() {
		if e.SubjectID.String() != subjectID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// PurgeOlderThan compacts the buffer, dropping entries before cutoff.
func (s *MemoryStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Event, 0, s.capacity)
	purged := 0
	for _, e := range s.oldestFirstLocked() {
		if e.Timestamp.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}

	s.entries = make([]Event, s.capacity)
	copy(s.entries, kept)
	s.next = len(kept) % s.capacity
	s.full = len(kept) == s.capacity
	return purged, nil
}

// Len reports how many entries are currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.full {
		return s.capacity
	}
	return s.next
}

func (s *MemoryStore) snapshotNewestFirst() []Event {
	oldest := s.oldestFirstLocked()
	out := make([]Event, len(oldest))
	for i, e := range oldest {
		out[len(oldest)-1-i] = e
	}
	return out
}

func (s *MemoryStore) oldestFirstLocked() []Event {
	if !s.full {
		return s.entries[:s.next]
	}
	out := make([]Event, 0, s.capacity)
	out = append(out, s.entries[s.next:]...)
	out = append(out, s.entries[:s.next]...)
	return out
}
