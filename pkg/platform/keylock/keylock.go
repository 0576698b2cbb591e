// Package keylock provides per-key mutual exclusion. Mutations scoped to one
// data subject must serialize against each other while operations on other
// subjects proceed concurrently.
package keylock

import "sync"

// Map holds one mutex per live key. Entries are reference-counted and removed
// once the last holder releases, so the map does not grow with the number of
// subjects ever seen.
type Map struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New constructs an empty lock map.
func New() *Map {
	return &Map{locks: make(map[string]*entry)}
}

// Lock acquires the mutex for key, creating it on first use.
func (m *Map) Lock(key string) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key and drops the entry when no other
// goroutine is waiting on it. Unlocking a key that was never locked panics,
// same as sync.Mutex.
func (m *Map) Unlock(key string) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		m.mu.Unlock()
		panic("keylock: unlock of unlocked key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()

	e.mu.Unlock()
}
