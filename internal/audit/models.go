// Package audit records who did what to whose data. Entries are append-only
// evidence; nothing in the system updates or rewrites one after the fact.
package audit

import (
	"time"

	id "zykor/pkg/domain"
)

// Event is one audit log entry.
type Event struct {
	ID        id.EntryID        `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"`
	SubjectID id.SubjectID      `json:"subject_id"`
	Actor     string            `json:"actor"`
	Details   map[string]string `json:"details,omitempty"`
}
