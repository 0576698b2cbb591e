package hooks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	id "zykor/pkg/domain"
)

// BackupHook records a redaction marker for offline backup sets. Backups
// cannot be mutated in place; the marker is applied when a backup is next
// restored or rotated.
type BackupHook struct {
	db  *sql.DB
	now func() time.Time
}

// NewBackupHook creates a hook writing redaction markers.
func NewBackupHook(db *sql.DB) *BackupHook {
	return &BackupHook{db: db, now: time.Now}
}

func (h *BackupHook) Name() string { return "backups" }

func (h *BackupHook) DeleteSubjectData(ctx context.Context, subjectID id.SubjectID) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO backup_redactions (subject_id, requested_at)
		VALUES ($1, $2)
		ON CONFLICT (subject_id) DO NOTHING`,
		subjectID.String(), h.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record backup redaction: %w", err)
	}
	return nil
}
