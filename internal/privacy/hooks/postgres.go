package hooks

import (
	"context"
	"database/sql"
	"fmt"

	id "zykor/pkg/domain"
)

// PrimaryHook deletes the subject's rows from application tables that key
// personal data by subject id. The privacy schema itself is handled by the
// subject store's cascading delete; this hook covers the surrounding
// application's tables.
type PrimaryHook struct {
	db     *sql.DB
	tables []string
}

// NewPrimaryHook creates a hook deleting from the given tables, each of which
// must have a subject_id column.
func NewPrimaryHook(db *sql.DB, tables []string) *PrimaryHook {
	return &PrimaryHook{db: db, tables: tables}
}

func (h *PrimaryHook) Name() string { return "database" }

func (h *PrimaryHook) DeleteSubjectData(ctx context.Context, subjectID id.SubjectID) error {
	for _, table := range h.tables {
		query := fmt.Sprintf("DELETE FROM %s WHERE subject_id = $1", table) //nolint:gosec // table names come from config, not request input
		if _, err := h.db.ExecContext(ctx, query, subjectID.String()); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return nil
}
