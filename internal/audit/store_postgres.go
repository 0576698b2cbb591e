package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	id "zykor/pkg/domain"
	dErrors "zykor/pkg/domain-errors"
)

// PostgresStore persists audit entries in the audit_entries table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "marshal audit details")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, ts, action, subject_id, actor, details)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.UUID(event.ID), event.Timestamp, event.Action,
		event.SubjectID.String(), event.Actor, details,
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "insert audit entry")
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID string, limit int) ([]Event, error) {
	query := `
		SELECT id, ts, action, subject_id, actor, details
		FROM audit_entries
		WHERE subject_id = $1
		ORDER BY ts DESC`
	args := []any{subjectID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query audit entries")
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []Event
	for rows.Next() {
		var (
			e       Event
			entryID uuid.UUID
			subject string
			details []byte
		)
		if err := rows.Scan(&entryID, &e.Timestamp, &e.Action, &subject, &e.Actor, &details); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan audit entry")
		}
		e.ID = id.EntryID(entryID)
		e.SubjectID = id.SubjectID(subject)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "unmarshal audit details")
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "iterate audit entries")
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *PostgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_entries WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "purge audit entries")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "purge audit entries row count")
	}
	return int(n), nil
}
