package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"zykor/internal/privacy/models"
	id "zykor/pkg/domain"
	dErrors "zykor/pkg/domain-errors"
)

// PostgresSubjectStore is the production SubjectStore. Consent withdrawal and
// lazy subject creation are performed in single transactions so concurrent
// writers cannot observe half-applied state.
type PostgresSubjectStore struct {
	db *sql.DB
}

// NewPostgresSubjectStore creates a store backed by the given database handle.
func NewPostgresSubjectStore(db *sql.DB) *PostgresSubjectStore {
	return &PostgresSubjectStore{db: db}
}

func (s *PostgresSubjectStore) GetOrCreate(ctx context.Context, subjectID id.SubjectID, now time.Time) (*models.DataSubject, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_subjects (id, created_at, last_activity)
		VALUES ($1, $2, $2)
		ON CONFLICT (id) DO NOTHING`,
		subjectID.String(), now,
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "upsert data subject")
	}
	return s.Get(ctx, subjectID)
}

func (s *PostgresSubjectStore) Get(ctx context.Context, subjectID id.SubjectID) (*models.DataSubject, error) {
	subj := &models.DataSubject{}
	var sid string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, phone, document, created_at, last_activity
		FROM data_subjects WHERE id = $1`,
		subjectID.String(),
	).Scan(&sid, &subj.Email, &subj.Name, &subj.Phone, &subj.Document,
		&subj.CreatedAt, &subj.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query data subject")
	}
	subj.ID = id.SubjectID(sid)

	if subj.Consents, err = s.consentsFor(ctx, subjectID); err != nil {
		return nil, err
	}
	if subj.Processing, err = s.processingFor(ctx, subjectID); err != nil {
		return nil, err
	}
	return subj, nil
}

func (s *PostgresSubjectStore) AppendConsent(ctx context.Context, record *models.ConsentRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := touchSubject(ctx, tx, record.SubjectID, record.ConsentDate); err != nil {
			return err
		}

		var withdrawn any
		if record.WithdrawnDate != nil {
			withdrawn = *record.WithdrawnDate
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO consent_records
				(id, subject_id, purpose, legal_basis, consent_given, consent_date,
				 withdrawn_date, source, ip_address, user_agent, device, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			uuid.UUID(record.ID), record.SubjectID.String(), record.Purpose,
			string(record.LegalBasis), record.ConsentGiven, record.ConsentDate,
			withdrawn, record.Source, record.IPAddress, record.UserAgent,
			record.Device, record.Version,
		)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "insert consent record")
		}
		return nil
	})
}

func (s *PostgresSubjectStore) WithdrawConsent(ctx context.Context, subjectID id.SubjectID, purpose string, at time.Time) (*models.ConsentRecord, error) {
	var record *models.ConsentRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			UPDATE consent_records
			SET consent_given = FALSE, withdrawn_date = $3
			WHERE id = (
				SELECT id FROM consent_records
				WHERE subject_id = $1 AND purpose = $2
				  AND consent_given AND withdrawn_date IS NULL
				ORDER BY consent_date DESC
				LIMIT 1
			)
			RETURNING id, subject_id, purpose, legal_basis, consent_given,
				consent_date, withdrawn_date, source, ip_address, user_agent,
				device, version`,
			subjectID.String(), purpose, at,
		)
		rec, err := scanConsent(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoActiveConsent
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "withdraw consent")
		}

		if err := touchSubject(ctx, tx, subjectID, at); err != nil {
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *PostgresSubjectStore) AppendProcessing(ctx context.Context, record *models.ProcessingRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := touchSubject(ctx, tx, record.SubjectID, record.Timestamp); err != nil {
			return err
		}

		categories, err := json.Marshal(record.Categories)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "marshal categories")
		}
		metadata, err := json.Marshal(record.Metadata)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "marshal metadata")
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO processing_records
				(id, subject_id, activity, purpose, legal_basis, categories,
				 ts, system, automated, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.UUID(record.ID), record.SubjectID.String(), record.Activity,
			record.Purpose, string(record.LegalBasis), categories,
			record.Timestamp, record.System, record.Automated, metadata,
		)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "insert processing record")
		}
		return nil
	})
}

func (s *PostgresSubjectStore) WithdrawExpiredConsents(ctx context.Context, cutoff, now time.Time) ([]*models.ConsentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE consent_records
		SET consent_given = FALSE, withdrawn_date = $2
		WHERE consent_given AND withdrawn_date IS NULL
		  AND legal_basis = 'consent' AND consent_date < $1
		RETURNING id, subject_id, purpose, legal_basis, consent_given,
			consent_date, withdrawn_date, source, ip_address, user_agent,
			device, version`,
		cutoff, now,
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "withdraw expired consents")
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var withdrawn []*models.ConsentRecord
	for rows.Next() {
		rec, err := scanConsent(rows)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan withdrawn consent")
		}
		withdrawn = append(withdrawn, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "iterate withdrawn consents")
	}
	return withdrawn, nil
}

func (s *PostgresSubjectStore) ListSubjects(ctx context.Context) ([]*models.DataSubject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM data_subjects ORDER BY id`)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list data subjects")
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var ids []id.SubjectID
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan subject id")
		}
		ids = append(ids, id.SubjectID(sid))
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "iterate data subjects")
	}

	out := make([]*models.DataSubject, 0, len(ids))
	for _, sid := range ids {
		subj, err := s.Get(ctx, sid)
		if err != nil {
			return nil, err
		}
		out = append(out, subj)
	}
	return out, nil
}

func (s *PostgresSubjectStore) Delete(ctx context.Context, subjectID id.SubjectID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM data_subjects WHERE id = $1`, subjectID.String())
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete data subject")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete data subject row count")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresSubjectStore) consentsFor(ctx context.Context, subjectID id.SubjectID) ([]*models.ConsentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, purpose, legal_basis, consent_given, consent_date,
			withdrawn_date, source, ip_address, user_agent, device, version
		FROM consent_records
		WHERE subject_id = $1
		ORDER BY consent_date ASC`,
		subjectID.String(),
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query consent records")
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []*models.ConsentRecord
	for rows.Next() {
		rec, err := scanConsent(rows)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan consent record")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "iterate consent records")
	}
	return out, nil
}

func (s *PostgresSubjectStore) processingFor(ctx context.Context, subjectID id.SubjectID) ([]*models.ProcessingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, activity, purpose, legal_basis, categories,
			ts, system, automated, metadata
		FROM processing_records
		WHERE subject_id = $1
		ORDER BY ts ASC`,
		subjectID.String(),
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query processing records")
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []*models.ProcessingRecord
	for rows.Next() {
		var (
			rec        models.ProcessingRecord
			recID      uuid.UUID
			sid        string
			basis      string
			categories []byte
			metadata   []byte
		)
		if err := rows.Scan(&recID, &sid, &rec.Activity, &rec.Purpose, &basis,
			&categories, &rec.Timestamp, &rec.System, &rec.Automated, &metadata); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan processing record")
		}
		rec.ID = id.ProcessingID(recID)
		rec.SubjectID = id.SubjectID(sid)
		rec.LegalBasis = models.LegalBasis(basis)
		if len(categories) > 0 {
			if err := json.Unmarshal(categories, &rec.Categories); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "unmarshal categories")
			}
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "unmarshal metadata")
			}
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "iterate processing records")
	}
	return out, nil
}

func (s *PostgresSubjectStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck // original error takes precedence
		return err
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	return nil
}

func touchSubject(ctx context.Context, tx *sql.Tx, subjectID id.SubjectID, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO data_subjects (id, created_at, last_activity)
		VALUES ($1, $2, $2)
		ON CONFLICT (id) DO UPDATE
		SET last_activity = GREATEST(data_subjects.last_activity, EXCLUDED.last_activity)`,
		subjectID.String(), at,
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "touch data subject")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (*models.ConsentRecord, error) {
	var (
		rec       models.ConsentRecord
		recID     uuid.UUID
		sid       string
		basis     string
		withdrawn sql.NullTime
	)
	err := row.Scan(&recID, &sid, &rec.Purpose, &basis, &rec.ConsentGiven,
		&rec.ConsentDate, &withdrawn, &rec.Source, &rec.IPAddress,
		&rec.UserAgent, &rec.Device, &rec.Version)
	if err != nil {
		return nil, err
	}
	rec.ID = id.ConsentID(recID)
	rec.SubjectID = id.SubjectID(sid)
	rec.LegalBasis = models.LegalBasis(basis)
	if withdrawn.Valid {
		t := withdrawn.Time
		rec.WithdrawnDate = &t
	}
	return &rec, nil
}
