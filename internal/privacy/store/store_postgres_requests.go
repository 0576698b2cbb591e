package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"zykor/internal/privacy/models"
	id "zykor/pkg/domain"
	dErrors "zykor/pkg/domain-errors"
)

// PostgresRequestStore is the production RequestStore.
type PostgresRequestStore struct {
	db *sql.DB
}

// NewPostgresRequestStore creates a store backed by the given database handle.
func NewPostgresRequestStore(db *sql.DB) *PostgresRequestStore {
	return &PostgresRequestStore{db: db}
}

func (s *PostgresRequestStore) Create(ctx context.Context, request *models.PrivacyRequest) error {
	metadata, err := json.Marshal(request.Metadata)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "marshal request metadata")
	}

	var completion any
	if request.CompletionDate != nil {
		completion = *request.CompletionDate
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO privacy_requests
			(id, subject_id, type, status, request_date, completion_date,
			 description, response, handled_by, urgency, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(request.ID), request.SubjectID.String(), string(request.Type),
		string(request.Status), request.RequestDate, completion,
		request.Description, request.Response, request.HandledBy,
		string(request.Urgency), metadata,
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "insert privacy request")
	}
	return nil
}

func (s *PostgresRequestStore) Get(ctx context.Context, requestID id.RequestID) (*models.PrivacyRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject_id, type, status, request_date, completion_date,
			description, response, handled_by, urgency, metadata
		FROM privacy_requests WHERE id = $1`,
		uuid.UUID(requestID),
	)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query privacy request")
	}
	return req, nil
}

func (s *PostgresRequestStore) Update(ctx context.Context, request *models.PrivacyRequest) error {
	metadata, err := json.Marshal(request.Metadata)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "marshal request metadata")
	}

	var completion any
	if request.CompletionDate != nil {
		completion = *request.CompletionDate
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE privacy_requests
		SET status = $2, completion_date = $3, response = $4,
			handled_by = $5, urgency = $6, metadata = $7
		WHERE id = $1`,
		uuid.UUID(request.ID), string(request.Status), completion,
		request.Response, request.HandledBy, string(request.Urgency), metadata,
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "update privacy request")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "update privacy request row count")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresRequestStore) List(ctx context.Context) ([]*models.PrivacyRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, type, status, request_date, completion_date,
			description, response, handled_by, urgency, metadata
		FROM privacy_requests
		ORDER BY request_date DESC`)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list privacy requests")
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []*models.PrivacyRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan privacy request")
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "iterate privacy requests")
	}
	return out, nil
}

func scanRequest(row rowScanner) (*models.PrivacyRequest, error) {
	var (
		req        models.PrivacyRequest
		reqID      uuid.UUID
		sid        string
		reqType    string
		status     string
		urgency    string
		completion sql.NullTime
		metadata   []byte
	)
	err := row.Scan(&reqID, &sid, &reqType, &status, &req.RequestDate,
		&completion, &req.Description, &req.Response, &req.HandledBy,
		&urgency, &metadata)
	if err != nil {
		return nil, err
	}
	req.ID = id.RequestID(reqID)
	req.SubjectID = id.SubjectID(sid)
	req.Type = models.RequestType(reqType)
	req.Status = models.RequestStatus(status)
	req.Urgency = models.Urgency(urgency)
	if completion.Valid {
		t := completion.Time
		req.CompletionDate = &t
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &req.Metadata); err != nil {
			return nil, err
		}
	}
	return &req, nil
}
