// Package store defines persistence for data subjects and privacy requests,
// with interchangeable in-memory and PostgreSQL implementations.
package store

import (
	"context"
	"errors"
	"time"

	"zykor/internal/privacy/models"
	id "zykor/pkg/domain"
)

var (
	// ErrNotFound is returned when the requested subject or request does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNoActiveConsent is returned by WithdrawConsent when the subject has
	// no active record for the purpose.
	ErrNoActiveConsent = errors.New("no active consent for purpose")
)

// SubjectStore persists data subjects together with their consent and
// processing histories. Subjects are created lazily: the first consent or
// processing record for an unknown subject creates it.
type SubjectStore interface {
	// GetOrCreate returns the subject, creating a bare record stamped with
	// now if it does not exist yet.
	GetOrCreate(ctx context.Context, subjectID id.SubjectID, now time.Time) (*models.DataSubject, error)

	// Get returns the subject or ErrNotFound. The result is a snapshot;
	// mutating it does not affect stored state.
	Get(ctx context.Context, subjectID id.SubjectID) (*models.DataSubject, error)

	// AppendConsent appends a consent record, lazily creating the subject
	// and bumping its last activity to the consent date.
	AppendConsent(ctx context.Context, record *models.ConsentRecord) error

	// WithdrawConsent marks the most recent active record for the purpose as
	// withdrawn at the given time and returns the updated record, or
	// ErrNoActiveConsent.
	WithdrawConsent(ctx context.Context, subjectID id.SubjectID, purpose string, at time.Time) (*models.ConsentRecord, error)

	// AppendProcessing appends a processing record, lazily creating the
	// subject and bumping its last activity to the record timestamp.
	AppendProcessing(ctx context.Context, record *models.ProcessingRecord) error

	// WithdrawExpiredConsents marks every active consent-basis record older
	// than the cutoff as withdrawn at now and returns the withdrawn records
	// so the caller can emit the per-consent withdrawal side effects. Does
	// not bump subject activity: expiry is a system action, not subject
	// contact.
	WithdrawExpiredConsents(ctx context.Context, cutoff, now time.Time) ([]*models.ConsentRecord, error)

	// ListSubjects returns a snapshot of every subject with full histories.
	ListSubjects(ctx context.Context) ([]*models.DataSubject, error)

	// Delete removes the subject and its histories. Deleting an unknown
	// subject returns ErrNotFound.
	Delete(ctx context.Context, subjectID id.SubjectID) error
}

// RequestStore persists privacy requests.
type RequestStore interface {
	Create(ctx context.Context, request *models.PrivacyRequest) error

	// Get returns the request or ErrNotFound. The result is a snapshot.
	Get(ctx context.Context, requestID id.RequestID) (*models.PrivacyRequest, error)

	// Update replaces the stored request, or returns ErrNotFound.
	Update(ctx context.Context, request *models.PrivacyRequest) error

	// List returns a snapshot of all requests, newest first.
	List(ctx context.Context) ([]*models.PrivacyRequest, error)
}
