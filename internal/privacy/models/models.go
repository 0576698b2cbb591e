// Package models defines the privacy-compliance domain: data subjects, their
// consent and processing histories, and the data-subject-rights requests that
// operate on them.
package models

import (
	"time"

	id "zykor/pkg/domain"
	dErrors "zykor/pkg/domain-errors"
)

// Audit event actions emitted by the privacy services.
const (
	AuditActionConsentRecorded  = "consent_recorded"
	AuditActionConsentWithdrawn = "consent_withdrawn"
	AuditActionDataProcessing   = "data_processing"
	AuditActionRequestCreated   = "privacy_request_created"
	AuditActionAccessCompleted  = "access_request_completed"
	AuditActionErasureCompleted = "erasure_request_completed"
	AuditActionDataDeleted      = "personal_data_deleted"
	AuditActionCleanupCompleted = "cleanup_completed"
)

// LegalBasis is the LGPD/GDPR-style justification for processing personal data.
type LegalBasis string

const (
	BasisConsent             LegalBasis = "consent"
	BasisContract            LegalBasis = "contract"
	BasisLegalObligation     LegalBasis = "legal_obligation"
	BasisVitalInterests      LegalBasis = "vital_interests"
	BasisPublicTask          LegalBasis = "public_task"
	BasisLegitimateInterests LegalBasis = "legitimate_interests"
)

// IsValid reports whether the legal basis is one of the known values.
func (b LegalBasis) IsValid() bool {
	switch b {
	case BasisConsent, BasisContract, BasisLegalObligation,
		BasisVitalInterests, BasisPublicTask, BasisLegitimateInterests:
		return true
	}
	return false
}

// DataCategory classifies the kind of personal data touched by a processing
// activity. Retention policies are keyed by category.
type DataCategory string

const (
	CategoryIdentification DataCategory = "identification"
	CategoryContact        DataCategory = "contact"
	CategoryFinancial      DataCategory = "financial"
	CategoryBehavioral     DataCategory = "behavioral"
	CategoryLocation       DataCategory = "location"
	CategoryBiometric      DataCategory = "biometric"
	CategoryHealth         DataCategory = "health"
	CategoryPreferences    DataCategory = "preferences"
	CategoryUsageAnalytics DataCategory = "usage_analytics"
)

// IsValid reports whether the category is one of the known values.
func (c DataCategory) IsValid() bool {
	switch c {
	case CategoryIdentification, CategoryContact, CategoryFinancial,
		CategoryBehavioral, CategoryLocation, CategoryBiometric,
		CategoryHealth, CategoryPreferences, CategoryUsageAnalytics:
		return true
	}
	return false
}

// hoursPerMonth uses 30-day months for all window arithmetic. Retention and
// expiry windows are contractual approximations, not calendar months.
const hoursPerMonth = 24 * 30

// MonthsSince returns the fractional number of 30-day months between t and now.
func MonthsSince(t, now time.Time) float64 {
	return now.Sub(t).Hours() / hoursPerMonth
}

// DaysSince returns the fractional number of days between t and now.
func DaysSince(t, now time.Time) float64 {
	return now.Sub(t).Hours() / 24
}

// ConsentRecord is one purpose-scoped grant. Records are append-only history:
// withdrawal mutates the record in place (WithdrawnDate, ConsentGiven), but a
// record is never deleted except by subject erasure.
type ConsentRecord struct {
	ID            id.ConsentID
	SubjectID     id.SubjectID
	Purpose       string
	LegalBasis    LegalBasis
	ConsentGiven  bool
	ConsentDate   time.Time
	WithdrawnDate *time.Time
	Source        string
	IPAddress     string
	UserAgent     string
	Device        string
	Version       string
}

// IsActive reports whether this record is a live grant: given and not withdrawn.
func (c ConsentRecord) IsActive() bool {
	return c.ConsentGiven && c.WithdrawnDate == nil
}

// IsExpired reports whether a consent-basis record has aged past the validity
// window. Expiry is a derived property, never stored; non-consent bases do not
// expire.
func (c ConsentRecord) IsExpired(now time.Time, validityMonths int) bool {
	if c.LegalBasis != BasisConsent {
		return false
	}
	return MonthsSince(c.ConsentDate, now) > float64(validityMonths)
}

// ProcessingRecord is evidence that a processing activity occurred. Append-only.
type ProcessingRecord struct {
	ID         id.ProcessingID
	SubjectID  id.SubjectID
	Activity   string
	Purpose    string
	LegalBasis LegalBasis
	Categories []DataCategory
	Timestamp  time.Time
	System     string
	Automated  bool
	Metadata   map[string]string
}

// DataSubject anchors one natural person. It owns its consent and processing
// histories: deleting a subject deletes its children.
type DataSubject struct {
	ID           id.SubjectID
	Email        string
	Name         string
	Phone        string
	Document     string
	CreatedAt    time.Time
	LastActivity time.Time
	Consents     []*ConsentRecord
	Processing   []*ProcessingRecord
}

// ActiveConsent returns the most recent active record for the given purpose,
// or nil. "Active" is derived from the append-only history, most recent wins;
// there is deliberately no maintained current-state field.
func (s *DataSubject) ActiveConsent(purpose string) *ConsentRecord {
	var latest *ConsentRecord
	for _, c := range s.Consents {
		if c.Purpose != purpose || !c.IsActive() {
			continue
		}
		if latest == nil || c.ConsentDate.After(latest.ConsentDate) {
			latest = c
		}
	}
	return latest
}

// HasValidConsent reports whether any consent record is active and not expired.
func (s *DataSubject) HasValidConsent(now time.Time, validityMonths int) bool {
	for _, c := range s.Consents {
		if c.IsActive() && !c.IsExpired(now, validityMonths) {
			return true
		}
	}
	return false
}

// HasLegalObligation reports whether any processing record carries the
// legal_obligation basis, which blocks erasure.
func (s *DataSubject) HasLegalObligation() bool {
	for _, p := range s.Processing {
		if p.LegalBasis == BasisLegalObligation {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so snapshots handed to readers never alias live state.
func (s *DataSubject) Clone() *DataSubject {
	if s == nil {
		return nil
	}
	out := *s
	out.Consents = make([]*ConsentRecord, len(s.Consents))
	for i, c := range s.Consents {
		cc := *c
		if c.WithdrawnDate != nil {
			t := *c.WithdrawnDate
			cc.WithdrawnDate = &t
		}
		out.Consents[i] = &cc
	}
	out.Processing = make([]*ProcessingRecord, len(s.Processing))
	for i, p := range s.Processing {
		pp := *p
		pp.Categories = append([]DataCategory(nil), p.Categories...)
		if p.Metadata != nil {
			pp.Metadata = make(map[string]string, len(p.Metadata))
			for k, v := range p.Metadata {
				pp.Metadata[k] = v
			}
		}
		out.Processing[i] = &pp
	}
	return &out
}

// RequestType enumerates the data-subject rights.
type RequestType string

const (
	RequestAccess        RequestType = "access"
	RequestRectification RequestType = "rectification"
	RequestErasure       RequestType = "erasure"
	RequestPortability   RequestType = "portability"
	RequestRestriction   RequestType = "restriction"
	RequestObjection     RequestType = "objection"
)

// IsValid reports whether the request type is one of the known rights.
func (t RequestType) IsValid() bool {
	switch t {
	case RequestAccess, RequestRectification, RequestErasure,
		RequestPortability, RequestRestriction, RequestObjection:
		return true
	}
	return false
}

// RequestStatus is the workflow state of a privacy request.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusInProgress RequestStatus = "in_progress"
	StatusCompleted  RequestStatus = "completed"
	StatusRejected   RequestStatus = "rejected"
)

// IsTerminal reports whether the status admits no further transitions.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Urgency grades a privacy request for triage.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// IsValid reports whether the urgency is one of the known grades.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

// PrivacyRequest is one exercise of a data-subject right.
//
// State machine:
//
//	pending -> in_progress -> completed
//	pending -> in_progress -> rejected
//	pending -> rejected            (blocked before processing starts)
//
// Completion always passes through in_progress; terminal states are immutable.
type PrivacyRequest struct {
	ID             id.RequestID
	SubjectID      id.SubjectID
	Type           RequestType
	Status         RequestStatus
	RequestDate    time.Time
	CompletionDate *time.Time
	Description    string
	Response       string
	HandledBy      string
	Urgency        Urgency
	Metadata       map[string]string
}

// BeginProcessing moves a pending request to in_progress.
func (r *PrivacyRequest) BeginProcessing() error {
	if r.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"request is not pending: "+string(r.Status))
	}
	r.Status = StatusInProgress
	return nil
}

// Complete moves an in_progress request to completed with its response.
func (r *PrivacyRequest) Complete(response string, now time.Time) error {
	if r.Status != StatusInProgress {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"completion requires in_progress, got "+string(r.Status))
	}
	r.Status = StatusCompleted
	r.Response = response
	r.CompletionDate = &now
	return nil
}

// Reject moves a non-terminal request to rejected with an explanatory response.
// Rejection is valid from pending (erasure blocked before processing starts)
// as well as from in_progress.
func (r *PrivacyRequest) Reject(response string, now time.Time) error {
	if r.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"request already terminal: "+string(r.Status))
	}
	r.Status = StatusRejected
	r.Response = response
	r.CompletionDate = &now
	return nil
}

// IsOverdue reports whether a pending request has aged past the response deadline.
func (r *PrivacyRequest) IsOverdue(now time.Time, deadlineDays int) bool {
	if r.Status != StatusPending {
		return false
	}
	return DaysSince(r.RequestDate, now) > float64(deadlineDays)
}

// Clone returns a copy safe to hand to readers.
func (r *PrivacyRequest) Clone() *PrivacyRequest {
	if r == nil {
		return nil
	}
	out := *r
	if r.CompletionDate != nil {
		t := *r.CompletionDate
		out.CompletionDate = &t
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
