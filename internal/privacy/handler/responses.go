package handler

import (
	"time"

	"zykor/internal/privacy/models"
)

// ConsentResponse is the wire form of a consent record.
type ConsentResponse struct {
	ID            string     `json:"id"`
	SubjectID     string     `json:"subject_id"`
	Purpose       string     `json:"purpose"`
	LegalBasis    string     `json:"legal_basis"`
	ConsentGiven  bool       `json:"consent_given"`
	ConsentDate   time.Time  `json:"consent_date"`
	WithdrawnDate *time.Time `json:"withdrawn_date,omitempty"`
	Source        string     `json:"source,omitempty"`
	Device        string     `json:"device,omitempty"`
	Version       string     `json:"version,omitempty"`
}

func newConsentResponse(rec *models.ConsentRecord) ConsentResponse {
	return ConsentResponse{
		ID:            rec.ID.String(),
		SubjectID:     rec.SubjectID.String(),
		Purpose:       rec.Purpose,
		LegalBasis:    string(rec.LegalBasis),
		ConsentGiven:  rec.ConsentGiven,
		ConsentDate:   rec.ConsentDate,
		WithdrawnDate: rec.WithdrawnDate,
		Source:        rec.Source,
		Device:        rec.Device,
		Version:       rec.Version,
	}
}

// ConsentHistoryResponse lists a subject's full consent history.
type ConsentHistoryResponse struct {
	SubjectID string            `json:"subject_id"`
	Consents  []ConsentResponse `json:"consents"`
}

// WithdrawResponse reports the outcome of a withdrawal. Withdrawn is false
// when there was no active consent to withdraw.
type WithdrawResponse struct {
	Withdrawn bool `json:"withdrawn"`
}

// ActiveConsentResponse answers a point-in-time consent check.
type ActiveConsentResponse struct {
	SubjectID string `json:"subject_id"`
	Purpose   string `json:"purpose"`
	Active    bool   `json:"active"`
}

// ProcessingResponse is the wire form of a processing record.
type ProcessingResponse struct {
	ID         string            `json:"id"`
	SubjectID  string            `json:"subject_id"`
	Activity   string            `json:"activity"`
	Purpose    string            `json:"purpose,omitempty"`
	LegalBasis string            `json:"legal_basis"`
	Categories []string          `json:"categories,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	System     string            `json:"system,omitempty"`
	Automated  bool              `json:"automated"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func newProcessingResponse(rec *models.ProcessingRecord) ProcessingResponse {
	categories := make([]string, 0, len(rec.Categories))
	for _, c := range rec.Categories {
		categories = append(categories, string(c))
	}
	return ProcessingResponse{
		ID:         rec.ID.String(),
		SubjectID:  rec.SubjectID.String(),
		Activity:   rec.Activity,
		Purpose:    rec.Purpose,
		LegalBasis: string(rec.LegalBasis),
		Categories: categories,
		Timestamp:  rec.Timestamp,
		System:     rec.System,
		Automated:  rec.Automated,
		Metadata:   rec.Metadata,
	}
}

// RequestResponse is the wire form of a privacy request.
type RequestResponse struct {
	ID             string     `json:"id"`
	SubjectID      string     `json:"subject_id"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	RequestDate    time.Time  `json:"request_date"`
	CompletionDate *time.Time `json:"completion_date,omitempty"`
	Description    string     `json:"description,omitempty"`
	Response       string     `json:"response,omitempty"`
	HandledBy      string     `json:"handled_by,omitempty"`
	Urgency        string     `json:"urgency"`
}

func newRequestResponse(req *models.PrivacyRequest) RequestResponse {
	return RequestResponse{
		ID:             req.ID.String(),
		SubjectID:      req.SubjectID.String(),
		Type:           string(req.Type),
		Status:         string(req.Status),
		RequestDate:    req.RequestDate,
		CompletionDate: req.CompletionDate,
		Description:    req.Description,
		Response:       req.Response,
		HandledBy:      req.HandledBy,
		Urgency:        string(req.Urgency),
	}
}

// RequestListResponse lists privacy requests, newest first.
type RequestListResponse struct {
	Requests []RequestResponse `json:"requests"`
}
