package handler

import (
	"strings"

	"zykor/internal/privacy/models"
	dErrors "zykor/pkg/domain-errors"
)

// RecordConsentRequest captures a consent decision at the point it was made.
type RecordConsentRequest struct {
	SubjectID    string `json:"subject_id"`
	Purpose      string `json:"purpose"`
	LegalBasis   string `json:"legal_basis"`
	ConsentGiven bool   `json:"consent_given"`
	Source       string `json:"source"`
}

// Normalize applies business defaults and trims inputs.
func (r *RecordConsentRequest) Normalize() {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.Purpose = strings.TrimSpace(r.Purpose)
	if r.LegalBasis == "" {
		r.LegalBasis = string(models.BasisConsent)
	}
}

// Validate checks that the request is well-formed.
func (r *RecordConsentRequest) Validate() error {
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	if r.Purpose == "" {
		return dErrors.New(dErrors.CodeValidation, "purpose is required")
	}
	if !models.LegalBasis(r.LegalBasis).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown legal_basis: "+r.LegalBasis)
	}
	return nil
}

// WithdrawConsentRequest withdraws the active consent for one purpose.
type WithdrawConsentRequest struct {
	SubjectID string `json:"subject_id"`
	Purpose   string `json:"purpose"`
}

// Normalize trims inputs.
func (r *WithdrawConsentRequest) Normalize() {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.Purpose = strings.TrimSpace(r.Purpose)
}

// Validate checks that the request is well-formed.
func (r *WithdrawConsentRequest) Validate() error {
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	if r.Purpose == "" {
		return dErrors.New(dErrors.CodeValidation, "purpose is required")
	}
	return nil
}

// LogProcessingRequest records one processing activity.
type LogProcessingRequest struct {
	SubjectID  string            `json:"subject_id"`
	Activity   string            `json:"activity"`
	Purpose    string            `json:"purpose"`
	LegalBasis string            `json:"legal_basis"`
	Categories []string          `json:"categories"`
	System     string            `json:"system"`
	Automated  bool              `json:"automated"`
	Metadata   map[string]string `json:"metadata"`
}

// Normalize trims inputs.
func (r *LogProcessingRequest) Normalize() {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.Activity = strings.TrimSpace(r.Activity)
}

// Validate checks that the request is well-formed.
func (r *LogProcessingRequest) Validate() error {
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	if r.Activity == "" {
		return dErrors.New(dErrors.CodeValidation, "activity is required")
	}
	if !models.LegalBasis(r.LegalBasis).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown legal_basis: "+r.LegalBasis)
	}
	for _, c := range r.Categories {
		if !models.DataCategory(c).IsValid() {
			return dErrors.New(dErrors.CodeValidation, "unknown category: "+c)
		}
	}
	return nil
}

// ToCategories converts validated category strings into domain categories.
func (r *LogProcessingRequest) ToCategories() []models.DataCategory {
	out := make([]models.DataCategory, 0, len(r.Categories))
	for _, c := range r.Categories {
		out = append(out, models.DataCategory(c))
	}
	return out
}

// CreatePrivacyRequest opens a new data-subject-rights request.
type CreatePrivacyRequest struct {
	SubjectID   string            `json:"subject_id"`
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Urgency     string            `json:"urgency"`
	Metadata    map[string]string `json:"metadata"`
}

// Normalize trims inputs.
func (r *CreatePrivacyRequest) Normalize() {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.Type = strings.TrimSpace(strings.ToLower(r.Type))
	r.Urgency = strings.TrimSpace(strings.ToLower(r.Urgency))
}

// Validate checks that the request is well-formed.
func (r *CreatePrivacyRequest) Validate() error {
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	if !models.RequestType(r.Type).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown request type: "+r.Type)
	}
	if r.Urgency != "" && !models.Urgency(r.Urgency).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown urgency: "+r.Urgency)
	}
	return nil
}

// ProcessRequestBody carries the operator identity for access and erasure
// processing. The body is optional.
type ProcessRequestBody struct {
	HandledBy string `json:"handled_by"`
}

// ResolveRequestBody manually resolves a request.
type ResolveRequestBody struct {
	Outcome   string `json:"outcome"`
	Response  string `json:"response"`
	HandledBy string `json:"handled_by"`
}

// Validate checks that the request is well-formed.
func (r *ResolveRequestBody) Validate() error {
	if r.Outcome != "completed" && r.Outcome != "rejected" {
		return dErrors.New(dErrors.CodeValidation, "outcome must be completed or rejected")
	}
	if strings.TrimSpace(r.Response) == "" {
		return dErrors.New(dErrors.CodeValidation, "response is required")
	}
	return nil
}
