package request

import (
	"time"

	"zykor/internal/privacy/models"
	"zykor/internal/privacy/retention"
)

// AccessExport is the machine-readable deliverable for an access request:
// everything held about the subject, plus the retention disclosure and the
// controller identity required on data-subject communications.
type AccessExport struct {
	GeneratedAt   time.Time          `json:"generated_at"`
	Controller    ControllerExport   `json:"controller"`
	BasicInfo     BasicInfoExport    `json:"basic_info"`
	Consents      []ConsentExport    `json:"consents"`
	Processing    []ProcessingExport `json:"data_processing"`
	RetentionInfo []retention.Info   `json:"retention_info"`
}

// ControllerExport identifies the data controller and its DPO.
type ControllerExport struct {
	Name         string `json:"name"`
	Registration string `json:"registration_number"`
	Address      string `json:"address"`
	ContactEmail string `json:"contact_email"`
	DPOEmail     string `json:"dpo_email"`
}

// BasicInfoExport is the subject's profile data.
type BasicInfoExport struct {
	SubjectID    string    `json:"subject_id"`
	Email        string    `json:"email,omitempty"`
	Name         string    `json:"name,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Document     string    `json:"document,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// ConsentExport is one consent record in the export.
type ConsentExport struct {
	Purpose       string     `json:"purpose"`
	LegalBasis    string     `json:"legal_basis"`
	ConsentGiven  bool       `json:"consent_given"`
	ConsentDate   time.Time  `json:"consent_date"`
	WithdrawnDate *time.Time `json:"withdrawn_date"`
	Source        string     `json:"source,omitempty"`
	Version       string     `json:"version,omitempty"`
}

// ProcessingExport is one processing record in the export.
type ProcessingExport struct {
	Activity   string    `json:"activity"`
	Purpose    string    `json:"purpose,omitempty"`
	LegalBasis string    `json:"legal_basis"`
	Categories []string  `json:"categories"`
	Timestamp  time.Time `json:"timestamp"`
	System     string    `json:"system,omitempty"`
	Automated  bool      `json:"automated"`
}

// sections names the exported field groups for the audit trail. The audit
// entry records what was exported, never the data itself.
func (e *AccessExport) sections() []string {
	return []string{"basic_info", "consents", "data_processing", "retention_info"}
}

func (s *Service) buildExport(subj *models.DataSubject, now time.Time) *AccessExport {
	export := &AccessExport{
		GeneratedAt: now,
		Controller: ControllerExport{
			Name:         s.cfg.Controller.Name,
			Registration: s.cfg.Controller.RegistrationNumber,
			Address:      s.cfg.Controller.Address,
			ContactEmail: s.cfg.Controller.ContactEmail,
			DPOEmail:     s.cfg.Controller.DPOEmail,
		},
		BasicInfo: BasicInfoExport{
			SubjectID:    subj.ID.String(),
			Email:        subj.Email,
			Name:         subj.Name,
			Phone:        subj.Phone,
			Document:     subj.Document,
			CreatedAt:    subj.CreatedAt,
			LastActivity: subj.LastActivity,
		},
		Consents:      make([]ConsentExport, 0, len(subj.Consents)),
		Processing:    make([]ProcessingExport, 0, len(subj.Processing)),
		RetentionInfo: s.retention.InfoFor(subj, now),
	}

	for _, c := range subj.Consents {
		export.Consents = append(export.Consents, ConsentExport{
			Purpose:       c.Purpose,
			LegalBasis:    string(c.LegalBasis),
			ConsentGiven:  c.ConsentGiven,
			ConsentDate:   c.ConsentDate,
			WithdrawnDate: c.WithdrawnDate,
			Source:        c.Source,
			Version:       c.Version,
		})
	}
	for _, p := range subj.Processing {
		categories := make([]string, 0, len(p.Categories))
		for _, c := range p.Categories {
			categories = append(categories, string(c))
		}
		export.Processing = append(export.Processing, ProcessingExport{
			Activity:   p.Activity,
			Purpose:    p.Purpose,
			LegalBasis: string(p.LegalBasis),
			Categories: categories,
			Timestamp:  p.Timestamp,
			System:     p.System,
			Automated:  p.Automated,
		})
	}
	return export
}
