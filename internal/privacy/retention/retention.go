// Package retention holds the static retention policy catalog and decides
// which subjects are eligible for automated deletion.
package retention

import (
	"fmt"
	"sort"
	"time"

	"zykor/internal/platform/config"
	"zykor/internal/privacy/models"
	id "zykor/pkg/domain"
)

// Policy describes how long one category of personal data may be kept.
type Policy struct {
	Category        models.DataCategory `json:"category"`
	RetentionMonths int                 `json:"retention_months"`
	LegalBasis      string              `json:"legal_basis"`
	AutoDelete      bool                `json:"auto_delete"`
	Exceptions      []string            `json:"exceptions,omitempty"`
}

// Info is the retention disclosure included in access exports: the policy for
// one category plus the projected deletion date for this subject.
type Info struct {
	Category        models.DataCategory `json:"category"`
	RetentionMonths int                 `json:"retention_months"`
	AutoDelete      bool                `json:"auto_delete"`
	DeleteAfter     time.Time           `json:"delete_after"`
}

// Engine evaluates retention policies against subject state. The catalog is
// fixed at construction; changing policies is a deployment event.
type Engine struct {
	policies         map[models.DataCategory]Policy
	validityMonths   int
	inactivityMonths int
}

// defaultCatalog mirrors the retention schedule from the company's records of
// processing activities. Financial data is never auto-deleted while tax and
// anti-fraud obligations apply.
func defaultCatalog() []Policy {
	return []Policy{
		{
			Category:        models.CategoryIdentification,
			RetentionMonths: 60,
			LegalBasis:      "legal_obligation",
			AutoDelete:      true,
		},
		{
			Category:        models.CategoryContact,
			RetentionMonths: 36,
			LegalBasis:      "legitimate_interests",
			AutoDelete:      true,
			Exceptions:      []string{"active_customer"},
		},
		{
			Category:        models.CategoryFinancial,
			RetentionMonths: 60,
			LegalBasis:      "legal_obligation",
			AutoDelete:      false,
			Exceptions:      []string{"tax_obligations", "anti_fraud"},
		},
		{
			Category:        models.CategoryBehavioral,
			RetentionMonths: 24,
			LegalBasis:      "consent",
			AutoDelete:      true,
		},
		{
			Category:        models.CategoryUsageAnalytics,
			RetentionMonths: 12,
			LegalBasis:      "consent",
			AutoDelete:      true,
		},
	}
}

// NewEngine builds an engine with the default catalog and the configured
// consent validity and inactivity windows.
func NewEngine(cfg config.PrivacyConfig) *Engine {
	e := &Engine{
		policies:         make(map[models.DataCategory]Policy),
		validityMonths:   cfg.ConsentValidityMonths,
		inactivityMonths: cfg.InactivityThresholdMonths,
	}
	for _, p := range defaultCatalog() {
		e.policies[p.Category] = p
	}
	return e
}

// PolicyFor returns the policy covering the category, if any.
func (e *Engine) PolicyFor(category models.DataCategory) (Policy, bool) {
	p, ok := e.policies[category]
	return p, ok
}

// Policies returns the full catalog ordered by category.
func (e *Engine) Policies() []Policy {
	out := make([]Policy, 0, len(e.policies))
	for _, p := range e.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Candidate is one subject eligible for automated deletion. The reason is the
// human-readable justification carried into the cleanup log and the deletion
// audit entry.
type Candidate struct {
	SubjectID id.SubjectID
	Reason    string
}

// IdentifyForDeletion returns the subjects eligible for automated deletion:
// no activity within the inactivity window and no active, unexpired consent.
// An active consent or recent activity each independently keeps a subject.
func (e *Engine) IdentifyForDeletion(subjects []*models.DataSubject, now time.Time) []Candidate {
	var out []Candidate
	for _, subj := range subjects {
		if models.MonthsSince(subj.LastActivity, now) <= float64(e.inactivityMonths) {
			continue
		}
		if subj.HasValidConsent(now, e.validityMonths) {
			continue
		}
		out = append(out, Candidate{
			SubjectID: subj.ID,
			Reason:    fmt.Sprintf("inactive for more than %d months with no valid consent", e.inactivityMonths),
		})
	}
	return out
}

// InfoFor returns the retention disclosure for a subject. Categories are
// taken from the subject's processing history; a subject with no processing
// records gets the full catalog so the disclosure is never empty.
func (e *Engine) InfoFor(subject *models.DataSubject, now time.Time) []Info {
	categories := make(map[models.DataCategory]struct{})
	for _, p := range subject.Processing {
		for _, c := range p.Categories {
			categories[c] = struct{}{}
		}
	}

	var policies []Policy
	if len(categories) == 0 {
		policies = e.Policies()
	} else {
		for c := range categories {
			if p, ok := e.policies[c]; ok {
				policies = append(policies, p)
			}
		}
		sort.Slice(policies, func(i, j int) bool { return policies[i].Category < policies[j].Category })
	}

	out := make([]Info, 0, len(policies))
	for _, p := range policies {
		out = append(out, Info{
			Category:        p.Category,
			RetentionMonths: p.RetentionMonths,
			AutoDelete:      p.AutoDelete,
			DeleteAfter:     subject.LastActivity.Add(time.Duration(p.RetentionMonths) * 30 * 24 * time.Hour),
		})
	}
	return out
}
