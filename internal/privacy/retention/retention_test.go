package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zykor/internal/platform/config"
	"zykor/internal/privacy/models"
	id "zykor/pkg/domain"
)

// EngineSuite tests deletion eligibility and the policy catalog.
//
// Justification: eligibility is a conjunction; getting either leg wrong
// deletes data a live consent still covers, or keeps data past its window.
type EngineSuite struct {
	suite.Suite
	engine *Engine
	now    time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.engine = NewEngine(config.PrivacyConfig{
		ConsentValidityMonths:     24,
		InactivityThresholdMonths: 36,
	})
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
}

func (s *EngineSuite) subject(subjectID string, lastActivity time.Time, consents ...*models.ConsentRecord) *models.DataSubject {
	return &models.DataSubject{
		ID:           id.SubjectID(subjectID),
		LastActivity: lastActivity,
		Consents:     consents,
	}
}

func (s *EngineSuite) monthsAgo(n int) time.Time {
	return s.now.AddDate(0, 0, -n*30)
}

func (s *EngineSuite) TestCatalogCoversExpectedCategories() {
	policies := s.engine.Policies()
	s.Len(policies, 5)

	financial, ok := s.engine.PolicyFor(models.CategoryFinancial)
	s.Require().True(ok)
	s.False(financial.AutoDelete, "financial data is kept for tax and anti-fraud obligations")
	s.Equal(60, financial.RetentionMonths)
	s.Contains(financial.Exceptions, "tax_obligations")

	analytics, ok := s.engine.PolicyFor(models.CategoryUsageAnalytics)
	s.Require().True(ok)
	s.True(analytics.AutoDelete)
	s.Equal(12, analytics.RetentionMonths)

	_, ok = s.engine.PolicyFor(models.CategoryBiometric)
	s.False(ok)
}

func (s *EngineSuite) TestInactiveWithoutConsentIsEligible() {
	subj := s.subject("cust-1", s.monthsAgo(37))
	got := s.engine.IdentifyForDeletion([]*models.DataSubject{subj}, s.now)
	s.Require().Len(got, 1)
	s.Equal(id.SubjectID("cust-1"), got[0].SubjectID)
	s.Equal("inactive for more than 36 months with no valid consent", got[0].Reason)
}

func (s *EngineSuite) TestRecentActivityKeepsSubject() {
	subj := s.subject("cust-1", s.monthsAgo(35))
	s.Empty(s.engine.IdentifyForDeletion([]*models.DataSubject{subj}, s.now))
}

func (s *EngineSuite) TestActiveConsentKeepsInactiveSubject() {
	subj := s.subject("cust-1", s.monthsAgo(40), &models.ConsentRecord{
		LegalBasis:   models.BasisConsent,
		ConsentGiven: true,
		ConsentDate:  s.monthsAgo(3),
	})
	s.Empty(s.engine.IdentifyForDeletion([]*models.DataSubject{subj}, s.now))
}

func (s *EngineSuite) TestExpiredConsentDoesNotKeepSubject() {
	subj := s.subject("cust-1", s.monthsAgo(40), &models.ConsentRecord{
		LegalBasis:   models.BasisConsent,
		ConsentGiven: true,
		ConsentDate:  s.monthsAgo(25),
	})
	got := s.engine.IdentifyForDeletion([]*models.DataSubject{subj}, s.now)
	s.Require().Len(got, 1)
	s.Equal(id.SubjectID("cust-1"), got[0].SubjectID)
}

func (s *EngineSuite) TestWithdrawnConsentDoesNotKeepSubject() {
	withdrawn := s.monthsAgo(1)
	subj := s.subject("cust-1", s.monthsAgo(40), &models.ConsentRecord{
		LegalBasis:    models.BasisConsent,
		ConsentGiven:  false,
		ConsentDate:   s.monthsAgo(3),
		WithdrawnDate: &withdrawn,
	})
	got := s.engine.IdentifyForDeletion([]*models.DataSubject{subj}, s.now)
	s.Require().Len(got, 1)
	s.Equal(id.SubjectID("cust-1"), got[0].SubjectID)
}

func (s *EngineSuite) TestInfoDerivesCategoriesFromProcessing() {
	subj := s.subject("cust-1", s.monthsAgo(2))
	subj.Processing = []*models.ProcessingRecord{
		{Categories: []models.DataCategory{models.CategoryContact, models.CategoryFinancial}},
	}

	info := s.engine.InfoFor(subj, s.now)
	s.Require().Len(info, 2)
	s.Equal(models.CategoryContact, info[0].Category)
	s.Equal(models.CategoryFinancial, info[1].Category)
	s.Equal(subj.LastActivity.Add(36*30*24*time.Hour), info[0].DeleteAfter)
}

func (s *EngineSuite) TestInfoFallsBackToFullCatalog() {
	subj := s.subject("cust-1", s.monthsAgo(2))
	info := s.engine.InfoFor(subj, s.now)
	s.Len(info, 5)
}
