package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "zykor/pkg/domain"
	dErrors "zykor/pkg/domain-errors"
)

// ConsentRecordSuite tests consent state derivation.
//
// Justification: "active" and "expired" are derived properties computed on
// every read, never stored. A bug here silently changes what the ledger,
// retention engine, and compliance auditor all see.
type ConsentRecordSuite struct {
	suite.Suite
	now time.Time
}

func TestConsentRecordSuite(t *testing.T) {
	suite.Run(t, new(ConsentRecordSuite))
}

func (s *ConsentRecordSuite) SetupTest() {
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
}

func (s *ConsentRecordSuite) TestActiveRequiresGivenAndNotWithdrawn() {
	withdrawn := s.now
	cases := []struct {
		name   string
		record ConsentRecord
		active bool
	}{
		{"given and not withdrawn", ConsentRecord{ConsentGiven: true}, true},
		{"given but withdrawn", ConsentRecord{ConsentGiven: true, WithdrawnDate: &withdrawn}, false},
		{"refused", ConsentRecord{ConsentGiven: false}, false},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.Equal(tc.active, tc.record.IsActive())
		})
	}
}

func (s *ConsentRecordSuite) TestExpiryUsesThirtyDayMonths() {
	validity := 24

	fresh := ConsentRecord{
		LegalBasis:   BasisConsent,
		ConsentGiven: true,
		ConsentDate:  s.now.AddDate(0, 0, -23*30),
	}
	s.False(fresh.IsExpired(s.now, validity))

	// 25 thirty-day months back is past the window even though a calendar
	// reading might disagree near month boundaries.
	stale := ConsentRecord{
		LegalBasis:   BasisConsent,
		ConsentGiven: true,
		ConsentDate:  s.now.AddDate(0, 0, -25*30),
	}
	s.True(stale.IsExpired(s.now, validity))
}

func (s *ConsentRecordSuite) TestNonConsentBasisNeverExpires() {
	rec := ConsentRecord{
		LegalBasis:   BasisContract,
		ConsentGiven: true,
		ConsentDate:  s.now.AddDate(-10, 0, 0),
	}
	s.False(rec.IsExpired(s.now, 24))
}

// DataSubjectSuite tests history derivation on the aggregate.
//
// Justification: the most-recent-wins rule is the one place where the
// append-only ledger collapses to a current consent state.
type DataSubjectSuite struct {
	suite.Suite
	now time.Time
}

func TestDataSubjectSuite(t *testing.T) {
	suite.Run(t, new(DataSubjectSuite))
}

func (s *DataSubjectSuite) SetupTest() {
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
}

func (s *DataSubjectSuite) TestActiveConsentMostRecentWins() {
	older := &ConsentRecord{
		ID: id.NewConsentID(), Purpose: "marketing",
		ConsentGiven: true, ConsentDate: s.now.AddDate(0, -6, 0),
	}
	newer := &ConsentRecord{
		ID: id.NewConsentID(), Purpose: "marketing",
		ConsentGiven: true, ConsentDate: s.now.AddDate(0, -1, 0),
	}
	other := &ConsentRecord{
		ID: id.NewConsentID(), Purpose: "analytics",
		ConsentGiven: true, ConsentDate: s.now,
	}
	subj := &DataSubject{Consents: []*ConsentRecord{older, newer, other}}

	got := subj.ActiveConsent("marketing")
	s.Require().NotNil(got)
	s.Equal(newer.ID, got.ID)
}

func (s *DataSubjectSuite) TestActiveConsentIgnoresWithdrawn() {
	withdrawn := s.now.AddDate(0, 0, -1)
	subj := &DataSubject{Consents: []*ConsentRecord{
		{Purpose: "marketing", ConsentGiven: true,
			ConsentDate: s.now.AddDate(0, -1, 0), WithdrawnDate: &withdrawn},
	}}
	s.Nil(subj.ActiveConsent("marketing"))
}

func (s *DataSubjectSuite) TestHasValidConsentExcludesExpired() {
	subj := &DataSubject{Consents: []*ConsentRecord{
		{LegalBasis: BasisConsent, ConsentGiven: true,
			ConsentDate: s.now.AddDate(0, 0, -25*30)},
	}}
	s.False(subj.HasValidConsent(s.now, 24))

	subj.Consents = append(subj.Consents, &ConsentRecord{
		LegalBasis: BasisConsent, ConsentGiven: true,
		ConsentDate: s.now.AddDate(0, -1, 0),
	})
	s.True(subj.HasValidConsent(s.now, 24))
}

func (s *DataSubjectSuite) TestHasLegalObligation() {
	subj := &DataSubject{Processing: []*ProcessingRecord{
		{LegalBasis: BasisConsent},
		{LegalBasis: BasisLegalObligation},
	}}
	s.True(subj.HasLegalObligation())

	subj.Processing = subj.Processing[:1]
	s.False(subj.HasLegalObligation())
}

func (s *DataSubjectSuite) TestCloneDoesNotAlias() {
	withdrawn := s.now
	subj := &DataSubject{
		ID: "cust-1",
		Consents: []*ConsentRecord{
			{Purpose: "marketing", ConsentGiven: true, WithdrawnDate: &withdrawn},
		},
		Processing: []*ProcessingRecord{
			{Activity: "login", Metadata: map[string]string{"ip": "10.0.0.1"}},
		},
	}

	clone := subj.Clone()
	clone.Consents[0].Purpose = "changed"
	*clone.Consents[0].WithdrawnDate = s.now.AddDate(1, 0, 0)
	clone.Processing[0].Metadata["ip"] = "changed"

	s.Equal("marketing", subj.Consents[0].Purpose)
	s.Equal(s.now, *subj.Consents[0].WithdrawnDate)
	s.Equal("10.0.0.1", subj.Processing[0].Metadata["ip"])
}

// PrivacyRequestSuite tests the request state machine.
//
// Justification: once a request is terminal it must be immutable, and
// completion must pass through in_progress; these transitions are the
// audit-relevant part of the workflow.
type PrivacyRequestSuite struct {
	suite.Suite
	now time.Time
}

func TestPrivacyRequestSuite(t *testing.T) {
	suite.Run(t, new(PrivacyRequestSuite))
}

func (s *PrivacyRequestSuite) SetupTest() {
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
}

func (s *PrivacyRequestSuite) newRequest() *PrivacyRequest {
	return &PrivacyRequest{
		ID:          id.NewRequestID(),
		SubjectID:   "cust-1",
		Type:        RequestAccess,
		Status:      StatusPending,
		RequestDate: s.now.AddDate(0, 0, -2),
	}
}

func (s *PrivacyRequestSuite) TestHappyPath() {
	req := s.newRequest()

	s.Require().NoError(req.BeginProcessing())
	s.Equal(StatusInProgress, req.Status)

	s.Require().NoError(req.Complete("export attached", s.now))
	s.Equal(StatusCompleted, req.Status)
	s.Equal("export attached", req.Response)
	s.Require().NotNil(req.CompletionDate)
	s.Equal(s.now, *req.CompletionDate)
}

func (s *PrivacyRequestSuite) TestCompleteRequiresInProgress() {
	req := s.newRequest()
	err := req.Complete("too soon", s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	s.Equal(StatusPending, req.Status)
}

func (s *PrivacyRequestSuite) TestRejectFromPending() {
	req := s.newRequest()
	s.Require().NoError(req.Reject("erasure blocked by legal obligation", s.now))
	s.Equal(StatusRejected, req.Status)
	s.NotNil(req.CompletionDate)
}

func (s *PrivacyRequestSuite) TestTerminalStatesAreImmutable() {
	req := s.newRequest()
	s.Require().NoError(req.BeginProcessing())
	s.Require().NoError(req.Complete("done", s.now))

	s.True(dErrors.HasCode(req.BeginProcessing(), dErrors.CodeInvariantViolation))
	s.True(dErrors.HasCode(req.Reject("no", s.now), dErrors.CodeInvariantViolation))
	s.True(dErrors.HasCode(req.Complete("again", s.now), dErrors.CodeInvariantViolation))
	s.Equal(StatusCompleted, req.Status)
	s.Equal("done", req.Response)
}

func (s *PrivacyRequestSuite) TestOverdueOnlyWhilePending() {
	req := s.newRequest()
	req.RequestDate = s.now.AddDate(0, 0, -20)
	s.True(req.IsOverdue(s.now, 15))

	s.Require().NoError(req.BeginProcessing())
	s.False(req.IsOverdue(s.now, 15))
}

func (s *PrivacyRequestSuite) TestEnumValidation() {
	s.True(RequestErasure.IsValid())
	s.False(RequestType("deletion").IsValid())

	s.True(BasisLegitimateInterests.IsValid())
	s.False(LegalBasis("because").IsValid())

	s.True(CategoryUsageAnalytics.IsValid())
	s.False(DataCategory("misc").IsValid())

	s.True(UrgencyHigh.IsValid())
	s.False(Urgency("urgent").IsValid())
}
