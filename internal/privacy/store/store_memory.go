package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"zykor/internal/privacy/models"
	id "zykor/pkg/domain"
)

// MemorySubjectStore is a mutex-guarded in-memory SubjectStore. All reads
// return deep copies so callers never alias live state.
type MemorySubjectStore struct {
	mu       sync.RWMutex
	subjects map[id.SubjectID]*models.DataSubject
}

// NewMemorySubjectStore creates an empty in-memory subject store.
func NewMemorySubjectStore() *MemorySubjectStore {
	return &MemorySubjectStore{
		subjects: make(map[id.SubjectID]*models.DataSubject),
	}
}

func (s *MemorySubjectStore) GetOrCreate(_ context.Context, subjectID id.SubjectID, now time.Time) (*models.DataSubject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(subjectID, now).Clone(), nil
}

func (s *MemorySubjectStore) getOrCreateLocked(subjectID id.SubjectID, now time.Time) *models.DataSubject {
	if subj, ok := s.subjects[subjectID]; ok {
		return subj
	}
	subj := &models.DataSubject{
		ID:           subjectID,
		CreatedAt:    now,
		LastActivity: now,
	}
	s.subjects[subjectID] = subj
	return subj
}

func (s *MemorySubjectStore) Get(_ context.Context, subjectID id.SubjectID) (*models.DataSubject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subj, ok := s.subjects[subjectID]
	if !ok {
		return nil, ErrNotFound
	}
	return subj.Clone(), nil
}

func (s *MemorySubjectStore) AppendConsent(_ context.Context, record *models.ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subj := s.getOrCreateLocked(record.SubjectID, record.ConsentDate)
	copied := *record
	subj.Consents = append(subj.Consents, &copied)
	if record.ConsentDate.After(subj.LastActivity) {
		subj.LastActivity = record.ConsentDate
	}
	return nil
}

func (s *MemorySubjectStore) WithdrawConsent(_ context.Context, subjectID id.SubjectID, purpose string, at time.Time) (*models.ConsentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subj, ok := s.subjects[subjectID]
	if !ok {
		return nil, ErrNoActiveConsent
	}

	target := subj.ActiveConsent(purpose)
	if target == nil {
		return nil, ErrNoActiveConsent
	}

	withdrawn := at
	target.ConsentGiven = false
	target.WithdrawnDate = &withdrawn
	if at.After(subj.LastActivity) {
		subj.LastActivity = at
	}

	copied := *target
	t := *target.WithdrawnDate
	copied.WithdrawnDate = &t
	return &copied, nil
}

func (s *MemorySubjectStore) AppendProcessing(_ context.Context, record *models.ProcessingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subj := s.getOrCreateLocked(record.SubjectID, record.Timestamp)
	copied := *record
	copied.Categories = append([]models.DataCategory(nil), record.Categories...)
	if record.Metadata != nil {
		copied.Metadata = make(map[string]string, len(record.Metadata))
		for k, v := range record.Metadata {
			copied.Metadata[k] = v
		}
	}
	subj.Processing = append(subj.Processing, &copied)
	if record.Timestamp.After(subj.LastActivity) {
		subj.LastActivity = record.Timestamp
	}
	return nil
}

func (s *MemorySubjectStore) WithdrawExpiredConsents(_ context.Context, cutoff, now time.Time) ([]*models.ConsentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var withdrawn []*models.ConsentRecord
	for _, subj := range s.subjects {
		for _, c := range subj.Consents {
			if !c.IsActive() || c.LegalBasis != models.BasisConsent {
				continue
			}
			if !c.ConsentDate.Before(cutoff) {
				continue
			}
			at := now
			c.ConsentGiven = false
			c.WithdrawnDate = &at

			copied := *c
			t := at
			copied.WithdrawnDate = &t
			withdrawn = append(withdrawn, &copied)
		}
	}
	return withdrawn, nil
}

func (s *MemorySubjectStore) ListSubjects(_ context.Context) ([]*models.DataSubject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.DataSubject, 0, len(s.subjects))
	for _, subj := range s.subjects {
		out = append(out, subj.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemorySubjectStore) Delete(_ context.Context, subjectID id.SubjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subjects[subjectID]; !ok {
		return ErrNotFound
	}
	delete(s.subjects, subjectID)
	return nil
}

// MemoryRequestStore is a mutex-guarded in-memory RequestStore.
type MemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.PrivacyRequest
}

// NewMemoryRequestStore creates an empty in-memory request store.
func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{
		requests: make(map[id.RequestID]*models.PrivacyRequest),
	}
}

func (s *MemoryRequestStore) Create(_ context.Context, request *models.PrivacyRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[request.ID] = request.Clone()
	return nil
}

func (s *MemoryRequestStore) Get(_ context.Context, requestID id.RequestID) (*models.PrivacyRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	return req.Clone(), nil
}

func (s *MemoryRequestStore) Update(_ context.Context, request *models.PrivacyRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[request.ID]; !ok {
		return ErrNotFound
	}
	s.requests[request.ID] = request.Clone()
	return nil
}

func (s *MemoryRequestStore) List(_ context.Context) ([]*models.PrivacyRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.PrivacyRequest, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, req.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestDate.After(out[j].RequestDate) })
	return out, nil
}
