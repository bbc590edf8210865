package store

import (
	"context"
	"sync"

	"examreg/internal/exam/models"
	id "examreg/pkg/domain"
	"examreg/pkg/sentinel"
)

// InMemory keeps exams and sites in maps. Snapshots are returned by value so
// callers can never mutate shared state; all counter movement goes through
// ReserveSeat/ReleaseSeat under the store mutex.
type InMemory struct {
	mu     sync.RWMutex
	exams  map[id.ExamID]models.Exam
	sites  map[id.ExamSiteID]models.ExamSite
	nextID int64
}

func NewInMemory() *InMemory {
	return &InMemory{
		exams:  make(map[id.ExamID]models.Exam),
		sites:  make(map[id.ExamSiteID]models.ExamSite),
		nextID: 1,
	}
}

// PutExam inserts or replaces an exam, assigning an ID when absent.
func (s *InMemory) PutExam(_ context.Context, exam models.Exam) (models.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exam.ID == 0 {
		exam.ID = id.ExamID(s.nextID)
		s.nextID++
	}
	s.exams[exam.ID] = exam
	return exam, nil
}

// PutSite inserts or replaces a site, assigning an ID when absent.
func (s *InMemory) PutSite(_ context.Context, site models.ExamSite) (models.ExamSite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if site.ID == 0 {
		site.ID = id.ExamSiteID(s.nextID)
		s.nextID++
	}
	s.sites[site.ID] = site
	return site, nil
}

func (s *InMemory) FindExam(_ context.Context, examID id.ExamID) (models.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exam, ok := s.exams[examID]
	if !ok {
		return models.Exam{}, sentinel.ErrNotFound
	}
	return exam, nil
}

func (s *InMemory) FindSite(_ context.Context, siteID id.ExamSiteID) (models.ExamSite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[siteID]
	if !ok {
		return models.ExamSite{}, sentinel.ErrNotFound
	}
	return site, nil
}

// ListSites returns the sites attached to an exam.
func (s *InMemory) ListSites(_ context.Context, examID id.ExamID) ([]models.ExamSite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ExamSite
	for _, site := range s.sites {
		if site.ExamID == examID {
			out = append(out, site)
		}
	}
	return out, nil
}

// ReserveSeat consumes one capacity unit on the exam and the site, or neither.
// Returns ErrExamFull/ErrSiteFull when a ceiling would be exceeded.
func (s *InMemory) ReserveSeat(_ context.Context, examID id.ExamID, siteID id.ExamSiteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exam, ok := s.exams[examID]
	if !ok {
		return sentinel.ErrNotFound
	}
	site, ok := s.sites[siteID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if exam.QuotaExhausted() {
		return ErrExamFull
	}
	if site.Full() {
		return ErrSiteFull
	}

	exam.CurrentCount++
	site.CurrentCount++
	s.exams[examID] = exam
	s.sites[siteID] = site
	return nil
}

// ReleaseSeat returns one capacity unit on cancellation. Counters never go
// below zero.
func (s *InMemory) ReleaseSeat(_ context.Context, examID id.ExamID, siteID id.ExamSiteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exam, ok := s.exams[examID]; ok && exam.CurrentCount > 0 {
		exam.CurrentCount--
		s.exams[examID] = exam
	}
	if site, ok := s.sites[siteID]; ok && site.CurrentCount > 0 {
		site.CurrentCount--
		s.sites[siteID] = site
	}
	return nil
}
