package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"examreg/internal/exam/models"
	"examreg/pkg/sentinel"
)

type ExamStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestExamStoreSuite(t *testing.T) {
	suite.Run(t, new(ExamStoreSuite))
}

func (s *ExamStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *ExamStoreSuite) seed(quota, capacity int) (models.Exam, models.ExamSite) {
	exam, err := s.store.PutExam(s.ctx, models.Exam{
		Name:       "Written Test",
		Status:     models.ExamStatusRegistrationOpen,
		TotalQuota: quota,
		FeeCents:   15000,
	})
	s.Require().NoError(err)
	site, err := s.store.PutSite(s.ctx, models.ExamSite{
		ExamID:   exam.ID,
		Name:     "Main Hall",
		Capacity: capacity,
	})
	s.Require().NoError(err)
	return exam, site
}

func (s *ExamStoreSuite) TestLookups() {
	exam, site := s.seed(10, 5)

	found, err := s.store.FindExam(s.ctx, exam.ID)
	s.Require().NoError(err)
	s.Equal(exam.Name, found.Name)

	foundSite, err := s.store.FindSite(s.ctx, site.ID)
	s.Require().NoError(err)
	s.Equal(site.Capacity, foundSite.Capacity)

	_, err = s.store.FindExam(s.ctx, 9999)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ExamStoreSuite) TestReserveSeat() {
	s.Run("increments both counters", func() {
		exam, site := s.seed(10, 5)
		s.Require().NoError(s.store.ReserveSeat(s.ctx, exam.ID, site.ID))

		gotExam, _ := s.store.FindExam(s.ctx, exam.ID)
		gotSite, _ := s.store.FindSite(s.ctx, site.ID)
		s.Equal(1, gotExam.CurrentCount)
		s.Equal(1, gotSite.CurrentCount)
	})

	s.Run("rejects when exam quota exhausted", func() {
		exam, site := s.seed(1, 5)
		s.Require().NoError(s.store.ReserveSeat(s.ctx, exam.ID, site.ID))

		err := s.store.ReserveSeat(s.ctx, exam.ID, site.ID)
		s.ErrorIs(err, ErrExamFull)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("rejects when site full", func() {
		exam, site := s.seed(0, 1) // no exam quota, one seat at the site
		s.Require().NoError(s.store.ReserveSeat(s.ctx, exam.ID, site.ID))

		err := s.store.ReserveSeat(s.ctx, exam.ID, site.ID)
		s.ErrorIs(err, ErrSiteFull)

		gotExam, _ := s.store.FindExam(s.ctx, exam.ID)
		s.Equal(1, gotExam.CurrentCount, "failed reservation must not leak an exam count")
	})

	s.Run("zero quota means unlimited", func() {
		exam, site := s.seed(0, 100)
		for range 10 {
			s.Require().NoError(s.store.ReserveSeat(s.ctx, exam.ID, site.ID))
		}
	})
}

// TestConcurrentReserveLastSeat races N reservations against one remaining
// seat; exactly one may win and the counter must never exceed capacity.
func (s *ExamStoreSuite) TestConcurrentReserveLastSeat() {
	exam, site := s.seed(0, 1)

	const n = 32
	var wg sync.WaitGroup
	successes := make(chan struct{}, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.ReserveSeat(s.ctx, exam.ID, site.ID); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	s.Equal(1, len(successes))
	gotSite, _ := s.store.FindSite(s.ctx, site.ID)
	s.Equal(1, gotSite.CurrentCount)
}

func (s *ExamStoreSuite) TestReleaseSeat() {
	exam, site := s.seed(5, 5)
	s.Require().NoError(s.store.ReserveSeat(s.ctx, exam.ID, site.ID))
	s.Require().NoError(s.store.ReleaseSeat(s.ctx, exam.ID, site.ID))

	gotExam, _ := s.store.FindExam(s.ctx, exam.ID)
	gotSite, _ := s.store.FindSite(s.ctx, site.ID)
	s.Equal(0, gotExam.CurrentCount)
	s.Equal(0, gotSite.CurrentCount)

	// Never below zero, even if released twice.
	s.Require().NoError(s.store.ReleaseSeat(s.ctx, exam.ID, site.ID))
	gotExam, _ = s.store.FindExam(s.ctx, exam.ID)
	s.Equal(0, gotExam.CurrentCount)
}

func (s *ExamStoreSuite) TestWindowHelpers() {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	exam := models.Exam{
		RegistrationStart: now.Add(-time.Hour),
		RegistrationEnd:   now.Add(time.Hour),
	}
	s.True(exam.RegistrationWindowOpen(now))
	s.True(exam.RegistrationWindowOpen(exam.RegistrationStart))
	s.True(exam.RegistrationWindowOpen(exam.RegistrationEnd))
	s.False(exam.RegistrationWindowOpen(exam.RegistrationEnd.Add(time.Second)))
}
