package capacity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"examreg/internal/exam/models"
	dErrors "examreg/pkg/domain-errors"
)

type GuardSuite struct {
	suite.Suite
	guard *Guard
	now   time.Time
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) SetupTest() {
	s.guard = NewGuard()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *GuardSuite) openExam() models.Exam {
	return models.Exam{
		ID:                1,
		Status:            models.ExamStatusRegistrationOpen,
		RegistrationStart: s.now.Add(-24 * time.Hour),
		RegistrationEnd:   s.now.Add(24 * time.Hour),
		TotalQuota:        100,
		CurrentCount:      10,
	}
}

func (s *GuardSuite) site() models.ExamSite {
	return models.ExamSite{ID: 1, ExamID: 1, Capacity: 50, CurrentCount: 10}
}

func (s *GuardSuite) TestAccepts() {
	s.Run("open exam with room", func() {
		s.NoError(s.guard.Check(s.openExam(), s.site(), s.now))
	})

	s.Run("published counts as open", func() {
		exam := s.openExam()
		exam.Status = models.ExamStatusPublished
		s.NoError(s.guard.Check(exam, s.site(), s.now))
	})

	s.Run("no quota means only sites bound", func() {
		exam := s.openExam()
		exam.TotalQuota = 0
		exam.CurrentCount = 100000
		s.NoError(s.guard.Check(exam, s.site(), s.now))
	})
}

func (s *GuardSuite) TestRejectsClosedExam() {
	for _, status := range []models.ExamStatus{
		models.ExamStatusDraft,
		models.ExamStatusRegistrationClosed,
		models.ExamStatusCompleted,
		models.ExamStatusCancelled,
	} {
		exam := s.openExam()
		exam.Status = status
		err := s.guard.Check(exam, s.site(), s.now)
		s.Require().Error(err, "status %s", status)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	}
}

func (s *GuardSuite) TestRejectsOutsideWindow() {
	s.Run("before start", func() {
		err := s.guard.Check(s.openExam(), s.site(), s.now.Add(-48*time.Hour))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
	s.Run("after end", func() {
		err := s.guard.Check(s.openExam(), s.site(), s.now.Add(48*time.Hour))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
	s.Run("boundaries inclusive", func() {
		exam := s.openExam()
		s.NoError(s.guard.Check(exam, s.site(), exam.RegistrationStart))
		s.NoError(s.guard.Check(exam, s.site(), exam.RegistrationEnd))
	})
}

func (s *GuardSuite) TestRejectsExhaustedCapacity() {
	s.Run("exam quota", func() {
		exam := s.openExam()
		exam.CurrentCount = exam.TotalQuota
		err := s.guard.Check(exam, s.site(), s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
	s.Run("site seating", func() {
		site := s.site()
		site.CurrentCount = site.Capacity
		err := s.guard.Check(s.openExam(), site, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *GuardSuite) TestRejectsForeignSite() {
	site := s.site()
	site.ExamID = 99
	err := s.guard.Check(s.openExam(), site, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
