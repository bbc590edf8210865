// Package models holds the exam-side entities the workflow engine reads:
// exams with their registration windows and quotas, and the sites candidates
// sit at. The engine treats both as collaborator state; full exam
// administration lives outside this module.
package models

import (
	"time"

	id "examreg/pkg/domain"
)

// ExamStatus mirrors the integer codes persisted by the store.
type ExamStatus int

const (
	ExamStatusDraft              ExamStatus = 1
	ExamStatusPublished          ExamStatus = 2
	ExamStatusRegistrationOpen   ExamStatus = 3
	ExamStatusRegistrationClosed ExamStatus = 4
	ExamStatusCompleted          ExamStatus = 5
	ExamStatusCancelled          ExamStatus = 6
)

// AcceptsRegistrations reports whether the status allows new submissions.
// The registration window is checked separately.
func (s ExamStatus) AcceptsRegistrations() bool {
	return s == ExamStatusPublished || s == ExamStatusRegistrationOpen
}

func (s ExamStatus) String() string {
	switch s {
	case ExamStatusDraft:
		return "draft"
	case ExamStatusPublished:
		return "published"
	case ExamStatusRegistrationOpen:
		return "registration_open"
	case ExamStatusRegistrationClosed:
		return "registration_closed"
	case ExamStatusCompleted:
		return "completed"
	case ExamStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Exam is a snapshot of one exam. TotalQuota == 0 means no exam-level ceiling;
// sites still bound seating individually.
type Exam struct {
	ID                id.ExamID  `json:"id"`
	Name              string     `json:"name"`
	Type              string     `json:"type"`
	ExamDate          time.Time  `json:"exam_date"`
	ExamTime          string     `json:"exam_time"`
	RegistrationStart time.Time  `json:"registration_start"`
	RegistrationEnd   time.Time  `json:"registration_end"`
	FeeCents          int64      `json:"fee_cents"`
	Status            ExamStatus `json:"status"`
	TotalQuota        int        `json:"total_quota"`
	CurrentCount      int        `json:"current_count"`
	CreatedAt         time.Time  `json:"created_at"`
}

// HasQuota reports whether the exam defines a registration ceiling.
func (e *Exam) HasQuota() bool { return e.TotalQuota > 0 }

// QuotaExhausted reports whether the ceiling, if any, has been reached.
func (e *Exam) QuotaExhausted() bool {
	return e.HasQuota() && e.CurrentCount >= e.TotalQuota
}

// RegistrationWindowOpen reports whether now falls inside the window,
// boundaries included.
func (e *Exam) RegistrationWindowOpen(now time.Time) bool {
	return !now.Before(e.RegistrationStart) && !now.After(e.RegistrationEnd)
}

// ExamSite is a snapshot of one site's seating for one exam.
type ExamSite struct {
	ID           id.ExamSiteID `json:"id"`
	ExamID       id.ExamID     `json:"exam_id"`
	Name         string        `json:"name"`
	Province     string        `json:"province"`
	City         string        `json:"city"`
	Address      string        `json:"address"`
	Capacity     int           `json:"capacity"`
	CurrentCount int           `json:"current_count"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Full reports whether the site has no remaining seats.
func (s *ExamSite) Full() bool { return s.CurrentCount >= s.Capacity }
