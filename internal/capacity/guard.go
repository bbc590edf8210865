// Package capacity validates that an exam can accept one more registration at
// a given site. The guard itself has no side effects; consumption happens via
// the exam store's atomic seat reservation inside the submit transaction, so
// check and reserve always share one transaction boundary.
package capacity

import (
	"time"

	"examreg/internal/exam/models"
	dErrors "examreg/pkg/domain-errors"
)

// Guard checks exam and site snapshots against the registration preconditions.
type Guard struct{}

func NewGuard() *Guard {
	return &Guard{}
}

// Check returns nil when the exam is open for registration at now and both
// ceilings have room. Failures carry the user-facing reason:
//   - exam not open / outside window → CodeInvalidState
//   - quota or seating exhausted → CodeConflict
func (g *Guard) Check(exam models.Exam, site models.ExamSite, now time.Time) error {
	if !exam.Status.AcceptsRegistrations() {
		return dErrors.New(dErrors.CodeInvalidState, "exam is not open for registration")
	}
	if now.Before(exam.RegistrationStart) {
		return dErrors.New(dErrors.CodeInvalidState, "registration has not started")
	}
	if now.After(exam.RegistrationEnd) {
		return dErrors.New(dErrors.CodeInvalidState, "registration has ended")
	}
	if site.ExamID != exam.ID {
		return dErrors.New(dErrors.CodeValidation, "site does not belong to this exam")
	}
	if exam.QuotaExhausted() {
		return dErrors.New(dErrors.CodeConflict, "exam quota exhausted")
	}
	if site.Full() {
		return dErrors.New(dErrors.CodeConflict, "site is full, choose another site")
	}
	return nil
}
