// Package store persists exams and exam sites and owns the only genuinely
// contended mutation in the system: the bounded seat counters. Reservation is
// expressed as an atomic increment-if-below-limit so a check-then-insert race
// cannot oversell a site.
package store

import (
	"fmt"

	"examreg/pkg/sentinel"
)

// Reservation failures. Both wrap sentinel.ErrConflict so generic callers can
// treat them uniformly while services keep the distinct user-facing reason.
var (
	ErrExamFull = fmt.Errorf("exam quota exhausted: %w", sentinel.ErrConflict)
	ErrSiteFull = fmt.Errorf("site capacity exhausted: %w", sentinel.ErrConflict)
)
