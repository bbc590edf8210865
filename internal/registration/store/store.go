// Package store persists registrations. Two implementations exist: InMemory
// for unit tests and PostgresStore for production; both honour the same
// sentinel contract so services stay storage-agnostic.
package store

import (
	"examreg/internal/registration/models"
	id "examreg/pkg/domain"
)

// ListFilter narrows admin listings. Zero values mean "any". Page is
// 1-based; PageSize caps the slice length.
type ListFilter struct {
	ExamID        id.ExamID
	UserID        id.UserID
	AuditStatus   models.AuditStatus
	PaymentStatus models.PaymentStatus
	Page          int
	PageSize      int
}

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Normalize clamps pagination to sane bounds.
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return f
}

func (f ListFilter) offset() int {
	return (f.Page - 1) * f.PageSize
}

// Stats is a per-exam summary of the registration pipeline.
type Stats struct {
	Total    int64 `json:"total"`
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
	Paid     int64 `json:"paid"`
	Refunded int64 `json:"refunded"`
}

func matches(r models.Registration, f ListFilter) bool {
	if !f.ExamID.IsZero() && r.ExamID != f.ExamID {
		return false
	}
	if !f.UserID.IsZero() && r.UserID != f.UserID {
		return false
	}
	if f.AuditStatus != 0 && r.AuditStatus != f.AuditStatus {
		return false
	}
	if f.PaymentStatus != 0 && r.PaymentStatus != f.PaymentStatus {
		return false
	}
	return true
}
