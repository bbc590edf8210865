// Package store persists payment orders. InMemory backs unit tests,
// PostgresStore backs production; both honour the same sentinel contract.
package store

import (
	"examreg/internal/payment/models"
	id "examreg/pkg/domain"
)

// ListFilter narrows admin listings. Zero values mean "any". Page is
// 1-based; PageSize caps the slice length.
type ListFilter struct {
	ExamID   id.ExamID
	UserID   id.UserID
	Status   models.OrderStatus
	Page     int
	PageSize int
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

// Stats aggregates order counts and collected revenue.
type Stats struct {
	Total         int64 `json:"total"`
	Awaiting      int64 `json:"awaiting"`
	Paid          int64 `json:"paid"`
	Closed        int64 `json:"closed"`
	Refunded      int64 `json:"refunded"`
	PaidCents     int64 `json:"paid_cents"`
	RefundedCents int64 `json:"refunded_cents"`
}

func matches(o models.PaymentOrder, f ListFilter) bool {
	if !f.ExamID.IsZero() && o.ExamID != f.ExamID {
		return false
	}
	if !f.UserID.IsZero() && o.UserID != f.UserID {
		return false
	}
	if f.Status != 0 && o.Status != f.Status {
		return false
	}
	return true
}
