package service

import (
	"context"
	"errors"

	"examreg/internal/payment/models"
	"examreg/internal/payment/store"
	id "examreg/pkg/domain"
	dErrors "examreg/pkg/domain-errors"
	"examreg/pkg/requestcontext"
	"examreg/pkg/sentinel"
)

// Page is one page of an admin listing.
type Page struct {
	Items []models.PaymentOrder `json:"items"`
	Total int64                 `json:"total"`
}

// Detail returns one order by number. Candidates may only see their own;
// admins may see any.
func (s *Service) Detail(ctx context.Context, orderNo string) (models.PaymentOrder, error) {
	order, err := s.orders.FindByOrderNo(ctx, orderNo)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.PaymentOrder{}, dErrors.New(dErrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return models.PaymentOrder{}, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to load order")
	}
	if requestcontext.Role(ctx) != requestcontext.RoleAdmin && order.UserID != requestcontext.UserID(ctx) {
		return models.PaymentOrder{}, dErrors.New(dErrors.CodeForbidden, "not your order")
	}
	return order, nil
}

// MyOrders returns the caller's orders, newest first.
func (s *Service) MyOrders(ctx context.Context) ([]models.PaymentOrder, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to list orders")
	}
	return orders, nil
}

// List returns a filtered, paginated admin listing.
func (s *Service) List(ctx context.Context, filter store.ListFilter) (Page, error) {
	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return Page{}, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to list orders")
	}
	return Page{Items: orders, Total: total}, nil
}

// Stats summarizes orders and revenue for one exam; a zero examID covers
// all exams.
func (s *Service) Stats(ctx context.Context, examID id.ExamID) (store.Stats, error) {
	stats, err := s.orders.Stats(ctx, examID)
	if err != nil {
		return store.Stats{}, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to load order stats")
	}
	return stats, nil
}
