package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"examreg/internal/payment/models"
	id "examreg/pkg/domain"
	"examreg/pkg/sentinel"
)

// InMemory keeps orders in a map and returns value snapshots. The
// one-order-per-registration rule is enforced under the store mutex,
// matching what the unique index gives PostgresStore.
type InMemory struct {
	mu     sync.RWMutex
	orders map[id.OrderID]models.PaymentOrder
	nextID int64
}

func NewInMemory() *InMemory {
	return &InMemory{
		orders: make(map[id.OrderID]models.PaymentOrder),
		nextID: 1,
	}
}

// Create inserts an order, assigning its ID. Returns sentinel.ErrConflict
// when the registration already has one or the order number collides.
func (s *InMemory) Create(_ context.Context, order models.PaymentOrder) (models.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.RegistrationID == order.RegistrationID || existing.OrderNo == order.OrderNo {
			return models.PaymentOrder{}, sentinel.ErrConflict
		}
	}
	order.ID = id.OrderID(s.nextID)
	s.nextID++
	s.orders[order.ID] = order
	return order, nil
}

func (s *InMemory) FindByOrderNo(_ context.Context, orderNo string) (models.PaymentOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, order := range s.orders {
		if order.OrderNo == orderNo {
			return order, nil
		}
	}
	return models.PaymentOrder{}, sentinel.ErrNotFound
}

func (s *InMemory) FindByRegistration(_ context.Context, regID id.RegistrationID) (models.PaymentOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, order := range s.orders {
		if order.RegistrationID == regID {
			return order, nil
		}
	}
	return models.PaymentOrder{}, sentinel.ErrNotFound
}

// ListByUser returns one candidate's orders, newest first.
func (s *InMemory) ListByUser(_ context.Context, userID id.UserID) ([]models.PaymentOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PaymentOrder
	for _, order := range s.orders {
		if order.UserID == userID {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// List applies the filter and paginates. The second return is the total
// match count before pagination.
func (s *InMemory) List(_ context.Context, filter ListFilter) ([]models.PaymentOrder, int64, error) {
	filter = filter.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.PaymentOrder
	for _, order := range s.orders {
		if matches(order, filter) {
			all = append(all, order)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := int64(len(all))
	start := filter.offset()
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + filter.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

// ListExpired returns awaiting orders whose deadline has passed, oldest
// first. The sweep processes each returned order individually.
func (s *InMemory) ListExpired(_ context.Context, now time.Time) ([]models.PaymentOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PaymentOrder
	for _, order := range s.orders {
		if order.Expired(now) {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Stats aggregates order counts and revenue for one exam; a zero examID
// covers everything.
func (s *InMemory) Stats(_ context.Context, examID id.ExamID) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st Stats
	for _, order := range s.orders {
		if !examID.IsZero() && order.ExamID != examID {
			continue
		}
		st.Total++
		switch order.Status {
		case models.OrderStatusAwaitingPayment:
			st.Awaiting++
		case models.OrderStatusPaid:
			st.Paid++
			st.PaidCents += order.AmountCents
		case models.OrderStatusClosed:
			st.Closed++
		case models.OrderStatusRefunded:
			st.Refunded++
			st.RefundedCents += order.AmountCents
		}
	}
	return st, nil
}

// Execute runs check then apply on an order while the store mutex is held,
// so pay and close cannot interleave on the same order. check must not
// mutate; apply runs only when check passes.
func (s *InMemory) Execute(_ context.Context, orderID id.OrderID,
	check func(*models.PaymentOrder) error, apply func(*models.PaymentOrder)) (models.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return models.PaymentOrder{}, sentinel.ErrNotFound
	}
	if err := check(&order); err != nil {
		return models.PaymentOrder{}, err
	}
	apply(&order)
	s.orders[orderID] = order
	return order, nil
}
