package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"examreg/internal/payment/models"
	id "examreg/pkg/domain"
	dErrors "examreg/pkg/domain-errors"
	"examreg/pkg/sentinel"
)

type OrderStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestOrderStoreSuite(t *testing.T) {
	suite.Run(t, new(OrderStoreSuite))
}

func (s *OrderStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
}

func (s *OrderStoreSuite) create(orderNo string, regID id.RegistrationID, userID id.UserID) models.PaymentOrder {
	order, err := models.NewOrder(orderNo, regID, userID, 1, 15000, s.now, 30*time.Minute)
	s.Require().NoError(err)
	created, err := s.store.Create(s.ctx, order)
	s.Require().NoError(err)
	return created
}

func (s *OrderStoreSuite) TestCreateConflicts() {
	s.create("PO20250601090000111111", 1, 1)

	s.Run("same registration", func() {
		order, err := models.NewOrder("PO20250601090000222222", 1, 1, 1, 15000, s.now, 30*time.Minute)
		s.Require().NoError(err)
		_, err = s.store.Create(s.ctx, order)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("same order number", func() {
		order, err := models.NewOrder("PO20250601090000111111", 2, 2, 1, 15000, s.now, 30*time.Minute)
		s.Require().NoError(err)
		_, err = s.store.Create(s.ctx, order)
		s.ErrorIs(err, sentinel.ErrConflict)
	})
}

func (s *OrderStoreSuite) TestLookups() {
	created := s.create("PO20250601090000111111", 1, 7)

	byNo, err := s.store.FindByOrderNo(s.ctx, created.OrderNo)
	s.Require().NoError(err)
	s.Equal(created.ID, byNo.ID)

	byReg, err := s.store.FindByRegistration(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(created.ID, byReg.ID)

	_, err = s.store.FindByOrderNo(s.ctx, "PO-missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *OrderStoreSuite) TestListExpired() {
	fresh := s.create("PO20250601090000111111", 1, 1)
	stale := s.create("PO20250601090000222222", 2, 2)

	// Only orders past their deadline qualify, and paid ones never do.
	cutoff := s.now.Add(31 * time.Minute)
	_, err := s.store.Execute(s.ctx, fresh.ID,
		func(o *models.PaymentOrder) error { return o.CanPay() },
		func(o *models.PaymentOrder) { o.ApplyPayment("wechat", "tx-1", s.now) })
	s.Require().NoError(err)

	expired, err := s.store.ListExpired(s.ctx, cutoff)
	s.Require().NoError(err)
	s.Require().Len(expired, 1)
	s.Equal(stale.ID, expired[0].ID)

	none, err := s.store.ListExpired(s.ctx, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *OrderStoreSuite) TestExecute() {
	created := s.create("PO20250601090000111111", 1, 1)

	s.Run("check failure leaves row untouched", func() {
		wantErr := dErrors.New(dErrors.CodeInvalidState, "nope")
		_, err := s.store.Execute(s.ctx, created.ID,
			func(*models.PaymentOrder) error { return wantErr },
			func(o *models.PaymentOrder) { o.ApplyClose() })
		s.ErrorIs(err, wantErr)

		got, err := s.store.FindByOrderNo(s.ctx, created.OrderNo)
		s.Require().NoError(err)
		s.Equal(models.OrderStatusAwaitingPayment, got.Status)
	})

	s.Run("pay then close is rejected", func() {
		paid, err := s.store.Execute(s.ctx, created.ID,
			func(o *models.PaymentOrder) error { return o.CanPay() },
			func(o *models.PaymentOrder) { o.ApplyPayment("wechat", "tx-1", s.now) })
		s.Require().NoError(err)
		s.Equal(models.OrderStatusPaid, paid.Status)

		_, err = s.store.Execute(s.ctx, created.ID,
			func(o *models.PaymentOrder) error { return o.CanClose() },
			func(o *models.PaymentOrder) { o.ApplyClose() })
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unknown id", func() {
		_, err := s.store.Execute(s.ctx, 9999,
			func(*models.PaymentOrder) error { return nil },
			func(*models.PaymentOrder) {})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *OrderStoreSuite) TestStats() {
	a := s.create("PO20250601090000111111", 1, 1)
	b := s.create("PO20250601090000222222", 2, 2)
	s.create("PO20250601090000333333", 3, 3)

	_, err := s.store.Execute(s.ctx, a.ID,
		func(o *models.PaymentOrder) error { return o.CanPay() },
		func(o *models.PaymentOrder) { o.ApplyPayment("wechat", "tx-1", s.now) })
	s.Require().NoError(err)
	_, err = s.store.Execute(s.ctx, b.ID,
		func(o *models.PaymentOrder) error { return o.CanClose() },
		func(o *models.PaymentOrder) { o.ApplyClose() })
	s.Require().NoError(err)

	st, err := s.store.Stats(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(int64(3), st.Total)
	s.Equal(int64(1), st.Awaiting)
	s.Equal(int64(1), st.Paid)
	s.Equal(int64(1), st.Closed)
	s.Equal(int64(15000), st.PaidCents)
	s.Equal(int64(0), st.RefundedCents)
}

func (s *OrderStoreSuite) TestListFilterAndPagination() {
	for i := 1; i <= 5; i++ {
		order, err := models.NewOrder("PO2025060109000011111"+string(rune('0'+i)),
			id.RegistrationID(i), id.UserID(i), 1, 15000, s.now, 30*time.Minute)
		s.Require().NoError(err)
		_, err = s.store.Create(s.ctx, order)
		s.Require().NoError(err)
	}

	orders, total, err := s.store.List(s.ctx, ListFilter{ExamID: 1, Page: 2, PageSize: 2})
	s.Require().NoError(err)
	s.Equal(int64(5), total)
	s.Require().Len(orders, 2)
	s.Greater(orders[0].ID, orders[1].ID)

	byUser, err := s.store.ListByUser(s.ctx, 3)
	s.Require().NoError(err)
	s.Len(byUser, 1)
}
