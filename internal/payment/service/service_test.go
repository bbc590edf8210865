package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"examreg/internal/audit"
	exammodels "examreg/internal/exam/models"
	examstore "examreg/internal/exam/store"
	"examreg/internal/payment/models"
	paystore "examreg/internal/payment/store"
	regmodels "examreg/internal/registration/models"
	regstore "examreg/internal/registration/store"
	id "examreg/pkg/domain"
	dErrors "examreg/pkg/domain-errors"
	"examreg/pkg/requestcontext"
	"examreg/pkg/tx"
)

type PaymentServiceSuite struct {
	suite.Suite
	svc    *Service
	orders *paystore.InMemory
	regs   *regstore.InMemory
	exams  *examstore.InMemory
	trail  *audit.MemoryStore
	now    time.Time

	examID id.ExamID
}

func TestPaymentServiceSuite(t *testing.T) {
	suite.Run(t, new(PaymentServiceSuite))
}

func (s *PaymentServiceSuite) SetupTest() {
	s.orders = paystore.NewInMemory()
	s.regs = regstore.NewInMemory()
	s.exams = examstore.NewInMemory()
	s.trail = audit.NewMemoryStore()
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	exam, err := s.exams.PutExam(context.Background(), exammodels.Exam{
		Name:     "Written Test",
		Status:   exammodels.ExamStatusRegistrationOpen,
		FeeCents: 15000,
	})
	s.Require().NoError(err)
	s.examID = exam.ID

	s.svc = New(s.orders, s.regs, s.exams, tx.NewMemoryManager(),
		WithAuditPublisher(audit.NewStorePublisher(s.trail)),
	)
}

func (s *PaymentServiceSuite) ctxFor(userID id.UserID) context.Context {
	ctx := requestcontext.WithUserID(context.Background(), userID)
	return requestcontext.WithTime(ctx, s.now)
}

// approvedReg persists an approved, unpaid registration for the user.
func (s *PaymentServiceSuite) approvedReg(userID id.UserID) regmodels.Registration {
	reg, err := regmodels.NewRegistration(s.examID, userID, 1, "enc-id", "enc-phone", "Mathematics", "", s.now)
	s.Require().NoError(err)
	reg.ApplyAudit(regmodels.AuditDecisionApprove, "", 100, s.now)
	created, err := s.regs.Create(context.Background(), reg)
	s.Require().NoError(err)
	return created
}

func (s *PaymentServiceSuite) TestCreateOrder() {
	reg := s.approvedReg(1)

	s.Require().NoError(s.svc.CreateOrder(s.ctxFor(100), reg))

	order, err := s.orders.FindByRegistration(context.Background(), reg.ID)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusAwaitingPayment, order.Status)
	s.Equal(int64(15000), order.AmountCents)
	s.Equal(s.now.Add(DefaultOrderTTL), order.ExpiresAt)
	s.Regexp(regexp.MustCompile(`^PO\d{14}\d{6}$`), order.OrderNo)
}

func (s *PaymentServiceSuite) TestCreateOrderIdempotent() {
	reg := s.approvedReg(1)

	s.Require().NoError(s.svc.CreateOrder(s.ctxFor(100), reg))
	s.Require().NoError(s.svc.CreateOrder(s.ctxFor(100), reg))

	_, total, err := s.orders.List(context.Background(), paystore.ListFilter{UserID: 1})
	s.Require().NoError(err)
	s.Equal(int64(1), total)
}

func (s *PaymentServiceSuite) TestCreateOrderRejections() {
	s.Run("pending registration", func() {
		reg, err := regmodels.NewRegistration(s.examID, 2, 1, "enc-id", "enc-phone", "", "", s.now)
		s.Require().NoError(err)
		created, err := s.regs.Create(context.Background(), reg)
		s.Require().NoError(err)

		err = s.svc.CreateOrder(s.ctxFor(100), created)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("fee not set", func() {
		freeExam, err := s.exams.PutExam(context.Background(), exammodels.Exam{
			Name:   "Free Seminar",
			Status: exammodels.ExamStatusRegistrationOpen,
		})
		s.Require().NoError(err)
		reg, err := regmodels.NewRegistration(freeExam.ID, 3, 1, "enc-id", "enc-phone", "", "", s.now)
		s.Require().NoError(err)
		reg.ApplyAudit(regmodels.AuditDecisionApprove, "", 100, s.now)
		created, err := s.regs.Create(context.Background(), reg)
		s.Require().NoError(err)

		err = s.svc.CreateOrder(s.ctxFor(100), created)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *PaymentServiceSuite) TestOrderForRegistration() {
	reg := s.approvedReg(1)

	s.Run("creates lazily for the owner", func() {
		order, err := s.svc.OrderForRegistration(s.ctxFor(1), reg.ID)
		s.Require().NoError(err)
		s.Equal(reg.ID, order.RegistrationID)

		again, err := s.svc.OrderForRegistration(s.ctxFor(1), reg.ID)
		s.Require().NoError(err)
		s.Equal(order.ID, again.ID)
	})

	s.Run("forbidden for strangers", func() {
		_, err := s.svc.OrderForRegistration(s.ctxFor(2), reg.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *PaymentServiceSuite) TestPay() {
	reg := s.approvedReg(1)
	order, err := s.svc.OrderForRegistration(s.ctxFor(1), reg.ID)
	s.Require().NoError(err)

	paid, err := s.svc.Pay(s.ctxFor(1), PayRequest{OrderNo: order.OrderNo})
	s.Require().NoError(err)
	s.Equal(models.OrderStatusPaid, paid.Status)
	s.Equal("mock", paid.PaymentMethod)
	s.NotEmpty(paid.TransactionID)
	s.Require().NotNil(paid.PaidAt)

	// The registration moves in the same transaction: paid, stamped, ticketed.
	stored, err := s.regs.FindByID(context.Background(), reg.ID)
	s.Require().NoError(err)
	s.Equal(regmodels.PaymentStatusPaid, stored.PaymentStatus)
	s.Require().NotNil(stored.PaymentTime)
	s.Regexp(regexp.MustCompile(`^\d{4}\d{8}\d{5}$`), stored.AdmissionTicketNo)
}

func (s *PaymentServiceSuite) TestPayRejections() {
	reg := s.approvedReg(1)
	order, err := s.svc.OrderForRegistration(s.ctxFor(1), reg.ID)
	s.Require().NoError(err)

	s.Run("someone else's order", func() {
		_, err := s.svc.Pay(s.ctxFor(2), PayRequest{OrderNo: order.OrderNo, Method: "wechat"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown order", func() {
		_, err := s.svc.Pay(s.ctxFor(1), PayRequest{OrderNo: "PO-missing", Method: "wechat"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("double pay", func() {
		_, err := s.svc.Pay(s.ctxFor(1), PayRequest{OrderNo: order.OrderNo, Method: "wechat"})
		s.Require().NoError(err)

		_, err = s.svc.Pay(s.ctxFor(1), PayRequest{OrderNo: order.OrderNo, Method: "wechat"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

// Paying past the deadline closes the order on the spot and refuses the
// payment; the registration stays unpaid.
func (s *PaymentServiceSuite) TestPayExpiredOrder() {
	reg := s.approvedReg(1)
	order, err := s.svc.OrderForRegistration(s.ctxFor(1), reg.ID)
	s.Require().NoError(err)

	lateCtx := requestcontext.WithTime(requestcontext.WithUserID(context.Background(), 1),
		s.now.Add(31*time.Minute))
	_, err = s.svc.Pay(lateCtx, PayRequest{OrderNo: order.OrderNo, Method: "wechat"})
	s.True(dErrors.HasCode(err, dErrors.CodeExpired))

	closed, err := s.orders.FindByOrderNo(context.Background(), order.OrderNo)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusClosed, closed.Status)

	stored, err := s.regs.FindByID(context.Background(), reg.ID)
	s.Require().NoError(err)
	s.Equal(regmodels.PaymentStatusUnpaid, stored.PaymentStatus)

	// A retry against the closed order also reports expiry.
	_, err = s.svc.Pay(lateCtx, PayRequest{OrderNo: order.OrderNo, Method: "wechat"})
	s.True(dErrors.HasCode(err, dErrors.CodeExpired))
}

func (s *PaymentServiceSuite) TestRefund() {
	reg := s.approvedReg(1)
	order, err := s.svc.OrderForRegistration(s.ctxFor(1), reg.ID)
	s.Require().NoError(err)

	s.Run("unpaid order is not refundable", func() {
		_, err := s.svc.Refund(s.ctxFor(100), order.OrderNo, "changed plans")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	_, err = s.svc.Pay(s.ctxFor(1), PayRequest{OrderNo: order.OrderNo, Method: "wechat"})
	s.Require().NoError(err)
	ticketed, err := s.regs.FindByID(context.Background(), reg.ID)
	s.Require().NoError(err)

	s.Run("paid order refunds and keeps the ticket", func() {
		refunded, err := s.svc.Refund(s.ctxFor(100), order.OrderNo, "exam cancelled")
		s.Require().NoError(err)
		s.Equal(models.OrderStatusRefunded, refunded.Status)
		s.Equal("exam cancelled", refunded.RefundReason)

		stored, err := s.regs.FindByID(context.Background(), reg.ID)
		s.Require().NoError(err)
		s.Equal(regmodels.PaymentStatusRefunded, stored.PaymentStatus)
		s.Equal(ticketed.AdmissionTicketNo, stored.AdmissionTicketNo)
	})
}

func (s *PaymentServiceSuite) TestCloseExpired() {
	var orderNos []string
	for i := 1; i <= 3; i++ {
		reg := s.approvedReg(id.UserID(i))
		order, err := s.svc.OrderForRegistration(s.ctxFor(id.UserID(i)), reg.ID)
		s.Require().NoError(err)
		orderNos = append(orderNos, order.OrderNo)
	}

	// One candidate pays in time; the other two orders go stale.
	_, err := s.svc.Pay(s.ctxFor(1), PayRequest{OrderNo: orderNos[0], Method: "wechat"})
	s.Require().NoError(err)

	sweepCtx := requestcontext.WithTime(context.Background(), s.now.Add(31*time.Minute))
	closed, err := s.svc.CloseExpired(sweepCtx)
	s.Require().NoError(err)
	s.Equal(2, closed)

	paid, _ := s.orders.FindByOrderNo(context.Background(), orderNos[0])
	s.Equal(models.OrderStatusPaid, paid.Status)
	for _, no := range orderNos[1:] {
		order, _ := s.orders.FindByOrderNo(context.Background(), no)
		s.Equal(models.OrderStatusClosed, order.Status)
	}

	// A second sweep finds nothing left to close.
	closed, err = s.svc.CloseExpired(sweepCtx)
	s.Require().NoError(err)
	s.Zero(closed)
}

// TestPaySweepRace races a payment against the expiry sweep on the same
// order. Whichever side commits first, the order ends in exactly one
// terminal state and the registration matches it.
func (s *PaymentServiceSuite) TestPaySweepRace() {
	const rounds = 32
	for i := 1; i <= rounds; i++ {
		userID := id.UserID(i)
		reg := s.approvedReg(userID)
		order, err := s.svc.OrderForRegistration(s.ctxFor(userID), reg.ID)
		s.Require().NoError(err)

		// The payer's clock is inside the window, the sweeper's past it.
		sweepCtx := requestcontext.WithTime(context.Background(), s.now.Add(31*time.Minute))

		var wg sync.WaitGroup
		var payErr error
		var closed int
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, payErr = s.svc.Pay(s.ctxFor(userID), PayRequest{OrderNo: order.OrderNo, Method: "wechat"})
		}()
		go func() {
			defer wg.Done()
			var err error
			closed, err = s.svc.CloseExpired(sweepCtx)
			s.NoError(err)
		}()
		wg.Wait()

		stored, err := s.orders.FindByOrderNo(context.Background(), order.OrderNo)
		s.Require().NoError(err)
		storedReg, err := s.regs.FindByID(context.Background(), reg.ID)
		s.Require().NoError(err)

		if payErr == nil {
			s.Equal(models.OrderStatusPaid, stored.Status)
			s.Zero(closed, "sweep must leave a paid order alone")
			s.Equal(regmodels.PaymentStatusPaid, storedReg.PaymentStatus)
			s.NotEmpty(storedReg.AdmissionTicketNo)
		} else {
			s.True(dErrors.HasCode(payErr, dErrors.CodeExpired))
			s.Equal(models.OrderStatusClosed, stored.Status)
			s.Equal(1, closed)
			s.Equal(regmodels.PaymentStatusUnpaid, storedReg.PaymentStatus)
			s.Empty(storedReg.AdmissionTicketNo)
		}
	}
}

func (s *PaymentServiceSuite) TestAuditTrail() {
	reg := s.approvedReg(1)
	order, err := s.svc.OrderForRegistration(s.ctxFor(1), reg.ID)
	s.Require().NoError(err)
	_, err = s.svc.Pay(s.ctxFor(1), PayRequest{OrderNo: order.OrderNo, Method: "wechat"})
	s.Require().NoError(err)

	var actions []audit.Action
	for _, e := range s.trail.List() {
		actions = append(actions, e.Action)
	}
	s.Equal([]audit.Action{audit.ActionOrderCreated, audit.ActionOrderPaid}, actions)
}
