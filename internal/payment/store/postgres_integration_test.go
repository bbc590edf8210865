//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	exammodels "examreg/internal/exam/models"
	examstore "examreg/internal/exam/store"
	"examreg/internal/payment/models"
	regmodels "examreg/internal/registration/models"
	regstore "examreg/internal/registration/store"
	id "examreg/pkg/domain"
	"examreg/pkg/sentinel"
	"examreg/pkg/testutil/containers"
)

type PostgresOrderSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	ctx   context.Context
	now   time.Time

	examID id.ExamID
	regID  id.RegistrationID
}

func TestPostgresOrderSuite(t *testing.T) {
	suite.Run(t, new(PostgresOrderSuite))
}

func (s *PostgresOrderSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.pg.ApplyMigrations(s.T(), "../../../migrations")
	s.store = NewPostgres(s.pg.DB)
	s.ctx = context.Background()
}

func (s *PostgresOrderSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "payment_orders", "registrations", "exam_sites", "exams"))
	s.now = time.Now().UTC().Truncate(time.Microsecond)

	exams := examstore.NewPostgres(s.pg.DB)
	exam, err := exams.PutExam(s.ctx, exammodels.Exam{
		Name:              "Written Test",
		RegistrationStart: s.now.Add(-time.Hour),
		RegistrationEnd:   s.now.Add(time.Hour),
		Status:            exammodels.ExamStatusRegistrationOpen,
		FeeCents:          15000,
	})
	s.Require().NoError(err)
	site, err := exams.PutSite(s.ctx, exammodels.ExamSite{ExamID: exam.ID, Name: "Main Hall", Capacity: 50})
	s.Require().NoError(err)
	s.examID = exam.ID

	regs := regstore.NewPostgres(s.pg.DB)
	reg, err := regmodels.NewRegistration(exam.ID, 1, site.ID, "enc-id", "enc-phone", "Mathematics", "", s.now)
	s.Require().NoError(err)
	created, err := regs.Create(s.ctx, reg)
	s.Require().NoError(err)
	s.regID = created.ID
}

func (s *PostgresOrderSuite) create(orderNo string) models.PaymentOrder {
	order, err := models.NewOrder(orderNo, s.regID, 1, s.examID, 15000, s.now, 30*time.Minute)
	s.Require().NoError(err)
	created, err := s.store.Create(s.ctx, order)
	s.Require().NoError(err)
	return created
}

func (s *PostgresOrderSuite) TestCreateAndFind() {
	created := s.create("PO20250601090000111111")

	found, err := s.store.FindByOrderNo(s.ctx, created.OrderNo)
	s.Require().NoError(err)
	s.Equal(created.ID, found.ID)
	s.Equal(models.OrderStatusAwaitingPayment, found.Status)
	s.Nil(found.PaidAt)

	byReg, err := s.store.FindByRegistration(s.ctx, s.regID)
	s.Require().NoError(err)
	s.Equal(created.ID, byReg.ID)
}

func (s *PostgresOrderSuite) TestUniqueRegistrationMapsToConflict() {
	s.create("PO20250601090000111111")

	order, err := models.NewOrder("PO20250601090000222222", s.regID, 1, s.examID, 15000, s.now, 30*time.Minute)
	s.Require().NoError(err)
	_, err = s.store.Create(s.ctx, order)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresOrderSuite) TestExecutePayThenClose() {
	created := s.create("PO20250601090000111111")

	paid, err := s.store.Execute(s.ctx, created.ID,
		func(o *models.PaymentOrder) error { return o.CanPay() },
		func(o *models.PaymentOrder) { o.ApplyPayment("wechat", "tx-1", s.now) })
	s.Require().NoError(err)
	s.Equal(models.OrderStatusPaid, paid.Status)
	s.Require().NotNil(paid.PaidAt)

	_, err = s.store.Execute(s.ctx, created.ID,
		func(o *models.PaymentOrder) error { return o.CanClose() },
		func(o *models.PaymentOrder) { o.ApplyClose() })
	s.Error(err, "a paid order must not be closable")

	found, err := s.store.FindByOrderNo(s.ctx, created.OrderNo)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusPaid, found.Status)
}

func (s *PostgresOrderSuite) TestListExpired() {
	created := s.create("PO20250601090000111111")

	expired, err := s.store.ListExpired(s.ctx, s.now.Add(31*time.Minute))
	s.Require().NoError(err)
	s.Require().Len(expired, 1)
	s.Equal(created.ID, expired[0].ID)

	none, err := s.store.ListExpired(s.ctx, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *PostgresOrderSuite) TestStats() {
	created := s.create("PO20250601090000111111")
	_, err := s.store.Execute(s.ctx, created.ID,
		func(o *models.PaymentOrder) error { return o.CanPay() },
		func(o *models.PaymentOrder) { o.ApplyPayment("wechat", "tx-1", s.now) })
	s.Require().NoError(err)

	st, err := s.store.Stats(s.ctx, s.examID)
	s.Require().NoError(err)
	s.Equal(int64(1), st.Total)
	s.Equal(int64(1), st.Paid)
	s.Equal(int64(15000), st.PaidCents)
}
