// Package service orchestrates the payment order lifecycle: idempotent order
// creation after approval, payment with lazy expiry, refunds and the expiry
// sweep.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"examreg/internal/audit"
	exammodels "examreg/internal/exam/models"
	"examreg/internal/identifier"
	"examreg/internal/payment/metrics"
	"examreg/internal/payment/models"
	"examreg/internal/payment/store"
	regmodels "examreg/internal/registration/models"
	id "examreg/pkg/domain"
	dErrors "examreg/pkg/domain-errors"
	"examreg/pkg/requestcontext"
	"examreg/pkg/sentinel"
	"examreg/pkg/tx"
)

// DefaultOrderTTL is how long a candidate has to pay before the order is
// closed and the payment refused.
const DefaultOrderTTL = 30 * time.Minute

var tracer = otel.Tracer("examreg/payment")

type OrderStore interface {
	Create(ctx context.Context, order models.PaymentOrder) (models.PaymentOrder, error)
	FindByOrderNo(ctx context.Context, orderNo string) (models.PaymentOrder, error)
	FindByRegistration(ctx context.Context, regID id.RegistrationID) (models.PaymentOrder, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]models.PaymentOrder, error)
	List(ctx context.Context, filter store.ListFilter) ([]models.PaymentOrder, int64, error)
	ListExpired(ctx context.Context, now time.Time) ([]models.PaymentOrder, error)
	Stats(ctx context.Context, examID id.ExamID) (store.Stats, error)
	Execute(ctx context.Context, orderID id.OrderID,
		check func(*models.PaymentOrder) error, apply func(*models.PaymentOrder)) (models.PaymentOrder, error)
}

type RegistrationStore interface {
	FindByID(ctx context.Context, regID id.RegistrationID) (regmodels.Registration, error)
	Execute(ctx context.Context, regID id.RegistrationID,
		check func(*regmodels.Registration) error, apply func(*regmodels.Registration)) (regmodels.Registration, error)
}

type ExamStore interface {
	FindExam(ctx context.Context, examID id.ExamID) (exammodels.Exam, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates the payment order lifecycle.
type Service struct {
	orders OrderStore
	regs   RegistrationStore
	exams  ExamStore
	ids    *identifier.Generator
	txm    tx.Manager

	orderTTL       time.Duration
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithOrderTTL overrides the payment deadline. Tests use short deadlines.
func WithOrderTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.orderTTL = ttl
	}
}

// New constructs a Service.
func New(orders OrderStore, regs RegistrationStore, exams ExamStore, txm tx.Manager, opts ...Option) *Service {
	s := &Service{
		orders:   orders,
		regs:     regs,
		exams:    exams,
		ids:      identifier.New(),
		txm:      txm,
		orderTTL: DefaultOrderTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder opens a payment order for an approved registration. Creation
// is idempotent: if an order already exists for the registration, nothing
// happens. Called by the registration workflow on approval.
func (s *Service) CreateOrder(ctx context.Context, reg regmodels.Registration) error {
	_, err := s.ensureOrder(ctx, reg)
	return err
}

func (s *Service) ensureOrder(ctx context.Context, reg regmodels.Registration) (models.PaymentOrder, error) {
	ctx, span := tracer.Start(ctx, "payment.CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("registration.id", int64(reg.ID)))

	if existing, err := s.orders.FindByRegistration(ctx, reg.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return models.PaymentOrder{}, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to check existing order")
	}

	if reg.AuditStatus != regmodels.AuditStatusApproved {
		return models.PaymentOrder{}, dErrors.New(dErrors.CodeInvalidState, "registration is not approved")
	}

	exam, err := s.exams.FindExam(ctx, reg.ExamID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.PaymentOrder{}, dErrors.New(dErrors.CodeNotFound, "exam not found")
	}
	if err != nil {
		return models.PaymentOrder{}, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to load exam")
	}
	if exam.FeeCents <= 0 {
		return models.PaymentOrder{}, dErrors.New(dErrors.CodeValidation, "exam fee is not set")
	}

	now := requestcontext.Now(ctx)
	order, err := models.NewOrder(s.ids.OrderNumber(now), reg.ID, reg.UserID, reg.ExamID,
		exam.FeeCents, now, s.orderTTL)
	if err != nil {
		return models.PaymentOrder{}, err
	}

	created, err := s.orders.Create(ctx, order)
	if errors.Is(err, sentinel.ErrConflict) {
		// Lost a creation race; the surviving order is the answer.
		existing, findErr := s.orders.FindByRegistration(ctx, reg.ID)
		if findErr != nil {
			return models.PaymentOrder{}, dErrors.Wrap(findErr, dErrors.CodeUpstream, "failed to load existing order")
		}
		return existing, nil
	}
	if err != nil {
		return models.PaymentOrder{}, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to create order")
	}

	s.logger.InfoContext(ctx, "payment order created",
		"order_no", created.OrderNo,
		"registration_id", created.RegistrationID,
		"amount_cents", created.AmountCents,
	)
	s.logAudit(ctx, audit.Event{
		Action:         audit.ActionOrderCreated,
		UserID:         created.UserID,
		RegistrationID: created.RegistrationID,
		ExamID:         created.ExamID,
		OrderNo:        created.OrderNo,
	})
	if s.metrics != nil {
		s.metrics.IncrementOrdersCreated()
	}
	return created, nil
}

// OrderForRegistration returns the caller's order for a registration,
// creating it when the registration has been approved but the order is
// missing (for example when creation failed at approval time).
func (s *Service) OrderForRegistration(ctx context.Context, regID id.RegistrationID) (models.PaymentOrder, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsZero() {
		return models.PaymentOrder{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	reg, err := s.regs.FindByID(ctx, regID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.PaymentOrder{}, dErrors.New(dErrors.CodeNotFound, "registration not found")
	}
	if err != nil {
		return models.PaymentOrder{}, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to load registration")
	}
	if reg.UserID != userID && requestcontext.Role(ctx) != requestcontext.RoleAdmin {
		return models.PaymentOrder{}, dErrors.New(dErrors.CodeForbidden, "not your registration")
	}
	return s.ensureOrder(ctx, reg)
}

// PayRequest records a payment against an order.
type PayRequest struct {
	OrderNo       string
	Method        string
	TransactionID string
}

// Pay marks an order paid and stamps the registration in one transaction:
// payment status, payment time and the admission ticket number move
// together. An order past its deadline is closed on the spot and the
// payment refused.
func (s *Service) Pay(ctx context.Context, req PayRequest) (models.PaymentOrder, error) {
	ctx, span := tracer.Start(ctx, "payment.Pay")
	defer span.End()
	start := time.Now()

	userID := requestcontext.UserID(ctx)
	if userID.IsZero() {
		return models.PaymentOrder{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if req.OrderNo == "" {
		return models.PaymentOrder{}, dErrors.New(dErrors.CodeValidation, "order_no is required")
	}
	if req.Method == "" {
		req.Method = "mock"
	}
	if req.TransactionID == "" {
		req.TransactionID = uuid.NewString()
	}

	order, err := s.orders.FindByOrderNo(ctx, req.OrderNo)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.PaymentOrder{}, dErrors.New(dErrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return models.PaymentOrder{}, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to load order")
	}
	if order.UserID != userID {
		return models.PaymentOrder{}, dErrors.New(dErrors.CodeForbidden, "not your order")
	}

	now := requestcontext.Now(ctx)
	errExpiredNow := dErrors.New(dErrors.CodeExpired, "order has expired")

	var paid models.PaymentOrder
	err = s.txm.RunInTx(ctx, func(ctx context.Context) error {
		paid, err = s.orders.Execute(ctx, order.ID,
			func(o *models.PaymentOrder) error {
				if o.Expired(now) {
					return errExpiredNow
				}
				return o.CanPay()
			},
			func(o *models.PaymentOrder) { o.ApplyPayment(req.Method, req.TransactionID, now) })
		if err != nil {
			return err
		}

		ticketNo := s.ids.AdmissionTicketNumber(paid.ExamID, now)
		_, err = s.regs.Execute(ctx, paid.RegistrationID,
			func(r *regmodels.Registration) error { return r.CanPay() },
			func(r *regmodels.Registration) { r.ApplyPayment(ticketNo, now) })
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return err
	})
	if errors.Is(err, errExpiredNow) {
		// Lazy expiry: close the stale order before refusing the payment.
		if _, closeErr := s.closeOrder(ctx, order.ID); closeErr != nil &&
			!dErrors.HasCode(closeErr, dErrors.CodeInvalidState) {
			s.logger.WarnContext(ctx, "failed to close expired order",
				"order_no", order.OrderNo, "error", closeErr)
		}
		return models.PaymentOrder{}, errExpiredNow
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.PaymentOrder{}, dErrors.New(dErrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return models.PaymentOrder{}, err
	}

	s.logger.InfoContext(ctx, "order paid",
		"order_no", paid.OrderNo,
		"amount_cents", paid.AmountCents,
		"method", paid.PaymentMethod,
	)
	s.logAudit(ctx, audit.Event{
		Action:         audit.ActionOrderPaid,
		UserID:         paid.UserID,
		ActorID:        userID,
		RegistrationID: paid.RegistrationID,
		ExamID:         paid.ExamID,
		OrderNo:        paid.OrderNo,
	})
	if s.metrics != nil {
		s.metrics.IncrementPayments()
		s.metrics.ObservePay(start)
	}
	return paid, nil
}

// Refund reverses a paid order. The registration keeps its seat and its
// admission ticket number; only the payment state changes.
func (s *Service) Refund(ctx context.Context, orderNo, reason string) (models.PaymentOrder, error) {
	ctx, span := tracer.Start(ctx, "payment.Refund")
	defer span.End()

	actor := requestcontext.UserID(ctx)
	if actor.IsZero() {
		return models.PaymentOrder{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	order, err := s.orders.FindByOrderNo(ctx, orderNo)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.PaymentOrder{}, dErrors.New(dErrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return models.PaymentOrder{}, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to load order")
	}

	now := requestcontext.Now(ctx)
	var refunded models.PaymentOrder
	err = s.txm.RunInTx(ctx, func(ctx context.Context) error {
		refunded, err = s.orders.Execute(ctx, order.ID,
			func(o *models.PaymentOrder) error { return o.CanRefund() },
			func(o *models.PaymentOrder) { o.ApplyRefund(reason, now) })
		if err != nil {
			return err
		}
		_, err = s.regs.Execute(ctx, refunded.RegistrationID,
			func(*regmodels.Registration) error { return nil },
			func(r *regmodels.Registration) { r.ApplyRefund() })
		return err
	})
	if err != nil {
		return models.PaymentOrder{}, err
	}

	s.logger.InfoContext(ctx, "order refunded",
		"order_no", refunded.OrderNo,
		"reason", reason,
	)
	s.logAudit(ctx, audit.Event{
		Action:         audit.ActionOrderRefunded,
		UserID:         refunded.UserID,
		ActorID:        actor,
		RegistrationID: refunded.RegistrationID,
		ExamID:         refunded.ExamID,
		OrderNo:        refunded.OrderNo,
		Detail:         reason,
	})
	if s.metrics != nil {
		s.metrics.IncrementRefunds()
	}
	return refunded, nil
}

// CloseExpired closes every awaiting order past its deadline and returns how
// many were closed. Each order is closed in its own transaction; one bad row
// does not stop the sweep, and an order paid mid-sweep is left alone.
func (s *Service) CloseExpired(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "payment.CloseExpired")
	defer span.End()

	if s.metrics != nil {
		s.metrics.IncrementSweepRuns()
	}
	now := requestcontext.Now(ctx)
	expired, err := s.orders.ListExpired(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to list expired orders")
	}

	closed := 0
	for _, order := range expired {
		if _, err := s.closeOrder(ctx, order.ID); err != nil {
			// A pay racing the sweep wins; anything else is worth a log line.
			if !dErrors.HasCode(err, dErrors.CodeInvalidState) {
				s.logger.ErrorContext(ctx, "failed to close expired order",
					"order_no", order.OrderNo, "error", err)
			}
			continue
		}
		closed++
	}

	if closed > 0 {
		s.logger.InfoContext(ctx, "expired orders closed", "count", closed)
		if s.metrics != nil {
			s.metrics.AddOrdersClosed(closed)
		}
	}
	return closed, nil
}

func (s *Service) closeOrder(ctx context.Context, orderID id.OrderID) (models.PaymentOrder, error) {
	order, err := s.orders.Execute(ctx, orderID,
		func(o *models.PaymentOrder) error { return o.CanClose() },
		func(o *models.PaymentOrder) { o.ApplyClose() })
	if err != nil {
		return models.PaymentOrder{}, err
	}
	s.logAudit(ctx, audit.Event{
		Action:         audit.ActionOrderClosed,
		UserID:         order.UserID,
		RegistrationID: order.RegistrationID,
		ExamID:         order.ExamID,
		OrderNo:        order.OrderNo,
	})
	return order, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
