// Package service orchestrates the registration workflow: submission with
// capacity reservation, administrative audit, candidate cancellation and the
// masked read paths.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"examreg/internal/audit"
	"examreg/internal/capacity"
	exammodels "examreg/internal/exam/models"
	examstore "examreg/internal/exam/store"
	"examreg/internal/registration/metrics"
	"examreg/internal/registration/models"
	"examreg/internal/registration/store"
	id "examreg/pkg/domain"
	dErrors "examreg/pkg/domain-errors"
	"examreg/pkg/pii"
	"examreg/pkg/requestcontext"
	"examreg/pkg/sentinel"
	"examreg/pkg/tx"
)

var tracer = otel.Tracer("examreg/registration")

type RegistrationStore interface {
	Create(ctx context.Context, reg models.Registration) (models.Registration, error)
	FindByID(ctx context.Context, regID id.RegistrationID) (models.Registration, error)
	FindByUserAndExam(ctx context.Context, userID id.UserID, examID id.ExamID) (models.Registration, error)
	Delete(ctx context.Context, regID id.RegistrationID) error
	ListByUser(ctx context.Context, userID id.UserID) ([]models.Registration, error)
	List(ctx context.Context, filter store.ListFilter) ([]models.Registration, int64, error)
	Stats(ctx context.Context, examID id.ExamID) (store.Stats, error)
	Execute(ctx context.Context, regID id.RegistrationID,
		check func(*models.Registration) error, apply func(*models.Registration)) (models.Registration, error)
	ExecuteDelete(ctx context.Context, regID id.RegistrationID,
		check func(*models.Registration) error) (models.Registration, error)
}

type ExamStore interface {
	FindExam(ctx context.Context, examID id.ExamID) (exammodels.Exam, error)
	FindSite(ctx context.Context, siteID id.ExamSiteID) (exammodels.ExamSite, error)
	ReserveSeat(ctx context.Context, examID id.ExamID, siteID id.ExamSiteID) error
	ReleaseSeat(ctx context.Context, examID id.ExamID, siteID id.ExamSiteID) error
}

// OrderCreator opens a payment order for a freshly approved registration.
// Implemented by the payment service; kept as a port so the two workflows
// stay decoupled.
type OrderCreator interface {
	CreateOrder(ctx context.Context, reg models.Registration) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates registration submission, audit and cancellation.
type Service struct {
	regs   RegistrationStore
	exams  ExamStore
	guard  *capacity.Guard
	cipher *pii.Cipher
	txm    tx.Manager

	orders         OrderCreator
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

func WithOrderCreator(orders OrderCreator) Option {
	return func(s *Service) {
		s.orders = orders
	}
}

// New constructs a Service.
func New(regs RegistrationStore, exams ExamStore, txm tx.Manager, cipher *pii.Cipher, opts ...Option) *Service {
	s := &Service{
		regs:   regs,
		exams:  exams,
		guard:  capacity.NewGuard(),
		cipher: cipher,
		txm:    txm,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitRequest carries the candidate's registration form. IDCard and Phone
// arrive in plaintext and are encrypted before anything is persisted.
type SubmitRequest struct {
	ExamID     id.ExamID
	ExamSiteID id.ExamSiteID
	IDCard     string
	Phone      string
	Subject    string
	Materials  string
}

func (r *SubmitRequest) Normalize() {
	r.IDCard = strings.TrimSpace(r.IDCard)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Subject = strings.TrimSpace(r.Subject)
	r.Materials = strings.TrimSpace(r.Materials)
}

func (r *SubmitRequest) Validate() error {
	if r.ExamID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "exam_id is required")
	}
	if r.ExamSiteID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "exam_site_id is required")
	}
	if len(r.IDCard) != 18 {
		return dErrors.New(dErrors.CodeValidation, "id_card must be 18 characters")
	}
	if !allDigits(r.Phone) || len(r.Phone) != 11 {
		return dErrors.New(dErrors.CodeValidation, "phone must be 11 digits")
	}
	return nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Submit registers the authenticated candidate for an exam. The duplicate
// check, the capacity guard and both counter increments run in one
// transaction so a full exam can never oversell and a duplicate can never
// hold a seat.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (models.Registration, error) {
	ctx, span := tracer.Start(ctx, "registration.Submit")
	defer span.End()
	start := time.Now()

	userID := requestcontext.UserID(ctx)
	if userID.IsZero() {
		return models.Registration{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return models.Registration{}, err
	}
	span.SetAttributes(
		attribute.Int64("exam.id", int64(req.ExamID)),
		attribute.Int64("exam.site_id", int64(req.ExamSiteID)),
	)

	now := requestcontext.Now(ctx)
	var created models.Registration
	err := s.txm.RunInTx(ctx, func(ctx context.Context) error {
		exam, err := s.exams.FindExam(ctx, req.ExamID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "exam not found")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUpstream, "failed to load exam")
		}
		site, err := s.exams.FindSite(ctx, req.ExamSiteID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "exam site not found")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUpstream, "failed to load exam site")
		}

		if err := s.guard.Check(exam, site, now); err != nil {
			return err
		}

		if _, err := s.regs.FindByUserAndExam(ctx, userID, req.ExamID); err == nil {
			return dErrors.New(dErrors.CodeConflict, "already registered for this exam")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeUpstream, "failed to check existing registration")
		}

		reg, err := models.NewRegistration(req.ExamID, userID, req.ExamSiteID,
			s.cipher.Encrypt(req.IDCard), s.cipher.Encrypt(req.Phone),
			req.Subject, req.Materials, now)
		if err != nil {
			return err
		}

		created, err = s.regs.Create(ctx, reg)
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "already registered for this exam")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUpstream, "failed to create registration")
		}

		if err := s.exams.ReserveSeat(ctx, created.ExamID, created.ExamSiteID); err != nil {
			switch {
			case errors.Is(err, examstore.ErrExamFull):
				return dErrors.New(dErrors.CodeConflict, "exam quota exhausted")
			case errors.Is(err, examstore.ErrSiteFull):
				return dErrors.New(dErrors.CodeConflict, "site is full, choose another site")
			default:
				return dErrors.Wrap(err, dErrors.CodeUpstream, "failed to reserve seat")
			}
		}
		return nil
	})
	if err != nil {
		return models.Registration{}, err
	}

	s.logger.InfoContext(ctx, "registration submitted",
		"registration_id", created.ID,
		"exam_id", created.ExamID,
		"user_id", created.UserID,
	)
	s.logAudit(ctx, audit.Event{
		Action:         audit.ActionRegistrationSubmitted,
		UserID:         created.UserID,
		ActorID:        created.UserID,
		RegistrationID: created.ID,
		ExamID:         created.ExamID,
	})
	if s.metrics != nil {
		s.metrics.IncrementSubmitted()
		s.metrics.ObserveSubmit(start)
	}
	return created, nil
}

// Audit records an administrator's verdict on a pending registration. On
// approval a payment order is opened; an order failure is logged but does
// not undo the approval, the candidate can still obtain the order later.
func (s *Service) Audit(ctx context.Context, regID id.RegistrationID,
	decision models.AuditDecision, remark string) (models.Registration, error) {
	ctx, span := tracer.Start(ctx, "registration.Audit")
	defer span.End()

	actor := requestcontext.UserID(ctx)
	if actor.IsZero() {
		return models.Registration{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if decision != models.AuditDecisionApprove && decision != models.AuditDecisionReject {
		return models.Registration{}, dErrors.New(dErrors.CodeValidation, "decision must be approve or reject")
	}
	remark = strings.TrimSpace(remark)
	if decision == models.AuditDecisionReject && remark == "" {
		return models.Registration{}, dErrors.New(dErrors.CodeValidation, "rejection requires a remark")
	}

	now := requestcontext.Now(ctx)
	reg, err := s.regs.Execute(ctx, regID,
		func(r *models.Registration) error { return r.CanAudit() },
		func(r *models.Registration) { r.ApplyAudit(decision, remark, actor, now) })
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Registration{}, dErrors.New(dErrors.CodeNotFound, "registration not found")
	}
	if err != nil {
		return models.Registration{}, err
	}

	action := audit.ActionRegistrationRejected
	decisionLabel := "reject"
	if reg.AuditStatus == models.AuditStatusApproved {
		action = audit.ActionRegistrationApproved
		decisionLabel = "approve"
		if s.orders != nil {
			if err := s.orders.CreateOrder(ctx, reg); err != nil {
				s.logger.ErrorContext(ctx, "order creation after approval failed",
					"registration_id", reg.ID,
					"error", err,
				)
			}
		}
	}

	s.logAudit(ctx, audit.Event{
		Action:         action,
		UserID:         reg.UserID,
		ActorID:        actor,
		RegistrationID: reg.ID,
		ExamID:         reg.ExamID,
		Detail:         remark,
	})
	if s.metrics != nil {
		s.metrics.IncrementAudited(decisionLabel)
	}
	return reg, nil
}

// Cancel deletes the caller's pending registration and returns its seat.
// Both happen in one transaction; audited registrations cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, regID id.RegistrationID) error {
	ctx, span := tracer.Start(ctx, "registration.Cancel")
	defer span.End()

	userID := requestcontext.UserID(ctx)
	if userID.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	var cancelled models.Registration
	err := s.txm.RunInTx(ctx, func(ctx context.Context) error {
		// The delete is conditional on the state observed under the row
		// lock, so an audit committing concurrently either lands before the
		// check (cancel refused) or finds the row gone.
		reg, err := s.regs.ExecuteDelete(ctx, regID,
			func(r *models.Registration) error { return r.CanCancel(userID) })
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		if err != nil {
			return err
		}
		if err := s.exams.ReleaseSeat(ctx, reg.ExamID, reg.ExamSiteID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUpstream, "failed to release seat")
		}
		cancelled = reg
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "registration cancelled",
		"registration_id", cancelled.ID,
		"exam_id", cancelled.ExamID,
	)
	s.logAudit(ctx, audit.Event{
		Action:         audit.ActionRegistrationCancelled,
		UserID:         cancelled.UserID,
		ActorID:        userID,
		RegistrationID: cancelled.ID,
		ExamID:         cancelled.ExamID,
	})
	if s.metrics != nil {
		s.metrics.IncrementCancelled()
	}
	return nil
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
