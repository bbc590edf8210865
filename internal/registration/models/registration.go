// Package models defines the Registration aggregate.
//
// A Registration is one candidate's attempt to sit one exam. It is returned
// from the store as a value snapshot: callers build the next state through
// the Can/Apply transition methods and write it back, never by mutating a
// shared reference.
package models

import (
	"time"

	id "examreg/pkg/domain"
	dErrors "examreg/pkg/domain-errors"
)

// AuditStatus mirrors the integer codes persisted by the store.
type AuditStatus int

const (
	AuditStatusPending  AuditStatus = 1
	AuditStatusApproved AuditStatus = 2
	AuditStatusRejected AuditStatus = 3
)

func (s AuditStatus) String() string {
	switch s {
	case AuditStatusPending:
		return "pending"
	case AuditStatusApproved:
		return "approved"
	case AuditStatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// PaymentStatus mirrors the integer codes persisted by the store.
type PaymentStatus int

const (
	PaymentStatusUnpaid   PaymentStatus = 1
	PaymentStatusPaid     PaymentStatus = 2
	PaymentStatusRefunded PaymentStatus = 3
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentStatusUnpaid:
		return "unpaid"
	case PaymentStatusPaid:
		return "paid"
	case PaymentStatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// AuditDecision is the administrator's verdict on a pending registration.
type AuditDecision int

const (
	AuditDecisionApprove AuditDecision = 1
	AuditDecisionReject  AuditDecision = 2
)

// Registration is the aggregate for one (user, exam) pair.
//
// Invariants:
//   - at most one non-cancelled Registration exists per (UserID, ExamID);
//     the store enforces this with a unique index
//   - ExamSiteID is chosen at submission and immutable thereafter
//   - AdmissionTicketNo is assigned exactly once, on first successful payment
//   - no further mutation once Rejected; cancellation (deletion) only while
//     Pending
type Registration struct {
	ID         id.RegistrationID `json:"id"`
	ExamID     id.ExamID         `json:"exam_id"`
	UserID     id.UserID         `json:"user_id"`
	ExamSiteID id.ExamSiteID     `json:"exam_site_id"`

	// IDCardEncrypted and PhoneEncrypted hold ciphertext only; plaintext
	// never reaches the store.
	IDCardEncrypted string `json:"-"`
	PhoneEncrypted  string `json:"-"`

	Subject   string `json:"subject"`
	Materials string `json:"materials,omitempty"`

	AuditStatus AuditStatus `json:"audit_status"`
	AuditRemark string      `json:"audit_remark,omitempty"`
	AuditBy     id.UserID   `json:"audit_by,omitempty"`
	AuditTime   *time.Time  `json:"audit_time,omitempty"`

	PaymentStatus     PaymentStatus `json:"payment_status"`
	PaymentTime       *time.Time    `json:"payment_time,omitempty"`
	AdmissionTicketNo string        `json:"admission_ticket_no,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewRegistration builds a pending, unpaid registration.
func NewRegistration(examID id.ExamID, userID id.UserID, siteID id.ExamSiteID,
	idCardEncrypted, phoneEncrypted, subject, materials string, now time.Time) (Registration, error) {
	if examID.IsZero() || userID.IsZero() || siteID.IsZero() {
		return Registration{}, dErrors.New(dErrors.CodeValidation, "exam, user and site are required")
	}
	if idCardEncrypted == "" || phoneEncrypted == "" {
		return Registration{}, dErrors.New(dErrors.CodeValidation, "id card and phone are required")
	}
	return Registration{
		ExamID:          examID,
		UserID:          userID,
		ExamSiteID:      siteID,
		IDCardEncrypted: idCardEncrypted,
		PhoneEncrypted:  phoneEncrypted,
		Subject:         subject,
		Materials:       materials,
		AuditStatus:     AuditStatusPending,
		PaymentStatus:   PaymentStatusUnpaid,
		CreatedAt:       now,
	}, nil
}

// CanAudit checks that the registration is still awaiting its verdict.
func (r *Registration) CanAudit() error {
	if r.AuditStatus != AuditStatusPending {
		return dErrors.New(dErrors.CodeInvalidState, "registration already audited")
	}
	return nil
}

// ApplyAudit records the verdict. Call CanAudit first.
func (r *Registration) ApplyAudit(decision AuditDecision, remark string, auditor id.UserID, now time.Time) {
	if decision == AuditDecisionApprove {
		r.AuditStatus = AuditStatusApproved
	} else {
		r.AuditStatus = AuditStatusRejected
	}
	r.AuditRemark = remark
	r.AuditBy = auditor
	t := now
	r.AuditTime = &t
}

// CanCancel checks ownership and that the registration is still pending.
// Cancellation is row deletion, so there is no Apply counterpart.
func (r *Registration) CanCancel(requestingUser id.UserID) error {
	if r.UserID != requestingUser {
		return dErrors.New(dErrors.CodeForbidden, "not your registration")
	}
	if r.AuditStatus != AuditStatusPending {
		return dErrors.New(dErrors.CodeInvalidState, "only pending registrations can be cancelled")
	}
	return nil
}

// CanPay checks that a payment may be recorded against the registration.
func (r *Registration) CanPay() error {
	if r.AuditStatus != AuditStatusApproved {
		return dErrors.New(dErrors.CodeInvalidState, "registration is not approved")
	}
	if r.PaymentStatus != PaymentStatusUnpaid {
		return dErrors.New(dErrors.CodeInvalidState, "registration is already paid")
	}
	return nil
}

// ApplyPayment marks the registration paid and assigns the admission ticket
// number once; an already-assigned number is never regenerated.
func (r *Registration) ApplyPayment(ticketNo string, now time.Time) {
	r.PaymentStatus = PaymentStatusPaid
	t := now
	r.PaymentTime = &t
	if r.AdmissionTicketNo == "" {
		r.AdmissionTicketNo = ticketNo
	}
}

// ApplyRefund marks the registration refunded. The seat is not released: a
// refunded registration still occupies its reservation.
func (r *Registration) ApplyRefund() {
	r.PaymentStatus = PaymentStatusRefunded
}
