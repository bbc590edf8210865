// Package models defines the PaymentOrder aggregate.
package models

import (
	"time"

	id "examreg/pkg/domain"
	dErrors "examreg/pkg/domain-errors"
)

// OrderStatus mirrors the integer codes persisted by the store.
type OrderStatus int

const (
	OrderStatusAwaitingPayment OrderStatus = 1
	OrderStatusPaid            OrderStatus = 2
	OrderStatusClosed          OrderStatus = 3
	OrderStatusRefunded        OrderStatus = 4
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusAwaitingPayment:
		return "awaiting_payment"
	case OrderStatusPaid:
		return "paid"
	case OrderStatusClosed:
		return "closed"
	case OrderStatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// PaymentOrder is the money side of a registration. Amounts are integer
// cents.
//
// Invariants:
//   - at most one order exists per registration; the store enforces this
//     with a unique index
//   - an order expires ExpiresAt after creation; expiry only ever moves an
//     awaiting order to Closed
//   - Paid and Refunded are terminal except for the Paid to Refunded edge
type PaymentOrder struct {
	ID             id.OrderID        `json:"id"`
	OrderNo        string            `json:"order_no"`
	RegistrationID id.RegistrationID `json:"registration_id"`
	UserID         id.UserID         `json:"user_id"`
	ExamID         id.ExamID         `json:"exam_id"`
	AmountCents    int64             `json:"amount_cents"`
	Status         OrderStatus       `json:"status"`
	PaymentMethod  string            `json:"payment_method,omitempty"`
	TransactionID  string            `json:"transaction_id,omitempty"`
	ExpiresAt      time.Time         `json:"expires_at"`
	PaidAt         *time.Time        `json:"paid_at,omitempty"`
	RefundReason   string            `json:"refund_reason,omitempty"`
	RefundedAt     *time.Time        `json:"refunded_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewOrder builds an awaiting-payment order.
func NewOrder(orderNo string, regID id.RegistrationID, userID id.UserID, examID id.ExamID,
	amountCents int64, now time.Time, ttl time.Duration) (PaymentOrder, error) {
	if orderNo == "" {
		return PaymentOrder{}, dErrors.New(dErrors.CodeValidation, "order number is required")
	}
	if regID.IsZero() || userID.IsZero() || examID.IsZero() {
		return PaymentOrder{}, dErrors.New(dErrors.CodeValidation, "registration, user and exam are required")
	}
	if amountCents <= 0 {
		return PaymentOrder{}, dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	return PaymentOrder{
		OrderNo:        orderNo,
		RegistrationID: regID,
		UserID:         userID,
		ExamID:         examID,
		AmountCents:    amountCents,
		Status:         OrderStatusAwaitingPayment,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
	}, nil
}

// Expired reports whether an awaiting order is past its payment deadline.
func (o *PaymentOrder) Expired(now time.Time) bool {
	return o.Status == OrderStatusAwaitingPayment && now.After(o.ExpiresAt)
}

// CanPay checks that a payment may be recorded. Expiry is handled by the
// caller before this check so the error distinguishes "expired" from
// "wrong state".
func (o *PaymentOrder) CanPay() error {
	switch o.Status {
	case OrderStatusAwaitingPayment:
		return nil
	case OrderStatusPaid:
		return dErrors.New(dErrors.CodeInvalidState, "order is already paid")
	case OrderStatusClosed:
		return dErrors.New(dErrors.CodeExpired, "order has expired")
	default:
		return dErrors.New(dErrors.CodeInvalidState, "order is not payable")
	}
}

// ApplyPayment records a successful payment. Call CanPay first.
func (o *PaymentOrder) ApplyPayment(method, transactionID string, now time.Time) {
	o.Status = OrderStatusPaid
	o.PaymentMethod = method
	o.TransactionID = transactionID
	t := now
	o.PaidAt = &t
}

// CanClose checks that the order may be closed by expiry.
func (o *PaymentOrder) CanClose() error {
	if o.Status != OrderStatusAwaitingPayment {
		return dErrors.New(dErrors.CodeInvalidState, "only awaiting orders can be closed")
	}
	return nil
}

// ApplyClose moves an awaiting order to Closed.
func (o *PaymentOrder) ApplyClose() {
	o.Status = OrderStatusClosed
}

// CanRefund checks that the order is refundable.
func (o *PaymentOrder) CanRefund() error {
	if o.Status != OrderStatusPaid {
		return dErrors.New(dErrors.CodeInvalidState, "only paid orders can be refunded")
	}
	return nil
}

// ApplyRefund records the refund. The registration's seat stays reserved.
func (o *PaymentOrder) ApplyRefund(reason string, now time.Time) {
	o.Status = OrderStatusRefunded
	o.RefundReason = reason
	t := now
	o.RefundedAt = &t
}
