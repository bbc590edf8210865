// Package audit captures the workflow actions an operator needs a trail for:
// who registered, who approved, what was paid. Events are emitted from the
// services through a Publisher so sinks (in-process store, Kafka) can be
// swapped without touching business logic.
package audit

import (
	"context"
	"time"

	id "examreg/pkg/domain"
)

// Action names the workflow step an event records.
type Action string

const (
	ActionRegistrationSubmitted Action = "registration_submitted"
	ActionRegistrationApproved  Action = "registration_approved"
	ActionRegistrationRejected  Action = "registration_rejected"
	ActionRegistrationCancelled Action = "registration_cancelled"
	ActionOrderCreated          Action = "order_created"
	ActionOrderPaid             Action = "order_paid"
	ActionOrderRefunded         Action = "order_refunded"
	ActionOrderClosed           Action = "order_closed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	// UserID is the candidate the event concerns; ActorID is who performed
	// the action when different (an admin auditing, the sweeper closing).
	UserID         id.UserID         `json:"user_id,omitempty"`
	ActorID        id.UserID         `json:"actor_id,omitempty"`
	RegistrationID id.RegistrationID `json:"registration_id,omitempty"`
	ExamID         id.ExamID         `json:"exam_id,omitempty"`
	OrderNo        string            `json:"order_no,omitempty"`
	Detail         string            `json:"detail,omitempty"`
	RequestID      string            `json:"request_id,omitempty"`
}

// Store is an append-only sink for events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
