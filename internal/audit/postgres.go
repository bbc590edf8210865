package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore appends events to the audit_events table. Rows are never
// updated or deleted through this store.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	const q = `
		INSERT INTO audit_events
			(action, occurred_at, user_id, actor_id, registration_id, exam_id, order_no, detail, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.db.ExecContext(ctx, q,
		string(event.Action),
		event.Timestamp,
		int64(event.UserID),
		int64(event.ActorID),
		int64(event.RegistrationID),
		int64(event.ExamID),
		event.OrderNo,
		event.Detail,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
