package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"examreg/internal/payment/models"
	id "examreg/pkg/domain"
	"examreg/pkg/sentinel"
	txcontext "examreg/pkg/tx"
)

// PostgresStore persists payment orders. Status transitions go through
// Execute, which takes a row lock so a payment and the expiry sweep cannot
// interleave on the same order.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const orderColumns = `id, order_no, registration_id, user_id, exam_id, amount_cents, status,
	payment_method, transaction_id, expires_at, paid_at, refund_reason, refunded_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (models.PaymentOrder, error) {
	var (
		o          models.PaymentOrder
		paidAt     sql.NullTime
		refundedAt sql.NullTime
	)
	err := row.Scan(&o.ID, &o.OrderNo, &o.RegistrationID, &o.UserID, &o.ExamID,
		&o.AmountCents, &o.Status, &o.PaymentMethod, &o.TransactionID,
		&o.ExpiresAt, &paidAt, &o.RefundReason, &refundedAt, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PaymentOrder{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.PaymentOrder{}, fmt.Errorf("scan payment order: %w", err)
	}
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	if refundedAt.Valid {
		o.RefundedAt = &refundedAt.Time
	}
	return o, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Create inserts an order. The unique registration_id and order_no indexes
// map to sentinel.ErrConflict.
func (s *PostgresStore) Create(ctx context.Context, order models.PaymentOrder) (models.PaymentOrder, error) {
	const q = `INSERT INTO payment_orders (order_no, registration_id, user_id, exam_id, amount_cents,
			status, payment_method, transaction_id, expires_at, paid_at, refund_reason, refunded_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING id, created_at`
	err := s.execer(ctx).QueryRowContext(ctx, q,
		order.OrderNo, order.RegistrationID, order.UserID, order.ExamID, order.AmountCents,
		order.Status, order.PaymentMethod, order.TransactionID, order.ExpiresAt,
		order.PaidAt, order.RefundReason, order.RefundedAt,
	).Scan(&order.ID, &order.CreatedAt)
	if isUniqueViolation(err) {
		return models.PaymentOrder{}, sentinel.ErrConflict
	}
	if err != nil {
		return models.PaymentOrder{}, fmt.Errorf("insert payment order: %w", err)
	}
	return order, nil
}

func (s *PostgresStore) FindByOrderNo(ctx context.Context, orderNo string) (models.PaymentOrder, error) {
	q := `SELECT ` + orderColumns + ` FROM payment_orders WHERE order_no = $1`
	return scanOrder(s.execer(ctx).QueryRowContext(ctx, q, orderNo))
}

func (s *PostgresStore) FindByRegistration(ctx context.Context, regID id.RegistrationID) (models.PaymentOrder, error) {
	q := `SELECT ` + orderColumns + ` FROM payment_orders WHERE registration_id = $1`
	return scanOrder(s.execer(ctx).QueryRowContext(ctx, q, regID))
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]models.PaymentOrder, error) {
	q := `SELECT ` + orderColumns + ` FROM payment_orders WHERE user_id = $1 ORDER BY id DESC`
	rows, err := s.execer(ctx).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list payment orders by user: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]models.PaymentOrder, int64, error) {
	filter = filter.Normalize()
	where, args := buildWhere(filter)

	var total int64
	countQ := `SELECT COUNT(*) FROM payment_orders` + where
	if err := s.execer(ctx).QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payment orders: %w", err)
	}

	listQ := fmt.Sprintf(`SELECT `+orderColumns+` FROM payment_orders%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	rows, err := s.execer(ctx).QueryContext(ctx, listQ, append(args, filter.PageSize, filter.offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payment orders: %w", err)
	}
	defer rows.Close()
	out, err := collectOrders(rows)
	return out, total, err
}

func buildWhere(filter ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if !filter.ExamID.IsZero() {
		add("exam_id", filter.ExamID)
	}
	if !filter.UserID.IsZero() {
		add("user_id", filter.UserID)
	}
	if filter.Status != 0 {
		add("status", filter.Status)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func collectOrders(rows *sql.Rows) ([]models.PaymentOrder, error) {
	var out []models.PaymentOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, rows.Err()
}

// ListExpired returns awaiting orders past their deadline, oldest first.
func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time) ([]models.PaymentOrder, error) {
	q := `SELECT ` + orderColumns + ` FROM payment_orders
		WHERE status = $1 AND expires_at < $2 ORDER BY id`
	rows, err := s.execer(ctx).QueryContext(ctx, q, models.OrderStatusAwaitingPayment, now)
	if err != nil {
		return nil, fmt.Errorf("list expired orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *PostgresStore) Stats(ctx context.Context, examID id.ExamID) (Stats, error) {
	q := `SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 1),
			COUNT(*) FILTER (WHERE status = 2),
			COUNT(*) FILTER (WHERE status = 3),
			COUNT(*) FILTER (WHERE status = 4),
			COALESCE(SUM(amount_cents) FILTER (WHERE status = 2), 0),
			COALESCE(SUM(amount_cents) FILTER (WHERE status = 4), 0)
		FROM payment_orders`
	args := []any{}
	if !examID.IsZero() {
		q += ` WHERE exam_id = $1`
		args = append(args, examID)
	}
	var st Stats
	err := s.execer(ctx).QueryRowContext(ctx, q, args...).Scan(
		&st.Total, &st.Awaiting, &st.Paid, &st.Closed, &st.Refunded,
		&st.PaidCents, &st.RefundedCents)
	if err != nil {
		return Stats{}, fmt.Errorf("payment order stats: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) update(ctx context.Context, order models.PaymentOrder) error {
	const q = `UPDATE payment_orders SET
			status = $2, payment_method = $3, transaction_id = $4,
			paid_at = $5, refund_reason = $6, refunded_at = $7
		WHERE id = $1`
	res, err := s.execer(ctx).ExecContext(ctx, q, order.ID,
		order.Status, order.PaymentMethod, order.TransactionID,
		order.PaidAt, order.RefundReason, order.RefundedAt)
	if err != nil {
		return fmt.Errorf("update payment order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Execute loads the order FOR UPDATE, runs check then apply, and writes the
// result back. It joins the caller's transaction when one is in the
// context, otherwise it runs in its own.
func (s *PostgresStore) Execute(ctx context.Context, orderID id.OrderID,
	check func(*models.PaymentOrder) error, apply func(*models.PaymentOrder)) (models.PaymentOrder, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, orderID, check, apply)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.PaymentOrder{}, fmt.Errorf("begin order tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	order, err := s.executeLocked(txcontext.WithTx(ctx, tx), orderID, check, apply)
	if err != nil {
		return models.PaymentOrder{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.PaymentOrder{}, fmt.Errorf("commit order tx: %w", err)
	}
	return order, nil
}

func (s *PostgresStore) executeLocked(ctx context.Context, orderID id.OrderID,
	check func(*models.PaymentOrder) error, apply func(*models.PaymentOrder)) (models.PaymentOrder, error) {
	q := `SELECT ` + orderColumns + ` FROM payment_orders WHERE id = $1 FOR UPDATE`
	order, err := scanOrder(s.execer(ctx).QueryRowContext(ctx, q, orderID))
	if err != nil {
		return models.PaymentOrder{}, err
	}
	if err := check(&order); err != nil {
		return models.PaymentOrder{}, err
	}
	apply(&order)
	if err := s.update(ctx, order); err != nil {
		return models.PaymentOrder{}, err
	}
	return order, nil
}
