package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"examreg/internal/registration/models"
	id "examreg/pkg/domain"
	"examreg/pkg/sentinel"
	txcontext "examreg/pkg/tx"
)

// PostgresStore persists registrations. The partial-state transitions all go
// through Execute, which takes a row lock so audit, payment and the expiry
// sweep cannot interleave on the same registration.
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

const regColumns = `id, exam_id, user_id, exam_site_id, id_card_encrypted, phone_encrypted,
	subject, materials, audit_status, audit_remark, audit_by, audit_time,
	payment_status, payment_time, admission_ticket_no, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (models.Registration, error) {
	var (
		r           models.Registration
		auditTime   sql.NullTime
		paymentTime sql.NullTime
	)
	err := row.Scan(&r.ID, &r.ExamID, &r.UserID, &r.ExamSiteID,
		&r.IDCardEncrypted, &r.PhoneEncrypted, &r.Subject, &r.Materials,
		&r.AuditStatus, &r.AuditRemark, &r.AuditBy, &auditTime,
		&r.PaymentStatus, &paymentTime, &r.AdmissionTicketNo, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Registration{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Registration{}, fmt.Errorf("scan registration: %w", err)
	}
	if auditTime.Valid {
		r.AuditTime = &auditTime.Time
	}
	if paymentTime.Valid {
		r.PaymentTime = &paymentTime.Time
	}
	return r, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Create inserts a registration. The unique (user_id, exam_id) index maps to
// sentinel.ErrConflict.
func (s *PostgresStore) Create(ctx context.Context, reg models.Registration) (models.Registration, error) {
	const q = `INSERT INTO registrations (exam_id, user_id, exam_site_id, id_card_encrypted, phone_encrypted,
			subject, materials, audit_status, audit_remark, audit_by, audit_time,
			payment_status, payment_time, admission_ticket_no, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		RETURNING id, created_at`
	err := s.execer(ctx).QueryRowContext(ctx, q,
		reg.ExamID, reg.UserID, reg.ExamSiteID, reg.IDCardEncrypted, reg.PhoneEncrypted,
		reg.Subject, reg.Materials, reg.AuditStatus, reg.AuditRemark, reg.AuditBy, reg.AuditTime,
		reg.PaymentStatus, reg.PaymentTime, reg.AdmissionTicketNo,
	).Scan(&reg.ID, &reg.CreatedAt)
	if isUniqueViolation(err) {
		return models.Registration{}, sentinel.ErrConflict
	}
	if err != nil {
		return models.Registration{}, fmt.Errorf("insert registration: %w", err)
	}
	return reg, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, regID id.RegistrationID) (models.Registration, error) {
	q := `SELECT ` + regColumns + ` FROM registrations WHERE id = $1`
	return scanRegistration(s.execer(ctx).QueryRowContext(ctx, q, regID))
}

func (s *PostgresStore) FindByUserAndExam(ctx context.Context, userID id.UserID, examID id.ExamID) (models.Registration, error) {
	q := `SELECT ` + regColumns + ` FROM registrations WHERE user_id = $1 AND exam_id = $2`
	return scanRegistration(s.execer(ctx).QueryRowContext(ctx, q, userID, examID))
}

func (s *PostgresStore) Update(ctx context.Context, reg models.Registration) error {
	const q = `UPDATE registrations SET
			audit_status = $2, audit_remark = $3, audit_by = $4, audit_time = $5,
			payment_status = $6, payment_time = $7, admission_ticket_no = $8
		WHERE id = $1`
	res, err := s.execer(ctx).ExecContext(ctx, q, reg.ID,
		reg.AuditStatus, reg.AuditRemark, reg.AuditBy, reg.AuditTime,
		reg.PaymentStatus, reg.PaymentTime, reg.AdmissionTicketNo)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, regID id.RegistrationID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM registrations WHERE id = $1`, regID)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]models.Registration, error) {
	q := `SELECT ` + regColumns + ` FROM registrations WHERE user_id = $1 ORDER BY id DESC`
	rows, err := s.execer(ctx).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list registrations by user: %w", err)
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]models.Registration, int64, error) {
	filter = filter.Normalize()
	where, args := buildWhere(filter)

	var total int64
	countQ := `SELECT COUNT(*) FROM registrations` + where
	if err := s.execer(ctx).QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}

	listQ := fmt.Sprintf(`SELECT `+regColumns+` FROM registrations%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	rows, err := s.execer(ctx).QueryContext(ctx, listQ, append(args, filter.PageSize, filter.offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()
	out, err := collectRegistrations(rows)
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
	if filter.AuditStatus != 0 {
		add("audit_status", filter.AuditStatus)
	}
	if filter.PaymentStatus != 0 {
		add("payment_status", filter.PaymentStatus)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func collectRegistrations(rows *sql.Rows) ([]models.Registration, error) {
	var out []models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context, examID id.ExamID) (Stats, error) {
	q := `SELECT COUNT(*),
			COUNT(*) FILTER (WHERE audit_status = 1),
			COUNT(*) FILTER (WHERE audit_status = 2),
			COUNT(*) FILTER (WHERE audit_status = 3),
			COUNT(*) FILTER (WHERE payment_status = 2),
			COUNT(*) FILTER (WHERE payment_status = 3)
		FROM registrations`
	args := []any{}
	if !examID.IsZero() {
		q += ` WHERE exam_id = $1`
		args = append(args, examID)
	}
	var st Stats
	err := s.execer(ctx).QueryRowContext(ctx, q, args...).Scan(
		&st.Total, &st.Pending, &st.Approved, &st.Rejected, &st.Paid, &st.Refunded)
	if err != nil {
		return Stats{}, fmt.Errorf("registration stats: %w", err)
	}
	return st, nil
}

// Execute loads the registration FOR UPDATE, runs check then apply, and
// writes the result back. It joins the caller's transaction when one is in
// the context, otherwise it runs in its own.
func (s *PostgresStore) Execute(ctx context.Context, regID id.RegistrationID,
	check func(*models.Registration) error, apply func(*models.Registration)) (models.Registration, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, regID, check, apply)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Registration{}, fmt.Errorf("begin registration tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	reg, err := s.executeLocked(txcontext.WithTx(ctx, tx), regID, check, apply)
	if err != nil {
		return models.Registration{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Registration{}, fmt.Errorf("commit registration tx: %w", err)
	}
	return reg, nil
}

// ExecuteDelete loads the registration FOR UPDATE, runs check, and deletes
// the row. The row lock keeps a concurrent Execute from transitioning the
// registration between the check and the delete.
func (s *PostgresStore) ExecuteDelete(ctx context.Context, regID id.RegistrationID,
	check func(*models.Registration) error) (models.Registration, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeDeleteLocked(ctx, regID, check)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Registration{}, fmt.Errorf("begin registration tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	reg, err := s.executeDeleteLocked(txcontext.WithTx(ctx, tx), regID, check)
	if err != nil {
		return models.Registration{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Registration{}, fmt.Errorf("commit registration tx: %w", err)
	}
	return reg, nil
}

func (s *PostgresStore) executeDeleteLocked(ctx context.Context, regID id.RegistrationID,
	check func(*models.Registration) error) (models.Registration, error) {
	q := `SELECT ` + regColumns + ` FROM registrations WHERE id = $1 FOR UPDATE`
	reg, err := scanRegistration(s.execer(ctx).QueryRowContext(ctx, q, regID))
	if err != nil {
		return models.Registration{}, err
	}
	if err := check(&reg); err != nil {
		return models.Registration{}, err
	}
	if err := s.Delete(ctx, reg.ID); err != nil {
		return models.Registration{}, err
	}
	return reg, nil
}

func (s *PostgresStore) executeLocked(ctx context.Context, regID id.RegistrationID,
	check func(*models.Registration) error, apply func(*models.Registration)) (models.Registration, error) {
	q := `SELECT ` + regColumns + ` FROM registrations WHERE id = $1 FOR UPDATE`
	reg, err := scanRegistration(s.execer(ctx).QueryRowContext(ctx, q, regID))
	if err != nil {
		return models.Registration{}, err
	}
	if err := check(&reg); err != nil {
		return models.Registration{}, err
	}
	apply(&reg)
	if err := s.Update(ctx, reg); err != nil {
		return models.Registration{}, err
	}
	return reg, nil
}
