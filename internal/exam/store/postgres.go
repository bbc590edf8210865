package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"examreg/internal/exam/models"
	id "examreg/pkg/domain"
	"examreg/pkg/sentinel"
	txcontext "examreg/pkg/tx"
)

// PostgresStore persists exams and sites in PostgreSQL. Seat reservation is a
// pair of conditional updates checked by affected-row count, run inside the
// caller's transaction so both counters move or neither does.
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

const examColumns = `id, name, type, exam_date, exam_time, registration_start, registration_end,
	fee_cents, status, total_quota, current_count, created_at`

func scanExam(row *sql.Row) (models.Exam, error) {
	var e models.Exam
	err := row.Scan(&e.ID, &e.Name, &e.Type, &e.ExamDate, &e.ExamTime,
		&e.RegistrationStart, &e.RegistrationEnd, &e.FeeCents, &e.Status,
		&e.TotalQuota, &e.CurrentCount, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Exam{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Exam{}, fmt.Errorf("scan exam: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) PutExam(ctx context.Context, exam models.Exam) (models.Exam, error) {
	const q = `INSERT INTO exams (name, type, exam_date, exam_time, registration_start, registration_end,
			fee_cents, status, total_quota, current_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING id, created_at`
	err := s.execer(ctx).QueryRowContext(ctx, q, exam.Name, exam.Type, exam.ExamDate, exam.ExamTime,
		exam.RegistrationStart, exam.RegistrationEnd, exam.FeeCents, exam.Status,
		exam.TotalQuota, exam.CurrentCount).Scan(&exam.ID, &exam.CreatedAt)
	if err != nil {
		return models.Exam{}, fmt.Errorf("insert exam: %w", err)
	}
	return exam, nil
}

func (s *PostgresStore) PutSite(ctx context.Context, site models.ExamSite) (models.ExamSite, error) {
	const q = `INSERT INTO exam_sites (exam_id, name, province, city, address, capacity, current_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at`
	err := s.execer(ctx).QueryRowContext(ctx, q, site.ExamID, site.Name, site.Province, site.City,
		site.Address, site.Capacity, site.CurrentCount).Scan(&site.ID, &site.CreatedAt)
	if err != nil {
		return models.ExamSite{}, fmt.Errorf("insert exam site: %w", err)
	}
	return site, nil
}

func (s *PostgresStore) FindExam(ctx context.Context, examID id.ExamID) (models.Exam, error) {
	q := `SELECT ` + examColumns + ` FROM exams WHERE id = $1`
	return scanExam(s.execer(ctx).QueryRowContext(ctx, q, examID))
}

func (s *PostgresStore) FindSite(ctx context.Context, siteID id.ExamSiteID) (models.ExamSite, error) {
	const q = `SELECT id, exam_id, name, province, city, address, capacity, current_count, created_at
		FROM exam_sites WHERE id = $1`
	var site models.ExamSite
	err := s.execer(ctx).QueryRowContext(ctx, q, siteID).Scan(&site.ID, &site.ExamID, &site.Name,
		&site.Province, &site.City, &site.Address, &site.Capacity, &site.CurrentCount, &site.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ExamSite{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.ExamSite{}, fmt.Errorf("scan exam site: %w", err)
	}
	return site, nil
}

func (s *PostgresStore) ListSites(ctx context.Context, examID id.ExamID) ([]models.ExamSite, error) {
	const q = `SELECT id, exam_id, name, province, city, address, capacity, current_count, created_at
		FROM exam_sites WHERE exam_id = $1 ORDER BY id`
	rows, err := s.execer(ctx).QueryContext(ctx, q, examID)
	if err != nil {
		return nil, fmt.Errorf("list exam sites: %w", err)
	}
	defer rows.Close()
	var out []models.ExamSite
	for rows.Next() {
		var site models.ExamSite
		if err := rows.Scan(&site.ID, &site.ExamID, &site.Name, &site.Province, &site.City,
			&site.Address, &site.Capacity, &site.CurrentCount, &site.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exam site: %w", err)
		}
		out = append(out, site)
	}
	return out, rows.Err()
}

// ReserveSeat applies both bounded increments. A zero-row update means a
// ceiling was hit; the caller's transaction rollback undoes the first
// increment in that case.
func (s *PostgresStore) ReserveSeat(ctx context.Context, examID id.ExamID, siteID id.ExamSiteID) error {
	ex := s.execer(ctx)

	const examQ = `UPDATE exams SET current_count = current_count + 1
		WHERE id = $1 AND (total_quota = 0 OR current_count < total_quota)`
	res, err := ex.ExecContext(ctx, examQ, examID)
	if err != nil {
		return fmt.Errorf("reserve exam seat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.FindExam(ctx, examID); errors.Is(err, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return ErrExamFull
	}

	const siteQ = `UPDATE exam_sites SET current_count = current_count + 1
		WHERE id = $1 AND current_count < capacity`
	res, err = ex.ExecContext(ctx, siteQ, siteID)
	if err != nil {
		return fmt.Errorf("reserve site seat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.FindSite(ctx, siteID); errors.Is(err, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return ErrSiteFull
	}
	return nil
}

// ReleaseSeat reverses ReserveSeat on cancellation.
func (s *PostgresStore) ReleaseSeat(ctx context.Context, examID id.ExamID, siteID id.ExamSiteID) error {
	ex := s.execer(ctx)
	if _, err := ex.ExecContext(ctx,
		`UPDATE exams SET current_count = GREATEST(current_count - 1, 0) WHERE id = $1`, examID); err != nil {
		return fmt.Errorf("release exam seat: %w", err)
	}
	if _, err := ex.ExecContext(ctx,
		`UPDATE exam_sites SET current_count = GREATEST(current_count - 1, 0) WHERE id = $1`, siteID); err != nil {
		return fmt.Errorf("release site seat: %w", err)
	}
	return nil
}
