package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"omc-erp/internal/apperrors"
	pricing "omc-erp/internal/pricing/domain"
)

const defaultWindowsTable = "pricing_windows"

// WindowRepository persists pricing windows.
type WindowRepository struct {
	db    DBTX
	table string
}

// WindowOption configures the repository.
type WindowOption func(*WindowRepository)

// WithWindowsTable overrides the table name.
func WithWindowsTable(table string) WindowOption {
	return func(r *WindowRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewWindowRepository constructs a window repository.
func NewWindowRepository(db DBTX, opts ...WindowOption) *WindowRepository {
	r := &WindowRepository{db: db, table: defaultWindowsTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const windowColumns = `id, status, start_date, end_date, submission_deadline, guideline_ref, created_at, activated_at, closed_at, archived_at`

// Get loads a window by id, nil when missing.
func (r *WindowRepository) Get(ctx context.Context, id string) (*pricing.PricingWindow, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("window repo: nil db")
	}
	if id == "" {
		return nil, pricing.ErrEmptyWindowID
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 LIMIT 1`, windowColumns, r.table)
	window, err := scanWindow(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return window, err
}

// FindActive returns the active window, nil when none.
func (r *WindowRepository) FindActive(ctx context.Context) (*pricing.PricingWindow, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("window repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE status = $1 ORDER BY start_date DESC LIMIT 1`, windowColumns, r.table)
	window, err := scanWindow(r.db.QueryRowContext(ctx, query, string(pricing.WindowActive)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return window, err
}

// List returns every window ordered by start date.
func (r *WindowRepository) List(ctx context.Context) ([]*pricing.PricingWindow, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("window repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY start_date ASC`, windowColumns, r.table)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []*pricing.PricingWindow
	for rows.Next() {
		window, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		windows = append(windows, window)
	}
	return windows, rows.Err()
}

// Save upserts a window.
func (r *WindowRepository) Save(ctx context.Context, window *pricing.PricingWindow) error {
	if r == nil || r.db == nil {
		return errors.New("window repo: nil db")
	}
	if window == nil {
		return pricing.ErrNilWindow
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id)
DO UPDATE SET
	status = EXCLUDED.status,
	guideline_ref = EXCLUDED.guideline_ref,
	activated_at = EXCLUDED.activated_at,
	closed_at = EXCLUDED.closed_at,
	archived_at = EXCLUDED.archived_at`, r.table, windowColumns)

	_, err := r.db.ExecContext(ctx, query,
		window.ID,
		string(window.Status),
		window.StartDate,
		window.EndDate,
		window.SubmissionDeadline,
		window.GuidelineRef,
		window.CreatedAt,
		nullTime(window.ActivatedAt),
		nullTime(window.ClosedAt),
		nullTime(window.ArchivedAt),
	)
	return err
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Activate closes previous and activates window in one transaction. An
// advisory lock on the table serialises concurrent activations.
func (r *WindowRepository) Activate(ctx context.Context, window, previous *pricing.PricingWindow) error {
	if r == nil || r.db == nil {
		return errors.New("window repo: nil db")
	}
	if window == nil {
		return pricing.ErrNilWindow
	}
	beginner, ok := r.db.(txBeginner)
	if !ok {
		return r.activate(ctx, r.db, window, previous)
	}
	tx, err := beginner.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := r.activate(ctx, tx, window, previous); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *WindowRepository) activate(ctx context.Context, db DBTX, window, previous *pricing.PricingWindow) error {
	if _, err := db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, r.table); err != nil {
		return err
	}
	if previous != nil {
		query := fmt.Sprintf(`UPDATE %s SET status = $2, closed_at = $3 WHERE id = $1 AND status = $4`, r.table)
		res, err := db.ExecContext(ctx, query, previous.ID, string(previous.Status), nullTime(previous.ClosedAt), string(pricing.WindowActive))
		if err := expectOneRow(res, err, previous.ID); err != nil {
			return err
		}
	}
	query := fmt.Sprintf(`
UPDATE %s SET status = $2, activated_at = $3
WHERE id = $1 AND status = $4
	AND NOT EXISTS (SELECT 1 FROM %s WHERE status = $5)`, r.table, r.table)
	res, err := db.ExecContext(ctx, query, window.ID, string(window.Status), nullTime(window.ActivatedAt),
		string(pricing.WindowDraft), string(pricing.WindowActive))
	return expectOneRow(res, err, window.ID)
}

func expectOneRow(res sql.Result, err error, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return apperrors.Conflict("pricing window", id)
	}
	return nil
}

func scanWindow(row rowScanner) (*pricing.PricingWindow, error) {
	var w pricing.PricingWindow
	var status string
	var ref sql.NullString
	var activated, closed, archived sql.NullTime
	if err := row.Scan(&w.ID, &status, &w.StartDate, &w.EndDate, &w.SubmissionDeadline, &ref,
		&w.CreatedAt, &activated, &closed, &archived); err != nil {
		return nil, err
	}
	w.Status = pricing.WindowStatus(status)
	w.GuidelineRef = ref.String
	w.StartDate = w.StartDate.UTC()
	w.EndDate = w.EndDate.UTC()
	w.SubmissionDeadline = w.SubmissionDeadline.UTC()
	w.CreatedAt = w.CreatedAt.UTC()
	w.ActivatedAt = fromNullTime(activated)
	w.ClosedAt = fromNullTime(closed)
	w.ArchivedAt = fromNullTime(archived)
	return &w, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
