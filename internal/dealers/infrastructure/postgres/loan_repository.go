package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dealers "omc-erp/internal/dealers/domain"
)

const (
	defaultLoansTable       = "dealer_loans"
	defaultInstallmentTable = "dealer_loan_installments"
)

// LoanRepository persists loan schedules and answers installment lookups.
type LoanRepository struct {
	db               *sql.DB
	loansTable       string
	installmentTable string
}

// LoanOption configures the repository.
type LoanOption func(*LoanRepository)

// WithLoanTables overrides the loan and installment table names.
func WithLoanTables(loans, installments string) LoanOption {
	return func(r *LoanRepository) {
		if loans != "" {
			r.loansTable = loans
		}
		if installments != "" {
			r.installmentTable = installments
		}
	}
}

// NewLoanRepository constructs a repository.
func NewLoanRepository(db *sql.DB, opts ...LoanOption) *LoanRepository {
	r := &LoanRepository{db: db, loansTable: defaultLoansTable, installmentTable: defaultInstallmentTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save inserts the loan and its installments in one transaction.
func (r *LoanRepository) Save(ctx context.Context, loan *dealers.LoanSchedule) error {
	if r == nil || r.db == nil {
		return errors.New("loan repo: nil db")
	}
	if loan == nil {
		return dealers.ErrInvalidLoan
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (loan_id, tenant_id, station_id, principal, annual_rate_pct, term_months, disbursed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, r.loansTable),
		loan.LoanID, loan.TenantID, loan.StationID, loan.Principal, loan.AnnualRatePct, loan.TermMonths, loan.DisbursedAt)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	insert := fmt.Sprintf(`
INSERT INTO %s (loan_id, number, due_date, principal, interest, amount, paid)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, r.installmentTable)
	for _, inst := range loan.Installments {
		if _, err := tx.ExecContext(ctx, insert,
			loan.LoanID, inst.Number, inst.DueDate, inst.Principal, inst.Interest, inst.Amount, inst.Paid); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListByStation returns the loans of a station with their installments.
func (r *LoanRepository) ListByStation(ctx context.Context, stationID string) ([]*dealers.LoanSchedule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("loan repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT l.loan_id, l.tenant_id, l.station_id, l.principal, l.annual_rate_pct, l.term_months, l.disbursed_at,
	i.number, i.due_date, i.principal, i.interest, i.amount, i.paid
FROM %s l
JOIN %s i ON i.loan_id = l.loan_id
WHERE l.station_id = $1
ORDER BY l.disbursed_at, l.loan_id, i.number`, r.loansTable, r.installmentTable), stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*dealers.LoanSchedule
	var current *dealers.LoanSchedule
	for rows.Next() {
		var loan dealers.LoanSchedule
		var inst dealers.Installment
		if err := rows.Scan(&loan.LoanID, &loan.TenantID, &loan.StationID, &loan.Principal, &loan.AnnualRatePct,
			&loan.TermMonths, &loan.DisbursedAt, &inst.Number, &inst.DueDate, &inst.Principal, &inst.Interest,
			&inst.Amount, &inst.Paid); err != nil {
			return nil, err
		}
		if current == nil || current.LoanID != loan.LoanID {
			current = &loan
			out = append(out, current)
		}
		current.Installments = append(current.Installments, inst)
	}
	return out, rows.Err()
}

// InstallmentsDue returns unpaid installments due in [from, to].
func (r *LoanRepository) InstallmentsDue(ctx context.Context, stationID string, from, to time.Time) ([]dealers.DueInstallment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("loan repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT i.loan_id, i.number, i.due_date, i.amount
FROM %s i
JOIN %s l ON l.loan_id = i.loan_id
WHERE l.station_id = $1 AND i.paid = FALSE AND i.due_date BETWEEN $2 AND $3
ORDER BY i.due_date, i.loan_id`, r.installmentTable, r.loansTable), stationID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dealers.DueInstallment
	for rows.Next() {
		var due dealers.DueInstallment
		if err := rows.Scan(&due.LoanID, &due.Number, &due.DueDate, &due.Amount); err != nil {
			return nil, err
		}
		out = append(out, due)
	}
	return out, rows.Err()
}
