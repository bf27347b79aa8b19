package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"omc-erp/internal/apperrors"
	dealers "omc-erp/internal/dealers/domain"
)

const defaultSettlementsTable = "dealer_settlements"

const settlementColumns = `id, tenant_id, settlement_number, sequence, station_id, dealer_id, window_id,
	period_start, period_end, lines, total_litres_sold, gross_dealer_margin, loan_deduction,
	other_deductions, deductions, status, version, approved_by, approved_at, paid_at,
	payment_reference, dispute_reason, cancel_reason, calculated_at, history`

// SettlementRepository persists dealer settlements with optimistic versioning.
type SettlementRepository struct {
	db    DBTX
	table string
}

// SettlementOption configures the repository.
type SettlementOption func(*SettlementRepository)

// WithSettlementsTable overrides the table name.
func WithSettlementsTable(table string) SettlementOption {
	return func(r *SettlementRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewSettlementRepository constructs a repository.
func NewSettlementRepository(db DBTX, opts ...SettlementOption) *SettlementRepository {
	r := &SettlementRepository{db: db, table: defaultSettlementsTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns a settlement by id.
func (r *SettlementRepository) Get(ctx context.Context, id string) (*dealers.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, settlementColumns, r.table)
	s, err := scanSettlement(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("dealer settlement", id)
	}
	return s, err
}

// FindLatest returns the highest-sequence settlement for a station and window, or nil.
func (r *SettlementRepository) FindLatest(ctx context.Context, stationID, windowID string) (*dealers.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE station_id = $1 AND window_id = $2
ORDER BY sequence DESC
LIMIT 1`, settlementColumns, r.table)
	s, err := scanSettlement(r.db.QueryRowContext(ctx, query, stationID, windowID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// ListByStation returns the settlements of a station ordered by period end.
func (r *SettlementRepository) ListByStation(ctx context.Context, stationID string) ([]*dealers.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE station_id = $1
ORDER BY period_end, sequence`, settlementColumns, r.table)
	rows, err := r.db.QueryContext(ctx, query, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*dealers.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create inserts a settlement at version 1.
func (r *SettlementRepository) Create(ctx context.Context, s *dealers.Settlement) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repo: nil db")
	}
	if s == nil {
		return dealers.ErrNilSettlement
	}
	args, err := settlementArgs(s, 1)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
ON CONFLICT (settlement_number) DO NOTHING`, r.table, settlementColumns)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.Conflict("dealer settlement", s.SettlementNumber)
	}
	s.Version = 1
	return nil
}

// Update writes s when the stored version equals expectedVersion.
func (r *SettlementRepository) Update(ctx context.Context, s *dealers.Settlement, expectedVersion int) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repo: nil db")
	}
	if s == nil {
		return dealers.ErrNilSettlement
	}
	next := expectedVersion + 1
	args, err := settlementArgs(s, next)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	period_start = $8, period_end = $9, lines = $10, total_litres_sold = $11,
	gross_dealer_margin = $12, loan_deduction = $13, other_deductions = $14, deductions = $15,
	status = $16, version = $17, approved_by = $18, approved_at = $19, paid_at = $20,
	payment_reference = $21, dispute_reason = $22, cancel_reason = $23, calculated_at = $24, history = $25
WHERE id = $1 AND version = $26`, r.table)
	res, err := r.db.ExecContext(ctx, query, append(args, expectedVersion)...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.Conflict("dealer settlement", s.SettlementNumber)
	}
	s.Version = next
	return nil
}

func settlementArgs(s *dealers.Settlement, version int) ([]any, error) {
	lines, err := json.Marshal(s.Lines)
	if err != nil {
		return nil, err
	}
	deductions, err := json.Marshal(s.Deductions)
	if err != nil {
		return nil, err
	}
	history, err := json.Marshal(s.History)
	if err != nil {
		return nil, err
	}
	return []any{
		s.ID, s.TenantID, s.SettlementNumber, s.Sequence, s.StationID, s.DealerID, s.WindowID,
		s.PeriodStart, s.PeriodEnd, lines, s.TotalLitresSold, s.GrossDealerMargin, s.LoanDeduction,
		s.OtherDeductions, deductions, string(s.Status), version, s.ApprovedBy, nullTime(s.ApprovedAt), nullTime(s.PaidAt),
		s.PaymentReference, s.DisputeReason, s.CancelReason, nullTime(s.CalculatedAt), history,
	}, nil
}

func scanSettlement(row rowScanner) (*dealers.Settlement, error) {
	var (
		s                                dealers.Settlement
		status                           string
		lines, deductions, history       []byte
		approvedAt, paidAt, calculatedAt sql.NullTime
	)
	if err := row.Scan(
		&s.ID, &s.TenantID, &s.SettlementNumber, &s.Sequence, &s.StationID, &s.DealerID, &s.WindowID,
		&s.PeriodStart, &s.PeriodEnd, &lines, &s.TotalLitresSold, &s.GrossDealerMargin, &s.LoanDeduction,
		&s.OtherDeductions, &deductions, &status, &s.Version, &s.ApprovedBy, &approvedAt, &paidAt,
		&s.PaymentReference, &s.DisputeReason, &s.CancelReason, &calculatedAt, &history,
	); err != nil {
		return nil, err
	}
	s.Status = dealers.Status(status)
	s.ApprovedAt = fromNullTime(approvedAt)
	s.PaidAt = fromNullTime(paidAt)
	s.CalculatedAt = fromNullTime(calculatedAt)
	s.PeriodStart = s.PeriodStart.UTC()
	s.PeriodEnd = s.PeriodEnd.UTC()
	for _, part := range []struct {
		raw []byte
		dst any
	}{{lines, &s.Lines}, {deductions, &s.Deductions}, {history, &s.History}} {
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.dst); err != nil {
			return nil, err
		}
	}
	return &s, nil
}
