package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pricing "omc-erp/internal/pricing/domain"
)

const defaultRatesTable = "component_rates"

// RateRepository resolves and publishes component rates in Postgres.
// Rows are append-only; a republished (code, product, window) gets the next version.
type RateRepository struct {
	db       *sql.DB
	table    string
	tenantID string
}

// RateOption configures the repository.
type RateOption func(*RateRepository)

// WithRatesTable overrides the table name.
func WithRatesTable(table string) RateOption {
	return func(r *RateRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// WithRateTenant sets the tenant scope.
func WithRateTenant(tenantID string) RateOption {
	return func(r *RateRepository) {
		if tenantID != "" {
			r.tenantID = tenantID
		}
	}
}

// NewRateRepository constructs a rate repository.
func NewRateRepository(db *sql.DB, opts ...RateOption) *RateRepository {
	r := &RateRepository{db: db, table: defaultRatesTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListEffective returns the highest version per code and window effective at the instant.
func (r *RateRepository) ListEffective(ctx context.Context, productID string, at time.Time) ([]pricing.ComponentRate, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("rate repo: nil db")
	}
	if productID == "" {
		return nil, pricing.ErrEmptyProductID
	}
	if at.IsZero() {
		return nil, pricing.ErrInvalidEffectiveDate
	}

	query := fmt.Sprintf(`
SELECT code, name, category, product_id, window_id, rate, unit, effective_from, effective_to, version
FROM %s
WHERE tenant_id = $1 AND product_id = $2
	AND effective_from <= $3
	AND (effective_to IS NULL OR effective_to > $3)
ORDER BY code ASC, window_id ASC, version DESC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, r.tenantID, productID, at.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []pricing.ComponentRate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pricing.LatestPerWindow(all, at.UTC()), nil
}

// Publish appends the rates in one transaction.
func (r *RateRepository) Publish(ctx context.Context, rates []pricing.ComponentRate) error {
	if r == nil || r.db == nil {
		return errors.New("rate repo: nil db")
	}
	for _, rate := range rates {
		if err := rate.Validate(); err != nil {
			return fmt.Errorf("rate %s/%s: %w", rate.ProductID, rate.Code, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	tenant_id, code, name, category, product_id, window_id, rate, unit, effective_from, effective_to, version
)
SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE(MAX(version), 0) + 1
FROM %s
WHERE tenant_id = $1 AND code = $2 AND product_id = $5 AND window_id = $6`, r.table, r.table)

	for _, rate := range rates {
		var effectiveTo sql.NullTime
		if rate.EffectiveTo != nil {
			effectiveTo = sql.NullTime{Time: rate.EffectiveTo.UTC(), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, query,
			r.tenantID, rate.Code, rate.Name, string(rate.Category), rate.ProductID, rate.WindowID,
			rate.Rate, rate.Unit, rate.EffectiveFrom.UTC(), effectiveTo,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func scanRate(row rowScanner) (pricing.ComponentRate, error) {
	var rate pricing.ComponentRate
	var category string
	var name, unit sql.NullString
	var effectiveTo sql.NullTime
	if err := row.Scan(
		&rate.Code,
		&name,
		&category,
		&rate.ProductID,
		&rate.WindowID,
		&rate.Rate,
		&unit,
		&rate.EffectiveFrom,
		&effectiveTo,
		&rate.Version,
	); err != nil {
		return rate, err
	}
	rate.Name = name.String
	rate.Unit = unit.String
	rate.Category = pricing.Category(category)
	rate.EffectiveFrom = rate.EffectiveFrom.UTC()
	if effectiveTo.Valid {
		t := effectiveTo.Time.UTC()
		rate.EffectiveTo = &t
	}
	return rate, nil
}
