package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	dealers "omc-erp/internal/dealers/domain"
)

const (
	defaultSalesTable   = "station_sales"
	defaultChargesTable = "dealer_charges"
)

// LedgerReader reads sales volumes and dealer charges.
type LedgerReader struct {
	db           DBTX
	salesTable   string
	chargesTable string
}

// LedgerOption configures the reader.
type LedgerOption func(*LedgerReader)

// WithSalesTable overrides the sales table name.
func WithSalesTable(table string) LedgerOption {
	return func(r *LedgerReader) {
		if table != "" {
			r.salesTable = table
		}
	}
}

// WithChargesTable overrides the charges table name.
func WithChargesTable(table string) LedgerOption {
	return func(r *LedgerReader) {
		if table != "" {
			r.chargesTable = table
		}
	}
}

// NewLedgerReader constructs a reader.
func NewLedgerReader(db DBTX, opts ...LedgerOption) *LedgerReader {
	r := &LedgerReader{db: db, salesTable: defaultSalesTable, chargesTable: defaultChargesTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SalesByProduct sums litres per product sold in [from, to].
func (r *LedgerReader) SalesByProduct(ctx context.Context, stationID string, from, to time.Time) (map[string]decimal.Decimal, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger reader: nil db")
	}
	if stationID == "" {
		return nil, dealers.ErrEmptyStationID
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT product_id, COALESCE(SUM(litres), 0)
FROM %s
WHERE station_id = $1 AND sold_on BETWEEN $2 AND $3
GROUP BY product_id`, r.salesTable), stationID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var product string
		var litres decimal.Decimal
		if err := rows.Scan(&product, &litres); err != nil {
			return nil, err
		}
		out[product] = litres
	}
	return out, rows.Err()
}

// Charges returns chargebacks, shortages, penalties and adjustments booked in [from, to].
func (r *LedgerReader) Charges(ctx context.Context, stationID string, from, to time.Time) ([]dealers.Deduction, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger reader: nil db")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT kind, reference, amount
FROM %s
WHERE station_id = $1 AND charged_on BETWEEN $2 AND $3
ORDER BY charged_on, reference`, r.chargesTable), stationID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dealers.Deduction
	for rows.Next() {
		var d dealers.Deduction
		var kind string
		if err := rows.Scan(&kind, &d.Reference, &d.Amount); err != nil {
			return nil, err
		}
		d.Kind = dealers.DeductionKind(kind)
		out = append(out, d)
	}
	return out, rows.Err()
}
