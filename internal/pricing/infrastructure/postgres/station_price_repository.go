package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"omc-erp/internal/apperrors"
	pricing "omc-erp/internal/pricing/domain"
)

const defaultStationPricesTable = "station_prices"

// StationPriceRepository persists one row per (station, product, window).
type StationPriceRepository struct {
	db    DBTX
	table string
}

// StationPriceOption configures the repository.
type StationPriceOption func(*StationPriceRepository)

// WithStationPricesTable overrides the table name.
func WithStationPricesTable(table string) StationPriceOption {
	return func(r *StationPriceRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewStationPriceRepository constructs a repository.
func NewStationPriceRepository(db DBTX, opts ...StationPriceOption) *StationPriceRepository {
	r := &StationPriceRepository{db: db, table: defaultStationPricesTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert inserts the price or supersedes the existing row, bumping its version.
// The stored version is written back to price.
func (r *StationPriceRepository) Upsert(ctx context.Context, price *pricing.StationPrice) error {
	if r == nil || r.db == nil {
		return errors.New("station price repo: nil db")
	}
	if price == nil {
		return pricing.ErrNilStationPrice
	}
	breakdown, err := json.Marshal(price.Breakdown)
	if err != nil {
		return err
	}
	violations, err := json.Marshal(price.ValidationErrors)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	station_id, product_id, window_id, ex_pump_price, breakdown, status, validation_errors, version, calculated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)
ON CONFLICT (station_id, product_id, window_id)
DO UPDATE SET
	ex_pump_price = EXCLUDED.ex_pump_price,
	breakdown = EXCLUDED.breakdown,
	status = EXCLUDED.status,
	validation_errors = EXCLUDED.validation_errors,
	calculated_at = EXCLUDED.calculated_at,
	version = %s.version + 1
RETURNING version`, r.table, r.table)

	var version int
	if err := r.db.QueryRowContext(ctx, query,
		price.StationID,
		price.ProductID,
		price.WindowID,
		price.ExPumpPrice,
		breakdown,
		string(price.Status),
		violations,
		price.CalculatedAt.UTC(),
	).Scan(&version); err != nil {
		return err
	}
	price.Version = version
	return nil
}

const stationPriceColumns = `station_id, product_id, window_id, ex_pump_price, breakdown, status, validation_errors, version, calculated_at`

// Get loads one price.
func (r *StationPriceRepository) Get(ctx context.Context, stationID, productID, windowID string) (*pricing.StationPrice, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station price repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE station_id = $1 AND product_id = $2 AND window_id = $3
LIMIT 1`, stationPriceColumns, r.table)

	price, err := scanStationPrice(r.db.QueryRowContext(ctx, query, stationID, productID, windowID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("station price", stationID+"/"+productID+"/"+windowID)
	}
	return price, err
}

// ListByWindow returns every price in a window ordered by station and product.
func (r *StationPriceRepository) ListByWindow(ctx context.Context, windowID string) ([]pricing.StationPrice, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station price repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE window_id = $1
ORDER BY station_id ASC, product_id ASC`, stationPriceColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query, windowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []pricing.StationPrice
	for rows.Next() {
		price, err := scanStationPrice(rows)
		if err != nil {
			return nil, err
		}
		prices = append(prices, *price)
	}
	return prices, rows.Err()
}

func scanStationPrice(row rowScanner) (*pricing.StationPrice, error) {
	var p pricing.StationPrice
	var status string
	var breakdown, violations []byte
	if err := row.Scan(&p.StationID, &p.ProductID, &p.WindowID, &p.ExPumpPrice, &breakdown, &status,
		&violations, &p.Version, &p.CalculatedAt); err != nil {
		return nil, err
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &p.Breakdown); err != nil {
			return nil, err
		}
	}
	if len(violations) > 0 {
		if err := json.Unmarshal(violations, &p.ValidationErrors); err != nil {
			return nil, err
		}
	}
	p.Status = pricing.PriceStatus(status)
	p.CalculatedAt = p.CalculatedAt.UTC()
	return &p, nil
}
