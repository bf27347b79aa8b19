package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	masterdata "omc-erp/internal/masterdata/domain"
)

const (
	defaultStationsTable = "stations"
	defaultProductsTable = "fuel_products"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// StationRepository is a Postgres implementation for stations and the station registry.
type StationRepository struct {
	db            DBTX
	table         string
	productsTable string
	tenantID      string
}

// NewStationRepository constructs a repository.
func NewStationRepository(db DBTX, opts ...StationOption) *StationRepository {
	repo := &StationRepository{db: db, table: defaultStationsTable, productsTable: defaultProductsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// StationOption configures the repository.
type StationOption func(*StationRepository)

// WithStationTable overrides the default table name.
func WithStationTable(table string) StationOption {
	return func(repo *StationRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// WithProductsTable overrides the fuel products table name.
func WithProductsTable(table string) StationOption {
	return func(repo *StationRepository) {
		if table != "" {
			repo.productsTable = table
		}
	}
}

// WithStationTenant restricts registry queries to one tenant.
func WithStationTenant(tenantID string) StationOption {
	return func(repo *StationRepository) {
		repo.tenantID = tenantID
	}
}

const stationColumns = `id, tenant_id, name, region, dealer_id, active, products, created_at, updated_at`

// Get loads a station by id.
func (r *StationRepository) Get(ctx context.Context, id string) (*masterdata.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	if id == "" {
		return nil, errors.New("station repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, stationColumns, r.table)

	station, err := scanStation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return station, nil
}

// ActiveStations returns active stations ordered by id.
func (r *StationRepository) ActiveStations(ctx context.Context) ([]masterdata.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE active = TRUE AND ($1 = '' OR tenant_id = $1)
ORDER BY id ASC`, stationColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query, r.tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []masterdata.Station
	for rows.Next() {
		station, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		stations = append(stations, *station)
	}
	return stations, rows.Err()
}

// FuelProducts returns the active product codes ordered by code.
func (r *StationRepository) FuelProducts(ctx context.Context) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	query := fmt.Sprintf(`SELECT code FROM %s WHERE active = TRUE ORDER BY code ASC`, r.productsTable)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		products = append(products, code)
	}
	return products, rows.Err()
}

// Save upserts a station.
func (r *StationRepository) Save(ctx context.Context, station *masterdata.Station) error {
	if r == nil || r.db == nil {
		return errors.New("station repo: nil db")
	}
	if station == nil {
		return errors.New("station repo: nil station")
	}
	if err := station.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, tenant_id, name, region, dealer_id, active, products)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id)
DO UPDATE SET
	tenant_id = EXCLUDED.tenant_id,
	name = EXCLUDED.name,
	region = EXCLUDED.region,
	dealer_id = EXCLUDED.dealer_id,
	active = EXCLUDED.active,
	products = EXCLUDED.products,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		station.ID,
		station.TenantID,
		station.Name,
		station.Region,
		station.DealerID,
		station.Active,
		pq.Array(station.Products),
	)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if station.CreatedAt.IsZero() {
		station.CreatedAt = now
	}
	station.UpdatedAt = now
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStation(row rowScanner) (*masterdata.Station, error) {
	var station masterdata.Station
	var region, dealerID sql.NullString
	if err := row.Scan(
		&station.ID,
		&station.TenantID,
		&station.Name,
		&region,
		&dealerID,
		&station.Active,
		pq.Array(&station.Products),
		&station.CreatedAt,
		&station.UpdatedAt,
	); err != nil {
		return nil, err
	}
	station.Region = region.String
	station.DealerID = dealerID.String
	station.CreatedAt = station.CreatedAt.UTC()
	station.UpdatedAt = station.UpdatedAt.UTC()
	return &station, nil
}
