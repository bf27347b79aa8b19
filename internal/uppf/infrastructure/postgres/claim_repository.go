package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"omc-erp/internal/apperrors"
	uppf "omc-erp/internal/uppf/domain"
)

const defaultClaimsTable = "uppf_claims"

// ClaimRepository persists UPPF claims with optimistic versioning.
type ClaimRepository struct {
	db    *sqlx.DB
	table string
}

// ClaimOption configures the repository.
type ClaimOption func(*ClaimRepository)

// WithClaimsTable overrides the table name.
func WithClaimsTable(table string) ClaimOption {
	return func(r *ClaimRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewClaimRepository constructs a repository.
func NewClaimRepository(db *sqlx.DB, opts ...ClaimOption) *ClaimRepository {
	r := &ClaimRepository{db: db, table: defaultClaimsTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns a claim by id.
func (r *ClaimRepository) Get(ctx context.Context, id string) (*uppf.Claim, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("claim repo: nil db")
	}
	var row claimRow
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, claimColumns, r.table)
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("uppf claim", id)
		}
		return nil, fmt.Errorf("get uppf claim: %w", err)
	}
	return row.toDomain()
}

// ListByWindow returns the window's claims ordered by claim number. An empty
// status lists every claim.
func (r *ClaimRepository) ListByWindow(ctx context.Context, windowID string, status uppf.ClaimStatus) ([]*uppf.Claim, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("claim repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE window_id = $1 AND ($2 = '' OR status = $2)
ORDER BY claim_number`, claimColumns, r.table)
	var rows []claimRow
	if err := r.db.SelectContext(ctx, &rows, query, windowID, string(status)); err != nil {
		return nil, fmt.Errorf("list uppf claims: %w", err)
	}
	out := make([]*uppf.Claim, 0, len(rows))
	for _, row := range rows {
		c, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Create inserts a claim at version 1.
func (r *ClaimRepository) Create(ctx context.Context, c *uppf.Claim) error {
	if r == nil || r.db == nil {
		return errors.New("claim repo: nil db")
	}
	if c == nil {
		return uppf.ErrNilClaim
	}
	row, err := toClaimRow(c, 1)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES (:id, :tenant_id, :claim_number, :delivery_id, :route_id, :depot_id, :station_id, :window_id,
	:km_actual, :litres_moved, :km_beyond_equalisation, :tariff_per_litre_km, :claim_amount, :gps_trace,
	:evidence, :reconciliation, :validation, :status, :version, :submission_id, :approved_amount, :variance,
	:rejection_reason, :created_at, :updated_at, :history)
ON CONFLICT (claim_number) DO NOTHING`, r.table, claimColumns)
	res, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("insert uppf claim: %w", err)
	}
	if err := expectOne(res, "uppf claim", c.ClaimNumber); err != nil {
		return err
	}
	c.Version = 1
	return nil
}

// Update stores the claim when the row is still at expectedVersion.
func (r *ClaimRepository) Update(ctx context.Context, c *uppf.Claim, expectedVersion int) error {
	if r == nil || r.db == nil {
		return errors.New("claim repo: nil db")
	}
	if c == nil {
		return uppf.ErrNilClaim
	}
	return updateClaim(ctx, r.db, r.table, c, expectedVersion)
}

func updateClaim(ctx context.Context, db sqlx.ExtContext, table string, c *uppf.Claim, expectedVersion int) error {
	row, err := toClaimRow(c, expectedVersion+1)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	route_id = :route_id, depot_id = :depot_id, station_id = :station_id,
	km_actual = :km_actual, litres_moved = :litres_moved, km_beyond_equalisation = :km_beyond_equalisation,
	tariff_per_litre_km = :tariff_per_litre_km, claim_amount = :claim_amount, gps_trace = :gps_trace,
	evidence = :evidence, reconciliation = :reconciliation, validation = :validation, status = :status,
	version = :version, submission_id = :submission_id, approved_amount = :approved_amount,
	variance = :variance, rejection_reason = :rejection_reason, updated_at = :updated_at, history = :history
WHERE id = :id AND version = :expected_version`, table)
	res, err := sqlx.NamedExecContext(ctx, db, query, row)
	if err != nil {
		return fmt.Errorf("update uppf claim: %w", err)
	}
	if err := expectOne(res, "uppf claim", c.ClaimNumber); err != nil {
		return err
	}
	c.Version = expectedVersion + 1
	return nil
}

func expectOne(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.Conflict(entity, id)
	}
	return nil
}

// RouteReader reads delivery routes.
type RouteReader struct {
	db    *sqlx.DB
	table string
}

// NewRouteReader constructs a reader over the uppf_routes table.
func NewRouteReader(db *sqlx.DB) *RouteReader {
	return &RouteReader{db: db, table: "uppf_routes"}
}

// Route returns the route, nil when unknown.
func (r *RouteReader) Route(ctx context.Context, id string) (*uppf.Route, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("route reader: nil db")
	}
	var route uppf.Route
	query := fmt.Sprintf(`
SELECT id, depot_id, station_id, km_threshold, planned_km, tariff_per_litre_km
FROM %s
WHERE id = $1`, r.table)
	if err := r.db.GetContext(ctx, &route, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get uppf route: %w", err)
	}
	return &route, nil
}
