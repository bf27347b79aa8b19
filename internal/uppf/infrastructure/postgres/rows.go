package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"omc-erp/internal/apperrors"
	uppf "omc-erp/internal/uppf/domain"
)

const claimColumns = `id, tenant_id, claim_number, delivery_id, route_id, depot_id, station_id, window_id,
	km_actual, litres_moved, km_beyond_equalisation, tariff_per_litre_km, claim_amount, gps_trace,
	evidence, reconciliation, validation, status, version, submission_id, approved_amount, variance,
	rejection_reason, created_at, updated_at, history`

type claimRow struct {
	ID              string          `db:"id"`
	TenantID        string          `db:"tenant_id"`
	ClaimNumber     string          `db:"claim_number"`
	DeliveryID      string          `db:"delivery_id"`
	RouteID         string          `db:"route_id"`
	DepotID         string          `db:"depot_id"`
	StationID       string          `db:"station_id"`
	WindowID        string          `db:"window_id"`
	KmActual        decimal.Decimal `db:"km_actual"`
	LitresMoved     decimal.Decimal `db:"litres_moved"`
	KmBeyond        decimal.Decimal `db:"km_beyond_equalisation"`
	Tariff          decimal.Decimal `db:"tariff_per_litre_km"`
	ClaimAmount     decimal.Decimal `db:"claim_amount"`
	GPSTrace        []byte          `db:"gps_trace"`
	Evidence        pq.StringArray  `db:"evidence"`
	Reconciliation  []byte          `db:"reconciliation"`
	Validation      []byte          `db:"validation"`
	Status          string          `db:"status"`
	Version         int             `db:"version"`
	SubmissionID    sql.NullString  `db:"submission_id"`
	ApprovedAmount  decimal.Decimal `db:"approved_amount"`
	Variance        decimal.Decimal `db:"variance"`
	RejectionReason string          `db:"rejection_reason"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
	History         []byte          `db:"history"`
	ExpectedVersion int             `db:"expected_version"`
}

func toClaimRow(c *uppf.Claim, version int) (claimRow, error) {
	row := claimRow{
		ID:              c.ID,
		TenantID:        c.TenantID,
		ClaimNumber:     c.ClaimNumber,
		DeliveryID:      c.DeliveryID,
		RouteID:         c.RouteID,
		DepotID:         c.DepotID,
		StationID:       c.StationID,
		WindowID:        c.WindowID,
		KmActual:        c.KmActual,
		LitresMoved:     c.LitresMoved,
		KmBeyond:        c.KmBeyondEqualisation,
		Tariff:          c.Tariff,
		ClaimAmount:     c.ClaimAmount,
		Evidence:        pq.StringArray(c.Evidence),
		Status:          string(c.Status),
		Version:         version,
		SubmissionID:    sql.NullString{String: c.SubmissionID, Valid: c.SubmissionID != ""},
		ApprovedAmount:  c.ApprovedAmount,
		Variance:        c.Variance,
		RejectionReason: c.RejectionReason,
		CreatedAt:       c.CreatedAt.UTC(),
		UpdatedAt:       c.UpdatedAt.UTC(),
		ExpectedVersion: version - 1,
	}
	if row.Evidence == nil {
		row.Evidence = pq.StringArray{}
	}
	var err error
	if row.GPSTrace, err = json.Marshal(c.GPSTrace); err != nil {
		return row, err
	}
	if row.Reconciliation, err = json.Marshal(c.Reconciliation); err != nil {
		return row, err
	}
	if c.Validation != nil {
		if row.Validation, err = json.Marshal(c.Validation); err != nil {
			return row, err
		}
	}
	if row.History, err = json.Marshal(c.History); err != nil {
		return row, err
	}
	return row, nil
}

func (row claimRow) toDomain() (*uppf.Claim, error) {
	c := &uppf.Claim{
		ID:                   row.ID,
		TenantID:             row.TenantID,
		ClaimNumber:          row.ClaimNumber,
		DeliveryID:           row.DeliveryID,
		RouteID:              row.RouteID,
		DepotID:              row.DepotID,
		StationID:            row.StationID,
		WindowID:             row.WindowID,
		KmActual:             row.KmActual,
		LitresMoved:          row.LitresMoved,
		KmBeyondEqualisation: row.KmBeyond,
		Tariff:               row.Tariff,
		ClaimAmount:          row.ClaimAmount,
		Evidence:             []string(row.Evidence),
		Status:               uppf.ClaimStatus(row.Status),
		Version:              row.Version,
		SubmissionID:         row.SubmissionID.String,
		ApprovedAmount:       row.ApprovedAmount,
		Variance:             row.Variance,
		RejectionReason:      row.RejectionReason,
		CreatedAt:            row.CreatedAt.UTC(),
		UpdatedAt:            row.UpdatedAt.UTC(),
	}
	if err := unmarshalIfSet(row.GPSTrace, &c.GPSTrace); err != nil {
		return nil, err
	}
	if err := unmarshalIfSet(row.Reconciliation, &c.Reconciliation); err != nil {
		return nil, err
	}
	if len(row.Validation) > 0 && string(row.Validation) != "null" {
		c.Validation = &uppf.ValidationOutcome{}
		if err := json.Unmarshal(row.Validation, c.Validation); err != nil {
			return nil, err
		}
	}
	if err := unmarshalIfSet(row.History, &c.History); err != nil {
		return nil, err
	}
	return c, nil
}

const submissionColumns = `id, tenant_id, reference, window_id, claim_ids, total_amount, total_litres, status,
	validation_results, documents, decisions, npa_reference, version, created_at, submitted_at,
	acknowledged_at, responded_at, history`

type submissionRow struct {
	ID                string          `db:"id"`
	TenantID          string          `db:"tenant_id"`
	Reference         string          `db:"reference"`
	WindowID          string          `db:"window_id"`
	ClaimIDs          pq.StringArray  `db:"claim_ids"`
	TotalAmount       decimal.Decimal `db:"total_amount"`
	TotalLitres       decimal.Decimal `db:"total_litres"`
	Status            string          `db:"status"`
	ValidationResults []byte          `db:"validation_results"`
	Documents         []byte          `db:"documents"`
	Decisions         []byte          `db:"decisions"`
	NPAReference      string          `db:"npa_reference"`
	Version           int             `db:"version"`
	CreatedAt         time.Time       `db:"created_at"`
	SubmittedAt       sql.NullTime    `db:"submitted_at"`
	AcknowledgedAt    sql.NullTime    `db:"acknowledged_at"`
	RespondedAt       sql.NullTime    `db:"responded_at"`
	History           []byte          `db:"history"`
	ExpectedVersion   int             `db:"expected_version"`
}

func toSubmissionRow(s *uppf.Submission, version int) (submissionRow, error) {
	row := submissionRow{
		ID:              s.ID,
		TenantID:        s.TenantID,
		Reference:       s.Reference,
		WindowID:        s.WindowID,
		ClaimIDs:        pq.StringArray(s.ClaimIDs),
		TotalAmount:     s.TotalAmount,
		TotalLitres:     s.TotalLitres,
		Status:          string(s.Status),
		NPAReference:    s.NPAReference,
		Version:         version,
		CreatedAt:       s.CreatedAt.UTC(),
		SubmittedAt:     nullTime(s.SubmittedAt),
		AcknowledgedAt:  nullTime(s.AcknowledgedAt),
		RespondedAt:     nullTime(s.RespondedAt),
		ExpectedVersion: version - 1,
	}
	if row.ClaimIDs == nil {
		row.ClaimIDs = pq.StringArray{}
	}
	var err error
	if row.ValidationResults, err = marshalList(s.ValidationResults); err != nil {
		return row, err
	}
	if row.Documents, err = marshalList(s.Documents); err != nil {
		return row, err
	}
	if row.Decisions, err = marshalList(s.Decisions); err != nil {
		return row, err
	}
	if row.History, err = json.Marshal(s.History); err != nil {
		return row, err
	}
	return row, nil
}

func (row submissionRow) toDomain() (*uppf.Submission, error) {
	s := &uppf.Submission{
		ID:             row.ID,
		TenantID:       row.TenantID,
		Reference:      row.Reference,
		WindowID:       row.WindowID,
		ClaimIDs:       []string(row.ClaimIDs),
		TotalAmount:    row.TotalAmount,
		TotalLitres:    row.TotalLitres,
		Status:         uppf.SubmissionStatus(row.Status),
		NPAReference:   row.NPAReference,
		Version:        row.Version,
		CreatedAt:      row.CreatedAt.UTC(),
		SubmittedAt:    fromNullTime(row.SubmittedAt),
		AcknowledgedAt: fromNullTime(row.AcknowledgedAt),
		RespondedAt:    fromNullTime(row.RespondedAt),
	}
	var violations []apperrors.Violation
	if err := unmarshalIfSet(row.ValidationResults, &violations); err != nil {
		return nil, err
	}
	s.ValidationResults = violations
	if err := unmarshalIfSet(row.Documents, &s.Documents); err != nil {
		return nil, err
	}
	if err := unmarshalIfSet(row.Decisions, &s.Decisions); err != nil {
		return nil, err
	}
	if err := unmarshalIfSet(row.History, &s.History); err != nil {
		return nil, err
	}
	return s, nil
}

func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func unmarshalIfSet(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
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
