package uppf

import (
	"github.com/shopspring/decimal"
)

// ReconciliationStatus is the outcome of the three-way volume check.
type ReconciliationStatus string

const (
	ReconciliationPending  ReconciliationStatus = "PENDING"
	ReconciliationMatched  ReconciliationStatus = "MATCHED"
	ReconciliationVariance ReconciliationStatus = "VARIANCE_DETECTED"
)

// Reconciliation compares depot, station and transporter volumes.
type Reconciliation struct {
	DepotLitres       decimal.Decimal      `json:"depot_litres"`
	StationLitres     decimal.Decimal      `json:"station_litres"`
	TransporterLitres decimal.Decimal      `json:"transporter_litres"`
	VariancePct       decimal.Decimal      `json:"variance_pct"`
	Status            ReconciliationStatus `json:"status"`
}

// ReconcileVolumes matches when both station and transporter volumes are within
// tolerance (a fraction, e.g. 0.02) of the depot volume. VariancePct is the
// larger of the two deviations in percent.
func ReconcileVolumes(depot, station, transporter, tolerance decimal.Decimal) (Reconciliation, error) {
	if !depot.IsPositive() {
		return Reconciliation{}, ErrInvalidVolumes
	}
	stationDev := depot.Sub(station).Abs().Div(depot)
	transporterDev := depot.Sub(transporter).Abs().Div(depot)
	worst := decimal.Max(stationDev, transporterDev)

	rec := Reconciliation{
		DepotLitres:       depot,
		StationLitres:     station,
		TransporterLitres: transporter,
		VariancePct:       worst.Mul(decimal.NewFromInt(100)).Round(2),
		Status:            ReconciliationMatched,
	}
	if worst.GreaterThan(tolerance) {
		rec.Status = ReconciliationVariance
	}
	return rec, nil
}
