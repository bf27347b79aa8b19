package uppf

import (
	"github.com/shopspring/decimal"
)

// Route is a depot to station delivery route with its equalisation distance.
type Route struct {
	ID          string          `json:"id" db:"id"`
	DepotID     string          `json:"depot_id" db:"depot_id"`
	StationID   string          `json:"station_id" db:"station_id"`
	KmThreshold decimal.Decimal `json:"km_threshold" db:"km_threshold"`
	PlannedKm   decimal.Decimal `json:"planned_km" db:"planned_km"`
	Tariff      decimal.Decimal `json:"tariff_per_litre_km" db:"tariff_per_litre_km"`
}

// TariffOr returns the route tariff, or fallback when the route carries none.
func (r *Route) TariffOr(fallback decimal.Decimal) decimal.Decimal {
	if r == nil || !r.Tariff.IsPositive() {
		return fallback
	}
	return r.Tariff
}

// KmBeyond is the distance travelled past the equalisation threshold, never negative.
func (r *Route) KmBeyond(kmActual decimal.Decimal) decimal.Decimal {
	beyond := kmActual
	if r != nil {
		beyond = kmActual.Sub(r.KmThreshold)
	}
	if beyond.IsNegative() {
		return decimal.Zero
	}
	return beyond
}

// ClaimAmount is kmBeyond x litres x tariff rounded to 2 dp.
func ClaimAmount(kmBeyond, litres, tariff decimal.Decimal) decimal.Decimal {
	return kmBeyond.Mul(litres).Mul(tariff).Round(MoneyPlaces)
}
