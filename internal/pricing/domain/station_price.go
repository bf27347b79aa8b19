package pricing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"omc-erp/internal/apperrors"
)

// PriceStatus marks whether a persisted station price passed validation.
type PriceStatus string

const (
	PriceValid   PriceStatus = "valid"
	PriceInvalid PriceStatus = "invalid"
)

// BreakdownLine is one component of an ex-pump price.
type BreakdownLine struct {
	Code     string          `json:"code"`
	Category Category        `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// StationPrice is the computed ex-pump price for a station, product and window.
type StationPrice struct {
	StationID        string                `json:"station_id"`
	ProductID        string                `json:"product_id"`
	WindowID         string                `json:"window_id"`
	ExPumpPrice      decimal.Decimal       `json:"ex_pump_price"`
	Breakdown        []BreakdownLine       `json:"breakdown"`
	Status           PriceStatus           `json:"status"`
	ValidationErrors []apperrors.Violation `json:"validation_errors,omitempty"`
	Version          int                   `json:"version"`
	CalculatedAt     time.Time             `json:"calculated_at"`
}

// Key returns the (station, product) pair of the price.
func (p StationPrice) Key() PairKey {
	return PairKey{StationID: p.StationID, ProductID: p.ProductID}
}

// BreakdownSum adds every breakdown line.
func (p StationPrice) BreakdownSum() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range p.Breakdown {
		sum = sum.Add(line.Amount)
	}
	return sum
}

// Component returns the amount for a component code.
func (p StationPrice) Component(code string) (decimal.Decimal, bool) {
	for _, line := range p.Breakdown {
		if line.Code == code {
			return line.Amount, true
		}
	}
	return decimal.Zero, false
}

// BreakdownMap returns component code to amount.
func (p StationPrice) BreakdownMap() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(p.Breakdown))
	for _, line := range p.Breakdown {
		out[line.Code] = line.Amount
	}
	return out
}

// Clone returns a detached copy.
func (p StationPrice) Clone() StationPrice {
	p.Breakdown = append([]BreakdownLine(nil), p.Breakdown...)
	p.ValidationErrors = append([]apperrors.Violation(nil), p.ValidationErrors...)
	return p
}

// PairKey identifies a (station, product) pair inside a window.
type PairKey struct {
	StationID string `json:"station_id"`
	ProductID string `json:"product_id"`
}

func (k PairKey) String() string { return k.StationID + "/" + k.ProductID }

// SortPairs orders pairs by station then product.
func SortPairs(pairs []PairKey) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].StationID != pairs[j].StationID {
			return pairs[i].StationID < pairs[j].StationID
		}
		return pairs[i].ProductID < pairs[j].ProductID
	})
}
