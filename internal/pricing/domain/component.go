package pricing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Category groups component rates in the price build-up.
type Category string

const (
	CategoryExRefinery   Category = "ex_refinery"
	CategoryTax          Category = "tax"
	CategoryLevy         Category = "levy"
	CategoryMargin       Category = "margin"
	CategoryOMCMargin    Category = "omc_margin"
	CategoryDealerMargin Category = "dealer_margin"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryExRefinery, CategoryTax, CategoryLevy, CategoryMargin, CategoryOMCMargin, CategoryDealerMargin:
		return true
	}
	return false
}

// Component codes published in the NPA price build-up.
const (
	CodeExRefinery = "EXREF"
	CodeESRL       = "ESRL"
	CodePSRL       = "PSRL"
	CodeRoadFund   = "ROAD"
	CodeEDRL       = "EDRL"
	CodeBOST       = "BOST"
	CodeUPPF       = "UPPF"
	CodeMarking    = "MARK"
	CodePrimary    = "PRIM"
	CodeOMCMargin  = "OMC"
	CodeDealer     = "DEAL"
)

// Fuel products priced by the NPA template.
const (
	ProductPMS = "PMS"
	ProductAGO = "AGO"
	ProductLPG = "LPG"
	ProductDPK = "DPK"
	ProductRFO = "RFO"
)

// DefaultRequiredCodes are the components every price build-up must contain.
var DefaultRequiredCodes = []string{
	CodeExRefinery, CodeESRL, CodePSRL, CodeRoadFund, CodeBOST, CodeUPPF, CodeOMCMargin, CodeDealer,
}

// CategoryForCode returns the category implied by a well-known component code.
func CategoryForCode(code string) (Category, bool) {
	switch code {
	case CodeExRefinery:
		return CategoryExRefinery, true
	case CodeESRL, CodePSRL, CodeRoadFund, CodeEDRL:
		return CategoryLevy, true
	case CodeBOST, CodeUPPF, CodeMarking, CodePrimary:
		return CategoryMargin, true
	case CodeOMCMargin:
		return CategoryOMCMargin, true
	case CodeDealer:
		return CategoryDealerMargin, true
	}
	return "", false
}

// ComponentRate is a published regulatory component for one product.
// Rates are immutable; a republished rate carries a higher version.
type ComponentRate struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Category      Category        `json:"category"`
	ProductID     string          `json:"product_id"`
	WindowID      string          `json:"window_id"`
	Rate          decimal.Decimal `json:"rate"`
	Unit          string          `json:"unit"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	Version       int             `json:"version"`
}

// IsEffectiveAt reports whether the rate applies at t.
func (r ComponentRate) IsEffectiveAt(t time.Time) bool {
	if t.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !t.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// Validate checks rate invariants.
func (r ComponentRate) Validate() error {
	if r.Code == "" {
		return ErrEmptyComponentCode
	}
	if r.ProductID == "" {
		return ErrEmptyProductID
	}
	if !r.Category.Valid() {
		return ErrUnknownCategory
	}
	if r.Rate.IsNegative() {
		return ErrNegativeRate
	}
	if r.EffectiveFrom.IsZero() {
		return ErrInvalidEffectiveDate
	}
	if r.EffectiveTo != nil && !r.EffectiveTo.After(r.EffectiveFrom) {
		return ErrInvalidEffectiveDate
	}
	return nil
}

// LatestPerWindow keeps the highest version per code and window among rates
// effective at t, ordered by code then window.
func LatestPerWindow(rates []ComponentRate, at time.Time) []ComponentRate {
	type key struct{ code, window string }
	latest := make(map[key]ComponentRate, len(rates))
	for _, rate := range rates {
		if !rate.IsEffectiveAt(at) {
			continue
		}
		k := key{rate.Code, rate.WindowID}
		if current, ok := latest[k]; !ok || rate.Version > current.Version {
			latest[k] = rate
		}
	}
	out := make([]ComponentRate, 0, len(latest))
	for _, rate := range latest {
		out = append(out, rate)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].WindowID < out[j].WindowID
	})
	return out
}

// ResolveRates picks one rate per code for windowID among rates effective at t.
// A rate published for the window beats rates carried over from other windows;
// otherwise the latest EffectiveFrom wins. Version breaks ties within a window.
func ResolveRates(rates []ComponentRate, windowID string, at time.Time) map[string]ComponentRate {
	out := make(map[string]ComponentRate, len(rates))
	for _, rate := range rates {
		if !rate.IsEffectiveAt(at) {
			continue
		}
		current, ok := out[rate.Code]
		if !ok || supersedes(rate, current, windowID) {
			out[rate.Code] = rate
		}
	}
	return out
}

func supersedes(candidate, current ComponentRate, windowID string) bool {
	candidateOwn, currentOwn := candidate.WindowID == windowID, current.WindowID == windowID
	if candidateOwn != currentOwn {
		return candidateOwn
	}
	if !candidate.EffectiveFrom.Equal(current.EffectiveFrom) {
		return candidate.EffectiveFrom.After(current.EffectiveFrom)
	}
	if candidate.WindowID == current.WindowID {
		return candidate.Version > current.Version
	}
	return candidate.WindowID > current.WindowID
}
