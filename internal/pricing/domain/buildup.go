package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"omc-erp/internal/apperrors"
)

// AmountPlaces is the precision of each breakdown amount in GHS per litre.
const AmountPlaces = 4

// BuildUpInput carries the resolved rates for one price build-up.
type BuildUpInput struct {
	StationID     string
	ProductID     string
	WindowID      string
	Rates         map[string]ComponentRate
	Overrides     map[string]decimal.Decimal
	RequiredCodes []string
}

// BuildUp sums the components of an ex-pump price in a fixed order:
// ex-refinery, taxes and levies by code, regulatory margins by code, OMC margin, dealer margin.
func BuildUp(in BuildUpInput) (StationPrice, error) {
	for _, code := range in.RequiredCodes {
		if _, ok := in.Rates[code]; !ok {
			return StationPrice{}, apperrors.ComponentNotFound(code, in.ProductID, in.WindowID)
		}
	}

	lines := make([]BreakdownLine, 0, len(in.Rates))
	for code, rate := range in.Rates {
		amount := rate.Rate
		if override, ok := in.Overrides[code]; ok {
			amount = override
		}
		lines = append(lines, BreakdownLine{
			Code:     code,
			Category: rate.Category,
			Amount:   amount.Round(AmountPlaces),
		})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		ri, rj := categoryRank(lines[i].Category), categoryRank(lines[j].Category)
		if ri != rj {
			return ri < rj
		}
		return lines[i].Code < lines[j].Code
	})

	price := StationPrice{
		StationID: in.StationID,
		ProductID: in.ProductID,
		WindowID:  in.WindowID,
		Breakdown: lines,
	}
	price.ExPumpPrice = price.BreakdownSum()
	return price, nil
}

func categoryRank(c Category) int {
	switch c {
	case CategoryExRefinery:
		return 0
	case CategoryTax, CategoryLevy:
		return 1
	case CategoryMargin:
		return 2
	case CategoryOMCMargin:
		return 3
	case CategoryDealerMargin:
		return 4
	}
	return 5
}
