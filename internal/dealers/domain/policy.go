package dealers

import "github.com/shopspring/decimal"

// Policy holds the settlement parameters.
type Policy struct {
	DefaultMargins     map[string]decimal.Decimal
	WithholdingTaxRate decimal.Decimal
	ApprovalThreshold  decimal.Decimal
}

// DefaultPolicy returns the built-in settlement policy.
func DefaultPolicy() Policy {
	return Policy{
		DefaultMargins: map[string]decimal.Decimal{
			"PMS": decimal.RequireFromString("0.35"),
			"AGO": decimal.RequireFromString("0.35"),
			"LPG": decimal.RequireFromString("0.30"),
			"DPK": decimal.RequireFromString("0.25"),
			"RFO": decimal.RequireFromString("0.20"),
		},
		WithholdingTaxRate: decimal.RequireFromString("0.075"),
		ApprovalThreshold:  decimal.NewFromInt(10000),
	}
}

// DefaultMargin returns the fallback dealer margin rate for a product.
func (p Policy) DefaultMargin(productID string) decimal.Decimal {
	if rate, ok := p.DefaultMargins[productID]; ok {
		return rate
	}
	return decimal.Zero
}
