package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"omc-erp/internal/apperrors"
)

// Price rule identifiers.
const (
	RulePricePositive     = "PRICE_POSITIVE"
	RuleBreakdownSum      = "BREAKDOWN_SUM"
	RuleRateCeiling       = "RATE_CEILING"
	RuleRequiredComponent = "REQUIRED_COMPONENT"
)

// Policy holds the regulator constraints applied to computed prices.
type Policy struct {
	RequiredCodes   []string
	SumEpsilon      decimal.Decimal
	Ceilings        map[string]decimal.Decimal
	ProductCeilings map[string]map[string]decimal.Decimal
	Overridable     []string
}

// DefaultPolicy returns the built-in pricing policy.
func DefaultPolicy() Policy {
	return Policy{
		RequiredCodes: append([]string(nil), DefaultRequiredCodes...),
		SumEpsilon:    decimal.New(1, -4),
		Ceilings:      map[string]decimal.Decimal{},
		Overridable:   []string{CodeOMCMargin, CodeDealer},
	}
}

// CeilingFor returns the ceiling for a component, product override first.
func (p Policy) CeilingFor(productID, code string) (decimal.Decimal, bool) {
	if byCode, ok := p.ProductCeilings[productID]; ok {
		if ceiling, ok := byCode[code]; ok {
			return ceiling, true
		}
	}
	ceiling, ok := p.Ceilings[code]
	return ceiling, ok
}

// IsOverridable reports whether a station may override the component.
func (p Policy) IsOverridable(code string) bool {
	for _, c := range p.Overridable {
		if c == code {
			return true
		}
	}
	return false
}

// ValidateStationPrice runs every price rule and returns all violations.
func ValidateStationPrice(price StationPrice, policy Policy) []apperrors.Violation {
	var violations []apperrors.Violation

	if !price.ExPumpPrice.IsPositive() {
		violations = append(violations, apperrors.Violation{
			Rule:     RulePricePositive,
			Field:    "ex_pump_price",
			Message:  fmt.Sprintf("ex-pump price %s must be positive", price.ExPumpPrice.String()),
			Severity: apperrors.SeverityFail,
		})
	}

	sum := price.BreakdownSum()
	if sum.Sub(price.ExPumpPrice).Abs().GreaterThan(policy.SumEpsilon) {
		violations = append(violations, apperrors.Violation{
			Rule:     RuleBreakdownSum,
			Field:    "breakdown",
			Message:  fmt.Sprintf("breakdown sums to %s, price is %s", sum.String(), price.ExPumpPrice.String()),
			Severity: apperrors.SeverityFail,
		})
	}

	for _, line := range price.Breakdown {
		ceiling, ok := policy.CeilingFor(price.ProductID, line.Code)
		if !ok {
			continue
		}
		if line.Amount.GreaterThan(ceiling) {
			violations = append(violations, apperrors.Violation{
				Rule:     RuleRateCeiling,
				Field:    line.Code,
				Message:  fmt.Sprintf("%s rate %s exceeds ceiling %s", line.Code, line.Amount.String(), ceiling.String()),
				Severity: apperrors.SeverityFail,
			})
		}
	}

	present := price.BreakdownMap()
	for _, code := range policy.RequiredCodes {
		if _, ok := present[code]; !ok {
			violations = append(violations, apperrors.Violation{
				Rule:     RuleRequiredComponent,
				Field:    code,
				Message:  fmt.Sprintf("required component %s missing", code),
				Severity: apperrors.SeverityFail,
			})
		}
	}
	return violations
}
