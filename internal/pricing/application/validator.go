package application

import (
	"context"
	"errors"

	"omc-erp/internal/apperrors"
	"omc-erp/internal/observability/metrics"
	pricing "omc-erp/internal/pricing/domain"
)

// ValidationResult lists every rule violation of a recomputed price.
type ValidationResult struct {
	StationID string
	ProductID string
	WindowID  string
	IsValid   bool
	Errors    []apperrors.Violation
	Price     pricing.StationPrice
}

// PriceValidator recomputes a price and checks it against the regulator rules.
type PriceValidator struct {
	calc *Calculator
}

// NewPriceValidator constructs the validator.
func NewPriceValidator(calc *Calculator) (*PriceValidator, error) {
	if calc == nil {
		return nil, errors.New("price validator: nil calculator")
	}
	return &PriceValidator{calc: calc}, nil
}

// ValidatePriceCalculation returns all violations at once, missing required
// components included. Window and lookup failures are returned as errors.
func (v *PriceValidator) ValidatePriceCalculation(ctx context.Context, stationID, productID, windowID string) (ValidationResult, error) {
	price, err := v.calc.buildPartial(ctx, stationID, productID, windowID)
	if err != nil {
		return ValidationResult{}, err
	}
	violations := pricing.ValidateStationPrice(price, v.calc.policy)
	result := ValidationResult{
		StationID: stationID,
		ProductID: productID,
		WindowID:  windowID,
		IsValid:   len(violations) == 0,
		Errors:    violations,
		Price:     price,
	}
	if result.IsValid {
		metrics.IncPriceValidation(metrics.ResultSuccess)
	} else {
		metrics.IncPriceValidation(metrics.ResultInvalid)
	}
	return result, nil
}
