package application

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omc-erp/internal/apperrors"
	pricing "omc-erp/internal/pricing/domain"
)

func TestCalculateExPumpPriceExample(t *testing.T) {
	f := newFixture(t, pricing.WindowActive)
	calc := f.calculator(t, nil)

	price, err := calc.CalculateExPumpPrice(context.Background(), "S1", "PMS", f.window.ID)
	require.NoError(t, err)
	assert.Equal(t, "7.8", price.ExPumpPrice.String())
	assert.True(t, price.BreakdownSum().Equal(price.ExPumpPrice))

	var codes []string
	for _, line := range price.Breakdown {
		codes = append(codes, line.Code)
	}
	assert.Equal(t, []string{"EXREF", "ESRL", "ROAD", "OMC", "DEAL"}, codes)
	assert.Equal(t, fixedNow, price.CalculatedAt)
}

func TestCalculateIsReproducible(t *testing.T) {
	f := newFixture(t, pricing.WindowClosed)
	calc := f.calculator(t, nil)

	a, err := calc.CalculateExPumpPrice(context.Background(), "S1", "PMS", f.window.ID)
	require.NoError(t, err)
	b, err := calc.CalculateExPumpPrice(context.Background(), "S1", "PMS", f.window.ID)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCalculateRejectsDraftWindow(t *testing.T) {
	f := newFixture(t, pricing.WindowDraft)
	_, err := f.calculator(t, nil).CalculateExPumpPrice(context.Background(), "S1", "PMS", f.window.ID)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidWindow))
}

func TestCalculateUnknownWindow(t *testing.T) {
	f := newFixture(t, pricing.WindowActive)
	_, err := f.calculator(t, nil).CalculateExPumpPrice(context.Background(), "S1", "PMS", "2031-W01")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestCalculateMissingComponent(t *testing.T) {
	f := newFixture(t, pricing.WindowActive)
	_, err := f.calculator(t, nil).CalculateExPumpPrice(context.Background(), "S1", "AGO", f.window.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrComponentNotFound))
	assert.Contains(t, err.Error(), "EXREF")
}

func TestCalculateAppliesOnlyOverridableOverrides(t *testing.T) {
	f := newFixture(t, pricing.WindowActive)
	calc := f.calculator(t, staticOverrides{
		"S1": {
			"OMC":   decimal.RequireFromString("0.45"),
			"EXREF": decimal.RequireFromString("1.00"),
		},
	})

	price, err := calc.CalculateExPumpPrice(context.Background(), "S1", "PMS", f.window.ID)
	require.NoError(t, err)
	assert.Equal(t, "7.75", price.ExPumpPrice.String())
	exref, _ := price.Component("EXREF")
	assert.Equal(t, "5", exref.String())
	assert.Equal(t, "OMC", price.Breakdown[3].Code)

	other, err := calc.CalculateExPumpPrice(context.Background(), "S2", "PMS", f.window.ID)
	require.NoError(t, err)
	assert.Equal(t, "7.8", other.ExPumpPrice.String())
}

func TestValidatePriceCalculationCollectsAllViolations(t *testing.T) {
	f := newFixture(t, pricing.WindowActive)
	policy := testPolicy()
	policy.Ceilings = map[string]decimal.Decimal{
		"OMC":  decimal.RequireFromString("0.40"),
		"DEAL": decimal.RequireFromString("0.70"),
	}
	calc, err := NewCalculator(f.windows, f.rates, nil, policy, fixedClock{fixedNow}, nil)
	require.NoError(t, err)
	validator, err := NewPriceValidator(calc)
	require.NoError(t, err)

	result, err := validator.ValidatePriceCalculation(context.Background(), "S1", "PMS", f.window.ID)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, pricing.RuleRateCeiling, result.Errors[0].Rule)
	assert.Equal(t, "OMC", result.Errors[0].Field)
	assert.Equal(t, "DEAL", result.Errors[1].Field)
}

func TestValidatePriceCalculationReportsMissingComponentWithOtherViolations(t *testing.T) {
	f := newFixture(t, pricing.WindowActive)
	ctx := context.Background()
	require.NoError(t, f.rates.Publish(ctx, []pricing.ComponentRate{
		rate("EXREF", pricing.CategoryExRefinery, "AGO", "5.50"),
		rate("OMC", pricing.CategoryOMCMargin, "AGO", "0.50"),
	}))
	policy := testPolicy()
	policy.Ceilings = map[string]decimal.Decimal{"OMC": decimal.RequireFromString("0.40")}
	calc, err := NewCalculator(f.windows, f.rates, nil, policy, fixedClock{fixedNow}, nil)
	require.NoError(t, err)
	validator, err := NewPriceValidator(calc)
	require.NoError(t, err)

	result, err := validator.ValidatePriceCalculation(ctx, "S1", "AGO", f.window.ID)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, pricing.RuleRateCeiling, result.Errors[0].Rule)
	assert.Equal(t, pricing.RuleRequiredComponent, result.Errors[1].Rule)
	assert.Equal(t, "DEAL", result.Errors[1].Field)

	_, err = calc.CalculateExPumpPrice(ctx, "S1", "AGO", f.window.ID)
	assert.True(t, errors.Is(err, apperrors.ErrComponentNotFound))
}

func TestValidatePriceCalculationValid(t *testing.T) {
	f := newFixture(t, pricing.WindowActive)
	validator, err := NewPriceValidator(f.calculator(t, nil))
	require.NoError(t, err)

	result, err := validator.ValidatePriceCalculation(context.Background(), "S1", "PMS", f.window.ID)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
}

func TestValidatePriceCalculationReturnsCalculatorError(t *testing.T) {
	f := newFixture(t, pricing.WindowDraft)
	validator, err := NewPriceValidator(f.calculator(t, nil))
	require.NoError(t, err)
	_, err = validator.ValidatePriceCalculation(context.Background(), "S1", "PMS", f.window.ID)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidWindow))
}

func TestCalculateIgnoresRepublishedRateOfPriorWindow(t *testing.T) {
	f := newFixture(t, pricing.WindowActive)
	ctx := context.Background()

	prior := rate("EXREF", pricing.CategoryExRefinery, "PMS", "5.00")
	prior.WindowID = "2025-W04"
	prior.EffectiveFrom = windowStart.AddDate(0, 0, -14)
	require.NoError(t, f.rates.Publish(ctx, []pricing.ComponentRate{prior}))
	prior.Rate = decimal.RequireFromString("5.10")
	require.NoError(t, f.rates.Publish(ctx, []pricing.ComponentRate{prior}))

	own := rate("EXREF", pricing.CategoryExRefinery, "PMS", "6.00")
	own.WindowID = f.window.ID
	require.NoError(t, f.rates.Publish(ctx, []pricing.ComponentRate{own}))

	price, err := f.calculator(t, nil).CalculateExPumpPrice(ctx, "S1", "PMS", f.window.ID)
	require.NoError(t, err)
	exref, ok := price.Component("EXREF")
	require.True(t, ok)
	assert.Equal(t, "6", exref.String())
	assert.Equal(t, "8.8", price.ExPumpPrice.String())
}
