package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omc-erp/internal/apperrors"
)

func rate(code string, category Category, value string) ComponentRate {
	return ComponentRate{
		Code:          code,
		Category:      category,
		ProductID:     ProductPMS,
		Rate:          decimal.RequireFromString(value),
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Version:       1,
	}
}

func exampleRates() map[string]ComponentRate {
	return map[string]ComponentRate{
		CodeExRefinery: rate(CodeExRefinery, CategoryExRefinery, "5.00"),
		CodeRoadFund:   rate(CodeRoadFund, CategoryLevy, "0.30"),
		CodeESRL:       rate(CodeESRL, CategoryTax, "1.20"),
		CodeDealer:     rate(CodeDealer, CategoryDealerMargin, "0.80"),
		CodeOMCMargin:  rate(CodeOMCMargin, CategoryOMCMargin, "0.50"),
	}
}

func TestBuildUpSumsComponentsInFixedOrder(t *testing.T) {
	price, err := BuildUp(BuildUpInput{
		StationID:     "S1",
		ProductID:     ProductPMS,
		WindowID:      "W1",
		Rates:         exampleRates(),
		RequiredCodes: []string{CodeExRefinery, CodeOMCMargin, CodeDealer},
	})
	require.NoError(t, err)

	assert.True(t, price.ExPumpPrice.Equal(decimal.RequireFromString("7.80")), "got %s", price.ExPumpPrice)
	assert.True(t, price.BreakdownSum().Equal(price.ExPumpPrice))

	var codes []string
	for _, line := range price.Breakdown {
		codes = append(codes, line.Code)
	}
	assert.Equal(t, []string{CodeExRefinery, CodeESRL, CodeRoadFund, CodeOMCMargin, CodeDealer}, codes)
}

func TestBuildUpIsReproducible(t *testing.T) {
	in := BuildUpInput{StationID: "S1", ProductID: ProductPMS, WindowID: "W1", Rates: exampleRates()}
	first, err := BuildUp(in)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := BuildUp(in)
		require.NoError(t, err)
		assert.Equal(t, first.Breakdown, again.Breakdown)
	}
}

func TestBuildUpMissingMandatoryComponent(t *testing.T) {
	rates := exampleRates()
	delete(rates, CodeDealer)
	_, err := BuildUp(BuildUpInput{
		StationID:     "S1",
		ProductID:     ProductPMS,
		WindowID:      "W1",
		Rates:         rates,
		RequiredCodes: []string{CodeExRefinery, CodeDealer},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrComponentNotFound))
	assert.Contains(t, err.Error(), CodeDealer)
}

func TestBuildUpAppliesOverrideWithoutReordering(t *testing.T) {
	price, err := BuildUp(BuildUpInput{
		StationID: "S1",
		ProductID: ProductPMS,
		WindowID:  "W1",
		Rates:     exampleRates(),
		Overrides: map[string]decimal.Decimal{CodeOMCMargin: decimal.RequireFromString("0.45")},
	})
	require.NoError(t, err)
	amount, ok := price.Component(CodeOMCMargin)
	require.True(t, ok)
	assert.Equal(t, "0.45", amount.StringFixed(2))
	assert.Equal(t, "7.75", price.ExPumpPrice.StringFixed(2))
	assert.Equal(t, CodeOMCMargin, price.Breakdown[3].Code)
}

func TestBuildUpRoundsEachComponent(t *testing.T) {
	rates := exampleRates()
	rates[CodeESRL] = rate(CodeESRL, CategoryTax, "1.200049")
	price, err := BuildUp(BuildUpInput{StationID: "S1", ProductID: ProductPMS, WindowID: "W1", Rates: rates})
	require.NoError(t, err)
	amount, _ := price.Component(CodeESRL)
	assert.Equal(t, "1.2", amount.String())
	assert.True(t, price.BreakdownSum().Equal(price.ExPumpPrice))
}

func TestLatestPerWindowKeepsHighestVersionPerWindow(t *testing.T) {
	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	old := rate(CodeOMCMargin, CategoryOMCMargin, "0.50")
	newer := rate(CodeOMCMargin, CategoryOMCMargin, "0.55")
	newer.Version = 2
	other := rate(CodeOMCMargin, CategoryOMCMargin, "0.60")
	other.WindowID = "W2"
	expiredAt := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	expired := rate(CodeDealer, CategoryDealerMargin, "0.80")
	expired.EffectiveTo = &expiredAt

	got := LatestPerWindow([]ComponentRate{other, old, newer, expired}, at)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Version)
	assert.Equal(t, "W2", got[1].WindowID)
}

func TestResolveRatesPrefersTheWindowsOwnRate(t *testing.T) {
	prior := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	carried := rate(CodeExRefinery, CategoryExRefinery, "5.10")
	carried.WindowID, carried.EffectiveFrom, carried.Version = "2025-W04", prior, 2
	own := rate(CodeExRefinery, CategoryExRefinery, "6.00")
	own.WindowID, own.EffectiveFrom, own.Version = "2025-W05", prior, 1
	omc := rate(CodeOMCMargin, CategoryOMCMargin, "0.50")
	omc.WindowID, omc.EffectiveFrom = "2025-W04", prior

	got := ResolveRates([]ComponentRate{carried, own, omc}, "2025-W05", at)
	assert.Equal(t, "6", got[CodeExRefinery].Rate.String())
	assert.Equal(t, "0.5", got[CodeOMCMargin].Rate.String(), "codes not republished carry over")
}

func TestResolveRatesCarriesOverLatestEffectiveFrom(t *testing.T) {
	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	early := rate(CodeDealer, CategoryDealerMargin, "0.80")
	early.WindowID, early.EffectiveFrom, early.Version = "2025-W01", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 3
	later := rate(CodeDealer, CategoryDealerMargin, "0.85")
	later.WindowID, later.EffectiveFrom = "2025-W03", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	bumped := later
	bumped.Rate, bumped.Version = decimal.RequireFromString("0.86"), 2

	got := ResolveRates([]ComponentRate{early, later, bumped}, "2025-W05", at)
	assert.Equal(t, "0.86", got[CodeDealer].Rate.String())
}
