package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	masterdata "omc-erp/internal/masterdata/domain"
	mdmemory "omc-erp/internal/masterdata/infrastructure/memory"
	pricing "omc-erp/internal/pricing/domain"
	"omc-erp/internal/pricing/infrastructure/memory"
)

var (
	windowStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	fixedNow    = time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func testPolicy() pricing.Policy {
	p := pricing.DefaultPolicy()
	p.RequiredCodes = []string{pricing.CodeExRefinery, pricing.CodeOMCMargin, pricing.CodeDealer}
	return p
}

func rate(code string, category pricing.Category, product, amount string) pricing.ComponentRate {
	return pricing.ComponentRate{
		Code:          code,
		Category:      category,
		ProductID:     product,
		WindowID:      "2025-W05",
		Rate:          decimal.RequireFromString(amount),
		Unit:          "GHS/L",
		EffectiveFrom: windowStart,
	}
}

func exampleRates(product string) []pricing.ComponentRate {
	return []pricing.ComponentRate{
		rate("EXREF", pricing.CategoryExRefinery, product, "5.00"),
		rate("ESRL", pricing.CategoryTax, product, "1.20"),
		rate("ROAD", pricing.CategoryLevy, product, "0.30"),
		rate("OMC", pricing.CategoryOMCMargin, product, "0.50"),
		rate("DEAL", pricing.CategoryDealerMargin, product, "0.80"),
	}
}

type fixture struct {
	windows  *memory.WindowRepository
	rates    *memory.RateStore
	prices   *memory.StationPriceRepository
	registry *mdmemory.Registry
	window   *pricing.PricingWindow
}

func newFixture(t *testing.T, status pricing.WindowStatus) *fixture {
	t.Helper()
	f := &fixture{
		windows:  memory.NewWindowRepository(),
		rates:    memory.NewRateStore(exampleRates("PMS")...),
		prices:   memory.NewStationPriceRepository(),
		registry: mdmemory.NewRegistry("PMS"),
	}
	window, err := pricing.NewPricingWindow(windowStart, time.Time{}, "NPA/PBU/2025/05", windowStart)
	require.NoError(t, err)
	switch status {
	case pricing.WindowActive:
		require.NoError(t, window.Activate(windowStart))
	case pricing.WindowClosed:
		require.NoError(t, window.Activate(windowStart))
		require.NoError(t, window.Close(windowStart))
	}
	require.NoError(t, f.windows.Save(context.Background(), window))
	f.window = window
	return f
}

func (f *fixture) addStation(t *testing.T, id string, products ...string) {
	t.Helper()
	require.NoError(t, f.registry.Save(context.Background(), &masterdata.Station{
		ID: id, TenantID: "omc-gh", Name: "Station " + id, DealerID: "D-" + id, Active: true, Products: products,
	}))
}

func (f *fixture) calculator(t *testing.T, overrides OverrideSource) *Calculator {
	t.Helper()
	calc, err := NewCalculator(f.windows, f.rates, overrides, testPolicy(), fixedClock{fixedNow}, nil)
	require.NoError(t, err)
	return calc
}

type staticOverrides map[string]map[string]decimal.Decimal

func (s staticOverrides) Overrides(_ context.Context, stationID, _, _ string) (map[string]decimal.Decimal, error) {
	return s[stationID], nil
}

func newRegistry(t *testing.T, products ...string) *mdmemory.Registry {
	t.Helper()
	return mdmemory.NewRegistry(products...)
}
