package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"omc-erp/internal/apperrors"
	"omc-erp/internal/observability/metrics"
	pricing "omc-erp/internal/pricing/domain"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// OverrideSource returns station-specific replacements for overridable components.
type OverrideSource interface {
	Overrides(ctx context.Context, stationID, productID, windowID string) (map[string]decimal.Decimal, error)
}

// Calculator computes ex-pump prices from the component rates effective at a window's start.
type Calculator struct {
	windows   pricing.WindowRepository
	rates     pricing.RateStore
	overrides OverrideSource
	policy    pricing.Policy
	clock     Clock
	logger    *zap.Logger
}

// NewCalculator constructs the calculator. overrides may be nil.
func NewCalculator(
	windows pricing.WindowRepository,
	rates pricing.RateStore,
	overrides OverrideSource,
	policy pricing.Policy,
	clock Clock,
	logger *zap.Logger,
) (*Calculator, error) {
	if windows == nil {
		return nil, errors.New("price calculator: nil window repository")
	}
	if rates == nil {
		return nil, errors.New("price calculator: nil rate store")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		windows:   windows,
		rates:     rates,
		overrides: overrides,
		policy:    policy,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Policy returns the pricing policy in use.
func (c *Calculator) Policy() pricing.Policy { return c.policy }

// CalculateExPumpPrice builds the price for one station and product. It has no side effects.
func (c *Calculator) CalculateExPumpPrice(ctx context.Context, stationID, productID, windowID string) (pricing.StationPrice, error) {
	started := time.Now()
	price, err := c.calculate(ctx, stationID, productID, windowID)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObservePriceCalculation(result, time.Since(started))
	return price, err
}

func (c *Calculator) calculate(ctx context.Context, stationID, productID, windowID string) (pricing.StationPrice, error) {
	window, err := c.checkInputs(ctx, stationID, productID, windowID)
	if err != nil {
		return pricing.StationPrice{}, err
	}
	return c.calculateIn(ctx, window, stationID, productID)
}

// buildPartial builds whatever components are published, leaving missing
// required codes for the validation rules to report.
func (c *Calculator) buildPartial(ctx context.Context, stationID, productID, windowID string) (pricing.StationPrice, error) {
	window, err := c.checkInputs(ctx, stationID, productID, windowID)
	if err != nil {
		return pricing.StationPrice{}, err
	}
	return c.build(ctx, window, stationID, productID, nil)
}

func (c *Calculator) checkInputs(ctx context.Context, stationID, productID, windowID string) (*pricing.PricingWindow, error) {
	if stationID == "" {
		return nil, pricing.ErrEmptyStationID
	}
	if productID == "" {
		return nil, pricing.ErrEmptyProductID
	}
	return c.computableWindow(ctx, windowID)
}

func (c *Calculator) computableWindow(ctx context.Context, windowID string) (*pricing.PricingWindow, error) {
	if windowID == "" {
		return nil, pricing.ErrEmptyWindowID
	}
	window, err := c.windows.Get(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if window == nil {
		return nil, apperrors.NotFound("pricing window", windowID)
	}
	if !window.IsComputable() {
		return nil, apperrors.InvalidWindow(windowID, string(window.Status))
	}
	return window, nil
}

func (c *Calculator) calculateIn(ctx context.Context, window *pricing.PricingWindow, stationID, productID string) (pricing.StationPrice, error) {
	return c.build(ctx, window, stationID, productID, c.policy.RequiredCodes)
}

func (c *Calculator) build(ctx context.Context, window *pricing.PricingWindow, stationID, productID string, required []string) (pricing.StationPrice, error) {
	at := window.EffectiveDate()
	rates, err := c.rates.ListEffective(ctx, productID, at)
	if err != nil {
		return pricing.StationPrice{}, err
	}

	var overrides map[string]decimal.Decimal
	if c.overrides != nil {
		raw, err := c.overrides.Overrides(ctx, stationID, productID, window.ID)
		if err != nil {
			return pricing.StationPrice{}, err
		}
		for code, amount := range raw {
			if !c.policy.IsOverridable(code) {
				c.logger.Debug("ignoring override for non-overridable component",
					zap.String("station_id", stationID), zap.String("code", code))
				continue
			}
			if overrides == nil {
				overrides = make(map[string]decimal.Decimal)
			}
			overrides[code] = amount
		}
	}

	price, err := pricing.BuildUp(pricing.BuildUpInput{
		StationID:     stationID,
		ProductID:     productID,
		WindowID:      window.ID,
		Rates:         pricing.ResolveRates(rates, window.ID, at),
		Overrides:     overrides,
		RequiredCodes: required,
	})
	if err != nil {
		return pricing.StationPrice{}, err
	}
	price.CalculatedAt = c.clock.Now().UTC()
	return price, nil
}
