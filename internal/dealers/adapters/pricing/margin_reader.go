package pricing

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"omc-erp/internal/apperrors"
	pricingdomain "omc-erp/internal/pricing/domain"
)

// MarginRateReader reads the DEAL component from persisted station prices.
type MarginRateReader struct {
	prices pricingdomain.StationPriceRepository
	code   string
}

// NewMarginRateReader constructs a reader over the station price repository.
func NewMarginRateReader(prices pricingdomain.StationPriceRepository) (*MarginRateReader, error) {
	if prices == nil {
		return nil, errors.New("margin rate reader: nil station price repository")
	}
	return &MarginRateReader{prices: prices, code: pricingdomain.CodeDealer}, nil
}

// DealerMarginRate returns the dealer margin of a valid station price.
// Missing or invalid prices report ok=false so callers fall back to policy.
func (r *MarginRateReader) DealerMarginRate(ctx context.Context, stationID, productID, windowID string) (decimal.Decimal, bool, error) {
	price, err := r.prices.Get(ctx, stationID, productID, windowID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	if price == nil || price.Status != pricingdomain.PriceValid {
		return decimal.Zero, false, nil
	}
	rate, ok := price.Component(r.code)
	return rate, ok, nil
}
