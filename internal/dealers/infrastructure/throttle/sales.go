package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	dealers "omc-erp/internal/dealers/domain"
)

// SalesReader limits the rate of sales volume lookups against the sales system.
type SalesReader struct {
	next    dealers.SalesVolumeReader
	limiter *rate.Limiter
}

// NewSalesReader wraps next with a token bucket of rps and burst.
func NewSalesReader(next dealers.SalesVolumeReader, rps float64, burst int) (*SalesReader, error) {
	if next == nil {
		return nil, errors.New("throttled sales reader: nil reader")
	}
	if rps <= 0 {
		return nil, errors.New("throttled sales reader: rps must be positive")
	}
	if burst < 1 {
		burst = 1
	}
	return &SalesReader{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}, nil
}

// SalesByProduct waits for a token and delegates.
func (r *SalesReader) SalesByProduct(ctx context.Context, stationID string, from, to time.Time) (map[string]decimal.Decimal, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("sales lookup throttled: %w", context.DeadlineExceeded)
	}
	return r.next.SalesByProduct(ctx, stationID, from, to)
}
