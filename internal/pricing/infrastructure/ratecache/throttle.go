package ratecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	pricing "omc-erp/internal/pricing/domain"
)

// ThrottledRateStore limits lookups against the underlying store.
// Waiting honours the caller's deadline, so a throttled lookup can time out.
type ThrottledRateStore struct {
	next    pricing.RateStore
	limiter *rate.Limiter
}

// NewThrottledRateStore wraps next with a token bucket. rps <= 0 disables throttling.
func NewThrottledRateStore(next pricing.RateStore, rps float64, burst int) (*ThrottledRateStore, error) {
	if next == nil {
		return nil, errors.New("rate throttle: nil store")
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &ThrottledRateStore{next: next, limiter: rate.NewLimiter(limit, burst)}, nil
}

// ListEffective implements pricing.RateStore.
func (s *ThrottledRateStore) ListEffective(ctx context.Context, productID string, at time.Time) ([]pricing.ComponentRate, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("rate throttle: %v: %w", err, context.DeadlineExceeded)
	}
	return s.next.ListEffective(ctx, productID, at)
}
