package ratecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"omc-erp/internal/observability/metrics"
	pricing "omc-erp/internal/pricing/domain"
)

const defaultTTL = 15 * time.Minute

// Store is the read and publish surface the cache decorates.
type Store interface {
	pricing.RateStore
	pricing.RatePublisher
}

// CachedRateStore serves ListEffective from a cache and falls through to the
// underlying store. Cache failures are logged and counted, never returned.
type CachedRateStore struct {
	next   Store
	cache  RateCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedRateStore wraps next. A nil cache disables caching.
func NewCachedRateStore(next Store, cache RateCache, ttl time.Duration, logger *zap.Logger) (*CachedRateStore, error) {
	if next == nil {
		return nil, errors.New("rate cache: nil store")
	}
	if cache == nil {
		cache = NoopRateCache{}
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRateStore{next: next, cache: cache, ttl: ttl, logger: logger}, nil
}

// Key returns the cache key for a product lookup on the day of at.
func Key(productID string, at time.Time) string {
	return fmt.Sprintf("rates:%s:%d", productID, at.UTC().Unix()/86400)
}

// ListEffective implements pricing.RateStore.
func (s *CachedRateStore) ListEffective(ctx context.Context, productID string, at time.Time) ([]pricing.ComponentRate, error) {
	key := Key(productID, at)
	rates, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.IncRateCache(metrics.CacheError)
		s.logger.Warn("rate cache get failed", zap.String("key", key), zap.Error(err))
	case ok:
		metrics.IncRateCache(metrics.CacheHit)
		return rates, nil
	default:
		metrics.IncRateCache(metrics.CacheMiss)
	}

	rates, err = s.next.ListEffective(ctx, productID, at)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, rates, s.ttl); err != nil {
		metrics.IncRateCache(metrics.CacheError)
		s.logger.Warn("rate cache set failed", zap.String("key", key), zap.Error(err))
	}
	return rates, nil
}

// Publish writes through and drops cached sets for the affected products.
func (s *CachedRateStore) Publish(ctx context.Context, rates []pricing.ComponentRate) error {
	if err := s.next.Publish(ctx, rates); err != nil {
		return err
	}
	seen := make(map[string]struct{})
	for _, r := range rates {
		if _, ok := seen[r.ProductID]; ok {
			continue
		}
		seen[r.ProductID] = struct{}{}
		pattern := fmt.Sprintf("rates:%s:*", r.ProductID)
		if err := s.cache.DeleteByPattern(ctx, pattern); err != nil {
			metrics.IncRateCache(metrics.CacheError)
			s.logger.Warn("rate cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		}
	}
	return nil
}
