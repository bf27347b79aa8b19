package ratecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pricing "omc-erp/internal/pricing/domain"
)

type countingStore struct {
	mu        sync.Mutex
	lookups   int
	published int
	rates     []pricing.ComponentRate
}

func (s *countingStore) ListEffective(context.Context, string, time.Time) ([]pricing.ComponentRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	return s.rates, nil
}

func (s *countingStore) Publish(_ context.Context, rates []pricing.ComponentRate) error {
	s.published += len(rates)
	return nil
}

type fakeCache struct {
	entries  map[string][]pricing.ComponentRate
	getErr   error
	setErr   error
	patterns []string
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string][]pricing.ComponentRate{}} }

func (c *fakeCache) Get(_ context.Context, key string) ([]pricing.ComponentRate, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	rates, ok := c.entries[key]
	return rates, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, rates []pricing.ComponentRate, _ time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[key] = rates
	return nil
}

func (c *fakeCache) DeleteByPattern(_ context.Context, pattern string) error {
	c.patterns = append(c.patterns, pattern)
	for k := range c.entries {
		delete(c.entries, k)
	}
	return nil
}

var at = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func sampleRates() []pricing.ComponentRate {
	return []pricing.ComponentRate{{Code: "EXREF", Category: pricing.CategoryExRefinery, ProductID: "PMS",
		Rate: decimal.RequireFromString("5.00"), EffectiveFrom: at, Version: 1}}
}

func TestCachedStoreMissThenHit(t *testing.T) {
	next := &countingStore{rates: sampleRates()}
	cache := newFakeCache()
	store, err := NewCachedRateStore(next, cache, time.Minute, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rates, err := store.ListEffective(context.Background(), "PMS", at)
		require.NoError(t, err)
		require.Len(t, rates, 1)
	}
	assert.Equal(t, 1, next.lookups)
	assert.Contains(t, cache.entries, Key("PMS", at))
}

func TestCachedStoreFallsThroughOnCacheError(t *testing.T) {
	next := &countingStore{rates: sampleRates()}
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")
	store, err := NewCachedRateStore(next, cache, time.Minute, nil)
	require.NoError(t, err)

	rates, err := store.ListEffective(context.Background(), "PMS", at)
	require.NoError(t, err)
	assert.Len(t, rates, 1)
	_, err = store.ListEffective(context.Background(), "PMS", at)
	require.NoError(t, err)
	assert.Equal(t, 2, next.lookups)
}

func TestPublishInvalidatesProducts(t *testing.T) {
	next := &countingStore{rates: sampleRates()}
	cache := newFakeCache()
	store, err := NewCachedRateStore(next, cache, time.Minute, nil)
	require.NoError(t, err)

	rates := append(sampleRates(), sampleRates()...)
	require.NoError(t, store.Publish(context.Background(), rates))
	assert.Equal(t, 2, next.published)
	assert.Equal(t, []string{"rates:PMS:*"}, cache.patterns)
}

func TestRedisCacheWithoutClientMisses(t *testing.T) {
	cache := NewRedisRateCache(nil)
	_, ok, err := cache.Get(context.Background(), "rates:PMS:1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, cache.Set(context.Background(), "k", sampleRates(), time.Minute))
	assert.NoError(t, cache.DeleteByPattern(context.Background(), "rates:*"))
}

func TestKeyIsPerDay(t *testing.T) {
	assert.Equal(t, Key("PMS", at), Key("PMS", at.Add(6*time.Hour)))
	assert.NotEqual(t, Key("PMS", at), Key("PMS", at.Add(24*time.Hour)))
}

func TestThrottleHonoursDeadline(t *testing.T) {
	next := &countingStore{rates: sampleRates()}
	store, err := NewThrottledRateStore(next, 0.001, 1)
	require.NoError(t, err)

	_, err = store.ListEffective(context.Background(), "PMS", at)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = store.ListEffective(ctx, "PMS", at)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, next.lookups)
}
