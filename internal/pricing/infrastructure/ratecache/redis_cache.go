package ratecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	pricing "omc-erp/internal/pricing/domain"
)

// RateCache stores resolved component rate sets.
type RateCache interface {
	Get(ctx context.Context, key string) ([]pricing.ComponentRate, bool, error)
	Set(ctx context.Context, key string, rates []pricing.ComponentRate, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// RedisRateCache keeps rate sets as JSON in Redis.
type RedisRateCache struct {
	client *redis.Client
}

// NewRedisRateCache wraps an existing client. A nil client caches nothing.
func NewRedisRateCache(client *redis.Client) *RedisRateCache {
	return &RedisRateCache{client: client}
}

// DialRedis builds a client and checks connectivity.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("rate cache: empty redis addr")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Get returns the cached rates; the bool is false on a miss.
func (c *RedisRateCache) Get(ctx context.Context, key string) ([]pricing.ComponentRate, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var rates []pricing.ComponentRate
	if err := json.Unmarshal(raw, &rates); err != nil {
		return nil, false, fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return rates, true, nil
}

// Set stores rates with the given TTL.
func (c *RedisRateCache) Set(ctx context.Context, key string, rates []pricing.ComponentRate, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(rates)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// DeleteByPattern removes cached entries matching the pattern.
func (c *RedisRateCache) DeleteByPattern(ctx context.Context, pattern string) error {
	if c == nil || c.client == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis delete %s: %w", key, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan pattern %s: %w", pattern, err)
	}
	return nil
}

// NoopRateCache never hits.
type NoopRateCache struct{}

func (NoopRateCache) Get(context.Context, string) ([]pricing.ComponentRate, bool, error) {
	return nil, false, nil
}

func (NoopRateCache) Set(context.Context, string, []pricing.ComponentRate, time.Duration) error {
	return nil
}

func (NoopRateCache) DeleteByPattern(context.Context, string) error { return nil }
