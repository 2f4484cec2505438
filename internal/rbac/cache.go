package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("rbac: cache miss")

// Cache is a byte-valued key store with per-entry expiry. Entries are advisory.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CacheKey returns the cache key holding a user's effective permissions.
func CacheKey(userID string) string {
	return "permissions:user:" + userID
}

// RedisCache stores entries in Redis.
type RedisCache struct {
	client redis.Cmdable
}

// NewRedisCache wraps a Redis client.
func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the value for key or ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("rbac: redis get: %w", err)
	}
	return payload, nil
}

// Set stores value with ttl.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("rbac: redis set: %w", err)
	}
	return nil
}

// Delete removes key. Deleting an absent key succeeds.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("rbac: redis del: %w", err)
	}
	return nil
}

// MemoryCache is an in-process expiring LRU for single-instance deployments.
// Every entry shares the TTL given at construction; the per-call ttl is ignored.
type MemoryCache struct {
	entries *expirable.LRU[string, []byte]
}

// NewMemoryCache builds a cache holding at most size entries for ttl.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 10_000
	}
	return &MemoryCache{entries: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get returns the value for key or ErrCacheMiss.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := c.entries.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), value...), nil
}

// Set stores value.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.entries.Add(key, append([]byte(nil), value...))
	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}
