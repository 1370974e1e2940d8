package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gilby125/tripfinder/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Cache interface defines caching operations
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}

// RedisCache implements Cache using Redis
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
	}
}

func (c *RedisCache) prefixKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// Get retrieves a value from cache. A missing key yields ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefixKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	return val, nil
}

// Set stores a value in cache with TTL
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefixKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Delete removes keys from cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.prefixKey(k)
	}
	if err := c.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// Clear removes all keys with the cache prefix
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefixKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis clear error: %w", err)
		}
	}
	return iter.Err()
}

// CacheManager provides JSON caching on top of a Cache.
type CacheManager struct {
	cache Cache
}

// NewCacheManager creates a new cache manager
func NewCacheManager(cache Cache) *CacheManager {
	return &CacheManager{cache: cache}
}

// GetJSON retrieves and unmarshals JSON data from cache
func (cm *CacheManager) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := cm.cache.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// SetJSON marshals and stores JSON data in cache
func (cm *CacheManager) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("json marshal error: %w", err)
	}
	return cm.cache.Set(ctx, key, data, ttl)
}

// Get returns raw bytes for key.
func (cm *CacheManager) Get(ctx context.Context, key string) ([]byte, error) {
	return cm.cache.Get(ctx, key)
}

// Set stores raw bytes for key.
func (cm *CacheManager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return cm.cache.Set(ctx, key, value, ttl)
}

// Delete removes keys from cache
func (cm *CacheManager) Delete(ctx context.Context, keys ...string) error {
	return cm.cache.Delete(ctx, keys...)
}

// Clear removes all cached data
func (cm *CacheManager) Clear(ctx context.Context) error {
	return cm.cache.Clear(ctx)
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result. Cache read and write failures are logged and fall through to load.
// A nil manager always loads.
func GetOrLoad[T any](ctx context.Context, cm *CacheManager, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if cm == nil {
		return load(ctx)
	}

	var cached T
	err := cm.GetJSON(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		logger.Warn("Cache read failed", "key", key, "error", err)
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	if setErr := cm.SetJSON(ctx, key, value, ttl); setErr != nil {
		logger.Warn("Cache write failed", "key", key, "error", setErr)
	}
	return value, nil
}

// Cache policies and TTLs
const (
	ShortTTL  = 5 * time.Minute
	MediumTTL = 1 * time.Hour
	LongTTL   = 24 * time.Hour
)

// Cache key generators
func AirportsKey() string {
	return "airports:all"
}

func BaseAirportsKey() string {
	return "airports:base"
}

func CountriesKey() string {
	return "countries:all"
}

// DirectoryKeys are the keys derived from the route graph's airport set.
func DirectoryKeys() []string {
	return []string{AirportsKey(), BaseAirportsKey(), CountriesKey()}
}

func ExchangeRateKey(from, to string) string {
	return fmt.Sprintf("fx:%s:%s", strings.ToUpper(from), strings.ToUpper(to))
}

// Error definitions
var (
	ErrCacheMiss = errors.New("cache miss")
)
