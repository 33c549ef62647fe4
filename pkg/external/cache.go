package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheClient stores classifier labels in Redis. It implements domain.PredictionCache.
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// CachedPrediction is the stored value with metadata
type CachedPrediction struct {
	Label    int       `json:"label"`
	CachedAt time.Time `json:"cached_at"`
}

// NewCacheClient connects to Redis and verifies the connection
func NewCacheClient(ctx context.Context, redisURL string, defaultTTL time.Duration) (*CacheClient, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewCacheClientFromRedis(client, defaultTTL), nil
}

// NewCacheClientFromRedis wraps an existing client
func NewCacheClientFromRedis(client *redis.Client, defaultTTL time.Duration) *CacheClient {
	if defaultTTL == 0 {
		defaultTTL = 24 * time.Hour
	}
	return &CacheClient{redis: client, defaultTTL: defaultTTL}
}

// Get returns a cached label. A miss is (0, false, nil).
func (c *CacheClient) Get(ctx context.Context, key string) (int, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get prediction cache: %w", err)
	}

	var cached CachedPrediction
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return 0, false, nil
	}
	return cached.Label, true, nil
}

// Set stores a label. A zero ttl uses the default.
func (c *CacheClient) Set(ctx context.Context, key string, label int, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	data, err := json.Marshal(CachedPrediction{Label: label, CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal prediction cache data: %w", err)
	}
	return c.redis.Set(ctx, key, data, ttl).Err()
}

// Ping checks connectivity, for readiness probes.
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close releases the connection pool
func (c *CacheClient) Close() error {
	return c.redis.Close()
}
