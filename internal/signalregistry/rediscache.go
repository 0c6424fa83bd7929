package signalregistry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"policypipeline/internal/config"
)

// RedisCache is an optional distributed tier in front of the monolith
// loader, shared across processes in a horizontally scaled deployment so a
// pack built on one instance does not need rebuilding on every other.
// It is consulted after the local LRU misses and populated whenever the
// local loader builds a fresh pack.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to the configured Redis instance. The connection
// is not verified here; callers that want a fail-fast check should call
// Ping.
func NewRedisCache(cfg config.RedisConfig, ttl time.Duration) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisCache{client: client, ttl: ttl}
}

// Ping verifies connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func cacheKey(policyAreaID string) string {
	return "signalpack:" + policyAreaID
}

// Get returns the cached pack for a policy area, if present and not
// expired, along with whether it was found.
func (c *RedisCache) Get(ctx context.Context, policyAreaID string) (SignalPack, bool) {
	raw, err := c.client.Get(ctx, cacheKey(policyAreaID)).Bytes()
	if err != nil {
		return SignalPack{}, false
	}
	var pack SignalPack
	if err := json.Unmarshal(raw, &pack); err != nil {
		return SignalPack{}, false
	}
	return pack, true
}

// Set stores a pack under its policy area id, expiring it after the
// cache's configured TTL (or the pack's own TTL if shorter).
func (c *RedisCache) Set(ctx context.Context, pack SignalPack) error {
	raw, err := json.Marshal(pack)
	if err != nil {
		return err
	}
	exp := c.ttl
	if pack.TTL > 0 && (exp <= 0 || pack.TTL < exp) {
		exp = pack.TTL
	}
	return c.client.Set(ctx, cacheKey(pack.PolicyAreaID), raw, exp).Err()
}

// Invalidate drops the cached entry for a policy area.
func (c *RedisCache) Invalidate(ctx context.Context, policyAreaID string) error {
	return c.client.Del(ctx, cacheKey(policyAreaID)).Err()
}
