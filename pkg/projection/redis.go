package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// putIfNewerScript applies the last-writer-wins-by-version guard
// atomically on the Redis side, so two service instances refreshing the
// same user can not interleave a stale snapshot over a fresher one.
// KEYS[1] = cache key
// ARGV[1] = snapshot version
// ARGV[2] = serialized snapshot
// ARGV[3] = ttl in seconds (0 = no expiry)
var putIfNewerScript = redis.NewScript(`
local key = KEYS[1]
local version = tonumber(ARGV[1])
local snapshot = ARGV[2]
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("HGET", key, "version"))
if current and current >= version then
    return 0
end

redis.call("HSET", key, "version", version, "snapshot", snapshot)
if ttl > 0 then
    redis.call("EXPIRE", key, ttl)
end
return 1
`)

// RedisCache is a Cache shared across service instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithTTL expires entries after d. Zero keeps entries until
// invalidation. Default is 24 hours.
func WithTTL(d time.Duration) RedisOption {
	return func(c *RedisCache) { c.ttl = d }
}

// NewRedisCache creates a cache on an existing Redis client.
func NewRedisCache(client *redis.Client, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		client: client,
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(userID string) string {
	return "cart:view:" + userID
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, userID string) (*Entry, bool, error) {
	values, err := c.client.HMGet(ctx, cacheKey(userID), "version", "snapshot").Result()
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	if values[0] == nil || values[1] == nil {
		return nil, false, nil
	}

	version, err := strconv.ParseInt(values[0].(string), 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("cache get: bad version: %w", err)
	}

	entry := &Entry{UserID: userID, CachedVersion: version}
	if err := json.Unmarshal([]byte(values[1].(string)), &entry.Snapshot); err != nil {
		return nil, false, fmt.Errorf("cache get: decode snapshot: %w", err)
	}
	return entry, true, nil
}

// Put implements Cache.
func (c *RedisCache) Put(ctx context.Context, entry *Entry) error {
	snapshot, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return fmt.Errorf("cache put: encode snapshot: %w", err)
	}

	ttlSeconds := int64(c.ttl / time.Second)
	err = putIfNewerScript.Run(ctx, c.client,
		[]string{cacheKey(entry.UserID)},
		entry.CachedVersion, string(snapshot), ttlSeconds,
	).Err()
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Invalidate implements Cache.
func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
