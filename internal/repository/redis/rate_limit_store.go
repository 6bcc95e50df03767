package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"authz-service/internal/bucketing"
	"authz-service/internal/client"
	"authz-service/internal/ratelimit"
	"authz-service/internal/util"
)

const rateLimitPrefix = "rate_limit:"

// incrWithWindowScript is the single atomic primitive the admission path
// depends on: increment, attach the window expiry only on the first hit of a
// fresh window, and report the remaining window in the same round trip. An
// existing window's expiry is never extended.
const incrWithWindowScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`

// RateLimitStore implements ratelimit.Store over Redis. Counter keys are
// spread across murmur3 buckets to keep the keyspace evenly distributed.
type RateLimitStore struct {
	client  *client.RedisClient
	buckets *bucketing.Manager
}

var _ ratelimit.Store = (*RateLimitStore)(nil)

func NewRateLimitStore(client *client.RedisClient, buckets *bucketing.Manager) *RateLimitStore {
	return &RateLimitStore{client: client, buckets: buckets}
}

func (s *RateLimitStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	redisKey := fmt.Sprintf("%s%d:%s", rateLimitPrefix, s.buckets.Bucket(key), key)

	result, err := s.client.Eval(ctx, incrWithWindowScript, []string{redisKey}, window.Milliseconds())
	if err != nil {
		util.Error("Failed to increment rate limit counter",
			zap.String("key", key),
			zap.Duration("window", window),
			zap.Error(err))
		return 0, time.Time{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected result format from rate limit script")
	}
	count, countOK := values[0].(int64)
	ttlMillis, ttlOK := values[1].(int64)
	if !countOK || !ttlOK {
		return 0, time.Time{}, fmt.Errorf("unexpected result types from rate limit script")
	}

	// PTTL is negative only if the key vanished between calls; treat the
	// window as freshly opened.
	resetAt := time.Now().Add(window)
	if ttlMillis >= 0 {
		resetAt = time.Now().Add(time.Duration(ttlMillis) * time.Millisecond)
	}

	util.Debug("Rate limit counter incremented",
		zap.String("key", key),
		zap.Int64("count", count),
		zap.Time("reset_at", resetAt))

	return count, resetAt, nil
}
