package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript runs the token bucket refill-and-consume step atomically.
// Bucket state is a hash of {tokens, last_refill} in epoch milliseconds.
// ARGV: tokens, capacity, refill_rate, refill_interval_ms, now_ms, ttl_ms.
var consumeScript = redis.NewScript(`
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local interval = tonumber(ARGV[4])
local now = tonumber(ARGV[5])

local tokens = tonumber(redis.call("HGET", KEYS[1], "tokens"))
local last = tonumber(redis.call("HGET", KEYS[1], "last_refill"))
if tokens == nil then
	tokens = capacity
	last = now
end

local intervals = math.floor((now - last) / interval)
local max_intervals = math.floor(capacity / rate) + 1
if intervals > max_intervals then
	intervals = max_intervals
end
if intervals > 0 then
	tokens = math.min(tokens + intervals * rate, capacity)
	last = now
end

tokens = tokens - tonumber(ARGV[1])
redis.call("HSET", KEYS[1], "tokens", tokens, "last_refill", last)
redis.call("PEXPIRE", KEYS[1], ARGV[6])
return {tokens, last + interval}
`)

// RedisStore keeps token buckets in Redis so limits are shared across
// processes.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix sets the prefix prepended to every storage key.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, ErrStoreRequired
	}

	s := &RedisStore{
		client: client,
		prefix: "ratelimit:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ConsumeTokens refills and consumes tokens atomically in Redis.
func (s *RedisStore) ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (int, time.Time, error) {
	now := time.Now()

	// Keep the key alive long enough for a fully drained bucket to refill.
	ttl := config.RefillInterval * time.Duration(config.Capacity/config.RefillRate+2)
	if ttl < time.Minute {
		ttl = time.Minute
	}

	res, err := consumeScript.Run(ctx, s.client, []string{s.prefix + key},
		tokens,
		config.Capacity,
		config.RefillRate,
		config.RefillInterval.Milliseconds(),
		now.UnixMilli(),
		ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return 0, time.Time{}, err
	}

	remaining, _ := res[0].(int64)
	resetMillis, _ := res[1].(int64)

	return int(remaining), time.UnixMilli(resetMillis), nil
}

// Reset clears the rate limit state for the given key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
