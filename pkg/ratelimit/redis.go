package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces rate limit records in Redis.
const DefaultRedisPrefix = "rsvp:rate_limit:"

// takeScript mirrors consume() so check-and-consume is atomic in Redis.
// KEYS[1] record hash; ARGV: now_ms, max, new_reset_ms.
// Returns {allowed, count, reset_ms}.
var takeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local reset = tonumber(redis.call('HGET', KEYS[1], 'reset_at'))
if reset == nil or now >= reset then
  redis.call('HSET', KEYS[1], 'count', 1, 'reset_at', ARGV[3])
  redis.call('PEXPIREAT', KEYS[1], ARGV[3])
  return {1, 1, tonumber(ARGV[3])}
end
local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
if count < max then
  count = redis.call('HINCRBY', KEYS[1], 'count', 1)
  return {1, count, reset}
end
return {0, count, reset}
`)

// RedisStore keeps Records in Redis hashes. Records expire natively at the
// end of their window, so Sweep has nothing to do.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(redisClient *redis.Client, prefix string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Take performs check-and-consume for identity in one script call.
func (s *RedisStore) Take(ctx context.Context, identity string, max int, window time.Duration, now time.Time) (Decision, error) {
	nowMs := now.UnixMilli()
	resetMs := now.Add(window).UnixMilli()

	vals, err := takeScript.Run(ctx, s.redis,
		[]string{s.prefix + identity},
		strconv.FormatInt(nowMs, 10), max, strconv.FormatInt(resetMs, 10),
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("run rate limit script: %w", err)
	}
	if len(vals) != 3 {
		return Decision{}, fmt.Errorf("rate limit script returned %d values", len(vals))
	}

	allowed, ok1 := vals[0].(int64)
	count, ok2 := vals[1].(int64)
	reset, ok3 := vals[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return Decision{}, fmt.Errorf("rate limit script returned unexpected types %T %T %T", vals[0], vals[1], vals[2])
	}

	return Decision{
		Allowed: allowed == 1,
		Limit:   max,
		Count:   int(count),
		ResetAt: time.UnixMilli(reset),
	}, nil
}

// Sweep is a no-op: Redis expires records on its own.
func (s *RedisStore) Sweep(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

var _ Store = (*RedisStore)(nil)
