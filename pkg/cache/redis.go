package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces cache keys written to Redis.
const DefaultRedisPrefix = "rsvp-cache:"

// scanBatch is the COUNT hint for SCAN and the DEL batch size.
const scanBatch = 100

// RedisStore is a Store backed by Redis.
//
// Entries are stored as JSON with a native Redis expiry equal to their TTL,
// so Sweep has nothing to do. Keys live under a prefix; DeleteMatching never
// touches keys outside it. Give each service its own prefix when they share
// one Redis database.
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

// Get retrieves and decodes the entry stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.redis.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &entry, nil
}

// Set stores entry with a Redis expiry equal to its TTL.
func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if entry.TTL <= 0 {
		return s.Delete(ctx, key)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, s.prefix+key, data, entry.TTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteMatching removes every key under the prefix that contains substr.
// Keys are found with SCAN, so the operation is not atomic with respect to
// concurrent writers.
func (s *RedisStore) DeleteMatching(ctx context.Context, substr string) (int, error) {
	match := s.prefix + "*"
	if substr != "" {
		match = s.prefix + "*" + escapeGlob(substr) + "*"
	}

	removed := 0
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.redis.Del(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	iter := s.redis.Scan(ctx, 0, match, scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= scanBatch {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	if err := flush(); err != nil {
		return removed, err
	}

	return removed, nil
}

// Sweep is a no-op: Redis expires keys on its own.
func (s *RedisStore) Sweep(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

// escapeGlob escapes the characters that are special in Redis MATCH patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ Store = (*RedisStore)(nil)
