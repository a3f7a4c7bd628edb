package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL is used when Config.DefaultTTL is not set.
const DefaultTTL = 5 * time.Minute

// Config holds the cache configuration.
type Config struct {
	// DefaultTTL applies to Set calls without an explicit TTL
	DefaultTTL time.Duration

	// Now returns the current time (default: time.Now)
	Now func() time.Time
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: DefaultTTL,
		Now:        time.Now,
	}
}

// Cache stores read results until their TTL elapses or they are invalidated.
//
// A cache is non-authoritative: store failures are logged and reported as
// misses, never returned to the caller.
type Cache struct {
	store      Store
	defaultTTL time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// New creates a cache over store.
func New(store Store, cfg Config, logger zerolog.Logger) *Cache {
	if store == nil {
		panic("cache store cannot be nil")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		store:      store,
		defaultTTL: cfg.DefaultTTL,
		now:        cfg.Now,
		logger:     logger,
	}
}

// NewMemory creates a cache backed by a fresh MemoryStore.
func NewMemory(cfg Config, logger zerolog.Logger) *Cache {
	return New(NewMemoryStore(), cfg, logger)
}

// DefaultTTL returns the TTL used by Set.
func (c *Cache) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Get returns the value stored under key if present and not expired.
// Expired entries are deleted.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			CacheErrors.WithLabelValues("get").Inc()
			c.logger.Warn().Err(err).Str("key", key).Msg("Cache get error")
		}
		CacheMisses.Inc()
		return nil, false
	}

	if entry.IsExpired(c.now()) {
		if err := c.store.Delete(ctx, key); err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
			c.logger.Warn().Err(err).Str("key", key).Msg("Failed to evict expired entry")
		}
		CacheExpirations.WithLabelValues("lookup").Inc()
		CacheMisses.Inc()
		c.logger.Debug().Str("key", key).Msg("Cache entry expired")
		return nil, false
	}

	CacheHits.Inc()
	c.logger.Debug().Str("key", key).Msg("Cache hit")
	return entry.Value, true
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	c.SetWithTTL(ctx, key, value, c.defaultTTL)
}

// SetWithTTL stores value under key with the given TTL, replacing any
// existing entry. A TTL <= 0 yields an immediately expired entry, so the
// key is simply removed.
func (c *Cache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		if err := c.store.Delete(ctx, key); err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
			c.logger.Warn().Err(err).Str("key", key).Msg("Cache delete error")
		}
		return
	}

	entry := &Entry{
		Value:    value,
		StoredAt: c.now(),
		TTL:      ttl,
	}
	if err := c.store.Set(ctx, key, entry); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache value")
		return
	}

	c.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Cached value")
}

// Delete removes a single key.
func (c *Cache) Delete(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache delete error")
	}
}

// Invalidate deletes every key containing pattern. An empty pattern clears
// the whole cache. Returns the number of removed entries.
func (c *Cache) Invalidate(ctx context.Context, pattern string) int {
	scope := "pattern"
	if pattern == "" {
		scope = "all"
	}
	CacheInvalidations.WithLabelValues(scope).Inc()

	removed, err := c.store.DeleteMatching(ctx, pattern)
	if err != nil {
		CacheErrors.WithLabelValues("invalidate").Inc()
		c.logger.Warn().Err(err).Str("pattern", pattern).Msg("Cache invalidation error")
	}

	c.logger.Debug().
		Str("scope", scope).
		Str("pattern", pattern).
		Int("removed", removed).
		Msg("Cache invalidated")

	return removed
}

// Sweep removes all expired entries and returns how many were removed.
func (c *Cache) Sweep(ctx context.Context) int {
	removed, err := c.store.Sweep(ctx, c.now())
	if err != nil {
		CacheErrors.WithLabelValues("sweep").Inc()
		c.logger.Warn().Err(err).Msg("Cache sweep error")
	}
	if removed > 0 {
		CacheExpirations.WithLabelValues("sweep").Add(float64(removed))
		c.logger.Debug().Int("removed", removed).Msg("Swept expired cache entries")
	}
	return removed
}

// StartJanitor runs Sweep every interval until ctx is cancelled.
func (c *Cache) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}
