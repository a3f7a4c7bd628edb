// Package cache provides the expiring cache used by the service dispatcher.
//
// The cache has the following features:
//
// - Per-entry TTL; expired entries are never returned
// - Lazy eviction on lookup plus an optional periodic janitor
// - Substring-pattern invalidation (all variants of an operation at once)
// - Deterministic cache key generation
// - Pluggable storage: in-memory map or Redis
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	c := cache.NewMemory(cache.DefaultConfig(), logging.NewLogger("cache"))
//
//	key := cache.Key{
//		Endpoint:  "rsvps",
//		Operation: "fetchAll",
//		Params:    map[string]any{"status": "attending"},
//	}
//
//	if value, ok := c.Get(ctx, key.String()); ok {
//		// Cache hit
//	}
//
//	c.Set(ctx, key.String(), body)
//
// # Invalidation
//
// Invalidation is deliberately coarse. A write invalidates every key that
// contains a pattern, typically the Prefix of an operation:
//
//	// Drop every cached fetchAll variant of the endpoint
//	c.Invalidate(ctx, cache.Key{Endpoint: "rsvps", Operation: "fetchAll"}.Prefix())
//
//	// Drop everything
//	c.Invalidate(ctx, "")
//
// # Redis Storage
//
//	store := cache.NewRedisStore(redisClient, "rsvp-cache:rsvps:")
//	c := cache.New(store, cache.DefaultConfig(), logger)
//
// # Metrics
//
// The cache exports Prometheus metrics:
//
//   - rsvp_cache_hits_total - Cache hits
//   - rsvp_cache_misses_total - Cache misses
//   - rsvp_cache_expirations_total{trigger} - Expired entries evicted
//   - rsvp_cache_invalidations_total{scope} - Invalidation passes
//   - rsvp_cache_errors_total{operation} - Store errors
package cache
