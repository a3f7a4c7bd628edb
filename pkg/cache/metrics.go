package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rsvp_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	// CacheMisses tracks cache misses, including expired entries
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rsvp_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheExpirations tracks entries evicted because their TTL elapsed
	CacheExpirations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsvp_cache_expirations_total",
			Help: "Total number of expired cache entries evicted",
		},
		[]string{"trigger"}, // "lookup", "sweep"
	)

	// CacheInvalidations tracks invalidation passes
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsvp_cache_invalidations_total",
			Help: "Total number of cache invalidation passes",
		},
		[]string{"scope"}, // "pattern", "all"
	)

	// CacheErrors tracks store errors that degraded to a miss
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsvp_cache_errors_total",
			Help: "Total number of cache store errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "invalidate", "sweep"
	)
)
