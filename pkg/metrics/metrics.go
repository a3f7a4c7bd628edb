// Package metrics provides the Prometheus registry and metric catalogue for
// the RSVP client. All metrics are defined in their respective packages
// (cache, ratelimit, client, service) to maintain modularity and avoid
// circular dependencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the RSVP client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the counterpart of Registry used for exposition.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler exposing every registered metric.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - rsvp_cache_hits_total (Counter): Cache hits
//   - rsvp_cache_misses_total (Counter): Cache misses (absent, expired or unreadable)
//   - rsvp_cache_expirations_total{trigger} (Counter): Expired entries removed (lookup, sweep)
//   - rsvp_cache_invalidations_total{scope} (Counter): Invalidation passes (pattern, all)
//   - rsvp_cache_errors_total{operation} (Counter): Store errors degraded to misses
//
// Rate Limit Metrics (pkg/ratelimit):
//   - rsvp_ratelimit_decisions_total{decision} (Counter): allowed, denied, store_error
//   - rsvp_ratelimit_swept_records_total (Counter): Expired records purged by Sweep
//
// Transport Metrics (pkg/client):
//   - rsvp_transport_requests_total{method, status} (Counter): Requests by method and HTTP status
//   - rsvp_transport_request_duration_seconds{method} (Histogram): Request duration including retries
//   - rsvp_errors_total{class} (Counter): Normalized errors by class (network, client, server, parse, rate_limited)
//
// Retry Metrics (pkg/client):
//   - rsvp_retries_total{error_class} (Counter): Retry attempts by error class
//   - rsvp_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - rsvp_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Service Metrics (pkg/service):
//   - rsvp_service_operations_total{endpoint, operation, result} (Counter): Dispatcher operations
//
// Example Prometheus Queries:
//
//	# Cache Hit Rate
//	sum(rate(rsvp_cache_hits_total[5m])) /
//	(sum(rate(rsvp_cache_hits_total[5m])) + sum(rate(rsvp_cache_misses_total[5m])))
//
//	# Denied Submissions
//	rate(rsvp_ratelimit_decisions_total{decision="denied"}[5m])
//
//	# Failed Operations by Class
//	sum by (class) (rate(rsvp_errors_total[5m]))
//
//	# P95 Request Latency
//	histogram_quantile(0.95, rate(rsvp_transport_request_duration_seconds_bucket[5m]))
