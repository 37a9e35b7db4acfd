// Package metrics provides the Prometheus registry used by the mediahub client.
// All metrics are defined in their respective packages (client, cache, ratelimit,
// catalog, admin) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics,
// plus the HTTP handler the CLI mounts on its metrics address.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the mediahub client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns a mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - mediahub_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - mediahub_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - mediahub_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - mediahub_circuit_breaker_state{name} (Gauge): 0=closed, 1=half-open, 2=open
//
// Retry Metrics (pkg/client):
//   - mediahub_retries_total{error_class} (Counter): Retry attempts by error class
//   - mediahub_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - mediahub_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - mediahub_cache_hits_total{layer="redis"} (Counter): Fresh cache hits
//   - mediahub_cache_misses_total (Counter): Cache misses
//   - mediahub_cache_size_bytes{layer="redis"} (Gauge): Bytes written to the cache
//   - mediahub_304_responses_total (Counter): 304 Not Modified revalidations
//   - mediahub_conditional_requests_total (Counter): Requests sent with If-None-Match/If-Modified-Since
//   - mediahub_cache_errors_total{operation} (Counter): Cache operation errors
//   - mediahub_cache_invalidations_total{endpoint} (Counter): Keys removed after catalog mutations
//
// Rate Limit Metrics (pkg/ratelimit):
//   - mediahub_rate_limit_waits_total (Counter): Requests delayed by the token bucket
//   - mediahub_rate_limit_cooldowns_total (Counter): Retry-After cooldowns started
//   - mediahub_rate_limit_rejections_total (Counter): Requests rejected because a cooldown outlives the deadline
//
// Catalog Metrics (pkg/catalog):
//   - mediahub_catalog_fetches_total{result} (Counter): committed, stale, failed
//   - mediahub_catalog_fetch_duration_seconds (Histogram): Fetch latency as seen by the controller
//   - mediahub_gate_decisions_total{action} (Counter): open_external, redirect_paywall
//
// Admin Metrics (pkg/admin):
//   - mediahub_admin_submissions_total{form, result} (Counter): ok, invalid, rejected, transport, busy
//
// Example Prometheus Queries:
//
//   # Share of catalog results discarded as stale
//   sum(rate(mediahub_catalog_fetches_total{result="stale"}[5m])) /
//   sum(rate(mediahub_catalog_fetches_total[5m]))
//
//   # Cache Hit Rate
//   sum(rate(mediahub_cache_hits_total[5m])) /
//   (sum(rate(mediahub_cache_hits_total[5m])) + sum(rate(mediahub_cache_misses_total[5m])))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(mediahub_request_duration_seconds_bucket[5m]))
//
//   # Paywall redirect ratio
//   rate(mediahub_gate_decisions_total{action="redirect_paywall"}[1h]) /
//   rate(mediahub_gate_decisions_total[1h])
