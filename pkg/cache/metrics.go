package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks entries served, by freshness (fresh, stale)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediahub_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"freshness"},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediahub_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheSize tracks bytes written to Redis
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediahub_cache_size_bytes",
			Help: "Bytes written to the response cache",
		},
	)

	// NotModified tracks successful conditional revalidations
	NotModified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediahub_cache_not_modified_total",
			Help: "Total number of 304 Not Modified revalidations",
		},
	)

	Invalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediahub_cache_invalidations_total",
			Help: "Total number of cache entries dropped by invalidation",
		},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediahub_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // get, set, delete, invalidate
	)
)
