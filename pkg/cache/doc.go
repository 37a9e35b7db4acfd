// Package cache stores backend responses in Redis and supports conditional
// revalidation with ETag and Last-Modified.
//
// Entries live in Redis for their freshness lifetime plus StaleGrace. A stale
// entry is still returned by Get so the caller can revalidate it with
// If-None-Match or If-Modified-Since and, on 304 Not Modified, refresh it
// with Touch instead of downloading the body again.
//
// # Basic Usage
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(rdb)
//
//	key := cache.CacheKey{
//		Endpoint:    "catalog",
//		QueryParams: url.Values{"page": {"2"}, "limit": {"12"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	switch {
//	case errors.Is(err, cache.ErrCacheMiss):
//		// fetch from the backend
//	case entry.IsExpired():
//		cache.AddConditionalHeaders(req, entry)
//	default:
//		// serve entry.Data
//	}
//
// # Invalidation
//
// Writes that change a collection drop every cached entry of its endpoint:
//
//	n, err := manager.InvalidateEndpoint(ctx, "catalog")
//
// # Metrics
//
//   - mediahub_cache_hits_total{freshness} - fresh or stale entries served
//   - mediahub_cache_misses_total - lookups without an entry
//   - mediahub_cache_size_bytes - bytes written to Redis
//   - mediahub_cache_not_modified_total - 304 revalidations
//   - mediahub_cache_invalidations_total - entries dropped by InvalidateEndpoint
//   - mediahub_cache_errors_total{operation} - Redis or decode failures
package cache
