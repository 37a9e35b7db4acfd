package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every key written by this package.
const KeyPrefix = "mediahub"

// CacheKey identifies a cached response.
type CacheKey struct {
	// Endpoint is a logical endpoint name such as "catalog"
	Endpoint string

	// QueryParams are the request's query parameters
	QueryParams url.Values
}

// String generates a deterministic key.
// Format: mediahub:endpoint:key1=val1:key2=val2
//
// Example:
//
//	mediahub:catalog:limit=12:page=2:tag=Видео
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		keys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}

// endpointPattern matches every key of an endpoint for SCAN.
func endpointPattern(endpoint string) string {
	return KeyPrefix + ":" + strings.Trim(endpoint, "/") + ":*"
}
