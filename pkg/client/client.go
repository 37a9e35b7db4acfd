// Package client is the HTTP client for the media catalog backend: catalog
// reads, admin writes and login. GET requests are rate limited, cached in
// Redis when configured, retried with backoff and guarded by a circuit
// breaker; POST requests are sent exactly once.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/mediahub-client/pkg/cache"
	"github.com/Sternrassler/mediahub-client/pkg/logging"
	"github.com/Sternrassler/mediahub-client/pkg/ratelimit"
	"github.com/Sternrassler/mediahub-client/pkg/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Client talks to the catalog, admin and auth endpoints.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Endpoint URLs. An operation fails with ErrNotConfigured when its URL is empty.
	CatalogURL string
	AdminURL   string
	AuthURL    string

	// UserAgent is sent with every request.
	UserAgent string

	// Redis enables the response cache for catalog reads. Nil disables it.
	Redis *redis.Client

	// CacheTTL is the freshness lifetime for responses without cache headers.
	CacheTTL time.Duration

	// RateLimit is the client-side request budget per second. 0 disables pacing.
	RateLimit int

	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration

	Retry   RetryConfig
	Breaker BreakerConfig

	// Session supplies the token for session checks. Optional.
	Session session.Store
}

// DefaultConfig returns a configuration with the default limits. Endpoint
// URLs still need to be set.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		CacheTTL:  cache.DefaultTTL,
		RateLimit: 10,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
		Breaker:   DefaultBreakerConfig("backend"),
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	for name, raw := range map[string]string{
		"catalog": cfg.CatalogURL,
		"admin":   cfg.AdminURL,
		"auth":    cfg.AuthURL,
	} {
		if raw == "" {
			continue
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			return nil, fmt.Errorf("invalid %s url %q: %w", name, raw, err)
		}
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %d)", cfg.RateLimit)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	cfg.Retry = cfg.Retry.withDefaults()
	if cfg.Breaker.Name == "" {
		cfg.Breaker = DefaultBreakerConfig("backend")
	}

	logger := logging.NewLogger("mediahub-client")

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: ratelimit.NewTracker(cfg.RateLimit, logger),
		config:      cfg,
		logger:      logger,
	}
	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
	}
	c.breaker = newBreaker(cfg.Breaker, logger)

	return c, nil
}

// Do performs a request. GET requests go through the breaker and are retried;
// other methods are sent once. Responses with status >= 400 are returned as
// *APIError with the body closed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodGet {
		return c.get(req, req.URL.Path, false)
	}
	return c.send(req, req.URL.Path)
}

// get runs a GET through the breaker. cacheable enables the response cache.
func (c *Client) get(req *http.Request, endpoint string, cacheable bool) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.do(req, endpoint, cacheable)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			requestsTotal.WithLabelValues(endpoint, "circuit_open").Inc()
			c.logger.Warn().Str("endpoint", endpoint).Msg("Request rejected by circuit breaker")
		}
		return nil, err
	}
	return resp, nil
}

// send performs a single attempt without cache or retry.
func (c *Client) send(req *http.Request, endpoint string) (*http.Response, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.prepare(req)
	return c.attempt(req, endpoint)
}

// do orchestrates a GET: cache lookup, conditional headers, retries and
// cache update.
func (c *Client) do(req *http.Request, endpoint string, cacheable bool) (*http.Response, error) {
	ctx := req.Context()

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	useCache := cacheable && c.cache != nil
	cacheKey := cache.CacheKey{
		Endpoint:    endpoint,
		QueryParams: req.URL.Query(),
	}

	var cachedEntry *cache.CacheEntry
	if useCache {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			cachedEntry = entry
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	if cachedEntry != nil && !cachedEntry.IsExpired() {
		requestsTotal.WithLabelValues(endpoint, "cached").Inc()
		c.logger.Debug().Str("endpoint", endpoint).Msg("Serving fresh cache entry")
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	if cachedEntry != nil && cache.ShouldMakeConditionalRequest(cachedEntry) {
		cache.AddConditionalHeaders(req, cachedEntry)
		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("etag", cachedEntry.ETag).
			Msg("Making conditional request")
	}

	c.prepare(req)

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Msg("Executing backend request")

	var resp *http.Response
	err := retryWithBackoff(ctx, c.config.Retry, func() error {
		var attemptErr error
		resp, attemptErr = c.attempt(req, endpoint)
		return attemptErr
	}, classifyError)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		if cachedEntry == nil {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassClient,
				Message:    "not modified without cached entry",
			}
		}

		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		newExpires := cache.FreshUntil(resp.Header, time.Now(), c.config.CacheTTL)
		if err := c.cache.Touch(ctx, cacheKey, cachedEntry, newExpires); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	if useCache && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp, c.config.CacheTTL)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Dur("ttl", entry.TTL()).
				Msg("Cached response")
		}
	}

	return resp, nil
}

// prepare sets the headers every request carries.
func (c *Client) prepare(req *http.Request) {
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}
}

// attempt sends req once. Statuses >= 400 become *APIError.
func (c *Client) attempt(req *http.Request, endpoint string) (*http.Response, error) {
	ctx := req.Context()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Request blocked by rate limiter")
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	c.rateLimiter.UpdateFromResponse(resp.StatusCode, resp.Header)
	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 400 {
		return resp, nil
	}

	apiErr := readAPIError(resp)
	errorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()
	c.logger.Warn().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Str("error_class", string(apiErr.ErrorClass)).
		Str("message", apiErr.Message).
		Msg("Backend request error")

	return nil, apiErr
}

// readAPIError builds an APIError from an error response and closes its body.
func readAPIError(resp *http.Response) *APIError {
	defer resp.Body.Close()

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: classifyStatus(resp.StatusCode),
		Message:    http.StatusText(resp.StatusCode),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		apiErr.Err = err
		return apiErr
	}
	if msg := errorMessage(body); msg != "" {
		apiErr.Message = msg
	}
	return apiErr
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient replaces the HTTP client, for example to install a custom
// transport. A client without a timeout gets Config.Timeout.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client == nil {
		return
	}
	if client.Timeout == 0 {
		client.Timeout = c.config.Timeout
	}
	c.httpClient = client
}

// Cache returns the cache manager, nil when caching is disabled.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}

// BreakerState returns the circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}
