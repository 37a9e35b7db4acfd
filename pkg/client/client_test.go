package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/mediahub-client/internal/testutil"
	"github.com/Sternrassler/mediahub-client/pkg/catalog"
	"github.com/Sternrassler/mediahub-client/pkg/ratelimit"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

const testUserAgent = "MediaHubTest/1.0 (test@example.com)"

func newTestClient(t *testing.T, backend *testutil.MockBackend, mutate func(*Config)) *Client {
	t.Helper()

	cfg := DefaultConfig(testUserAgent)
	cfg.CatalogURL = backend.CatalogURL()
	cfg.AdminURL = backend.AdminURL()
	cfg.AuthURL = backend.AuthURL()
	cfg.RateLimit = 0
	cfg.Retry = fastRetry(3)
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func firstPage() catalog.Query {
	return catalog.Query{Page: 1, PageSize: catalog.DefaultPageSize}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name:   "valid config",
			config: Config{UserAgent: testUserAgent, CatalogURL: "http://localhost/catalog"},
		},
		{
			name:   "urls optional",
			config: Config{UserAgent: testUserAgent},
		},
		{
			name:        "empty user agent",
			config:      Config{CatalogURL: "http://localhost/catalog"},
			expectError: true,
		},
		{
			name:        "invalid url",
			config:      Config{UserAgent: testUserAgent, AdminURL: "not a url"},
			expectError: true,
		},
		{
			name:        "negative rate limit",
			config:      Config{UserAgent: testUserAgent, RateLimit: -1},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if (err != nil) != tt.expectError {
				t.Fatalf("New() error = %v, expectError %v", err, tt.expectError)
			}
			if err == nil && c.Cache() != nil {
				t.Error("cache should be disabled without redis")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(testUserAgent)

	if cfg.UserAgent != testUserAgent {
		t.Errorf("UserAgent = %q", cfg.UserAgent)
	}
	if cfg.RateLimit != 10 {
		t.Errorf("RateLimit = %d, want 10", cfg.RateLimit)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Breaker.Name != "backend" {
		t.Errorf("Breaker.Name = %q", cfg.Breaker.Name)
	}
}

func TestFetchCatalog(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.AddItem("First", []string{"Музыка"}, []string{"a", "b", "c"}, "https://example.com/1")
	backend.AddItem("Second", []string{"Видео", "Музыка"}, []string{"a", "b", "c"}, "https://example.com/2")

	c := newTestClient(t, backend, nil)

	page, err := c.FetchCatalog(context.Background(), firstPage())
	if err != nil {
		t.Fatalf("FetchCatalog() error = %v", err)
	}

	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}
	if page.Items[0].Title != "Second" {
		t.Errorf("first item = %q, want newest first", page.Items[0].Title)
	}
	if len(page.Items[0].Images) != 3 {
		t.Errorf("images = %v", page.Items[0].Images)
	}
	if got := page.AllTags; len(got) != 2 || got[0] != "Видео" || got[1] != "Музыка" {
		t.Errorf("AllTags = %v", got)
	}
	if page.TotalPages != 1 || page.Total != 2 {
		t.Errorf("TotalPages = %d, Total = %d", page.TotalPages, page.Total)
	}

	q, _ := url.ParseQuery(backend.LastQuery(testutil.CatalogPath))
	if q.Get("page") != "1" || q.Get("limit") != "12" {
		t.Errorf("query = %v", q)
	}
	if q.Has("tag") {
		t.Error("tag should be omitted when empty")
	}
}

func TestFetchCatalog_TagFilter(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SeedItems(3, "Клип", "Видео")
	backend.SeedItems(2, "Трек", "Музыка")

	c := newTestClient(t, backend, nil)

	page, err := c.FetchCatalog(context.Background(), catalog.Query{Tag: "Видео", Page: 1, PageSize: 12})
	if err != nil {
		t.Fatalf("FetchCatalog() error = %v", err)
	}
	if len(page.Items) != 3 {
		t.Errorf("items = %d, want 3", len(page.Items))
	}
	for _, it := range page.Items {
		if !it.HasTag("Видео") {
			t.Errorf("item %q lacks tag", it.Title)
		}
	}
	if len(page.AllTags) != 2 {
		t.Errorf("AllTags = %v, want tags of the whole catalog", page.AllTags)
	}

	q, _ := url.ParseQuery(backend.LastQuery(testutil.CatalogPath))
	if q.Get("tag") != "Видео" {
		t.Errorf("tag = %q", q.Get("tag"))
	}
}

func TestFetchCatalog_EmptyCatalog(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()

	c := newTestClient(t, backend, nil)

	page, err := c.FetchCatalog(context.Background(), firstPage())
	if err != nil {
		t.Fatalf("FetchCatalog() error = %v", err)
	}
	if page.Items == nil || len(page.Items) != 0 {
		t.Errorf("Items = %v, want empty", page.Items)
	}
	if page.TotalPages != 1 {
		t.Errorf("TotalPages = %d, want 1", page.TotalPages)
	}
}

func TestFetchCatalog_InvalidQuery(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()

	c := newTestClient(t, backend, nil)

	if _, err := c.FetchCatalog(context.Background(), catalog.Query{Page: 0, PageSize: 12}); err == nil {
		t.Error("expected error for page 0")
	}
	if n := backend.RequestCount(testutil.CatalogPath); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestFetchCatalog_NotConfigured(t *testing.T) {
	c, err := New(Config{UserAgent: testUserAgent})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.FetchCatalog(context.Background(), firstPage()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestDo_Headers(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()

	c := newTestClient(t, backend, nil)
	if _, err := c.FetchCatalog(context.Background(), firstPage()); err != nil {
		t.Fatal(err)
	}

	h := backend.LastRequestHeader()
	if h.Get("User-Agent") != testUserAgent {
		t.Errorf("User-Agent = %q", h.Get("User-Agent"))
	}
	if h.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", h.Get("Accept"))
	}
	if _, err := uuid.Parse(h.Get("X-Request-ID")); err != nil {
		t.Errorf("X-Request-ID = %q: %v", h.Get("X-Request-ID"), err)
	}
}

func TestFetchCatalog_RetryOnServerError(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()

	var calls atomic.Int32
	backend.SetHandler(testutil.CatalogPath, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"db down"}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[],"total":0,"page":1,"limit":12,"totalPages":0,"allTags":[]}`))
	})

	c := newTestClient(t, backend, nil)
	if _, err := c.FetchCatalog(context.Background(), firstPage()); err != nil {
		t.Fatalf("FetchCatalog() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestFetchCatalog_NoRetryOnClientError(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetResponse(testutil.CatalogPath, testutil.MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"error":"Invalid pagination"}`,
	})

	c := newTestClient(t, backend, nil)
	_, err := c.FetchCatalog(context.Background(), firstPage())

	if !IsRemote(err) {
		t.Fatalf("error = %v, want remote rejection", err)
	}
	if msg, _ := RemoteMessage(err); msg != "Invalid pagination" {
		t.Errorf("message = %q", msg)
	}
	if n := backend.RequestCount(testutil.CatalogPath); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestFetchCatalog_RetryExhausted(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetResponse(testutil.CatalogPath, testutil.NewServerErrorResponse())

	c := newTestClient(t, backend, nil)
	_, err := c.FetchCatalog(context.Background(), firstPage())

	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}
	if msg, _ := RemoteMessage(err); msg != "Internal server error" {
		t.Errorf("message = %q", msg)
	}
	if n := backend.RequestCount(testutil.CatalogPath); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestFetchCatalog_TransportError(t *testing.T) {
	backend := testutil.NewMockBackend()
	c := newTestClient(t, backend, nil)
	backend.Close()

	_, err := c.FetchCatalog(context.Background(), firstPage())
	if !IsTransport(err) {
		t.Errorf("error = %v, want transport failure", err)
	}
	if IsRemote(err) {
		t.Error("transport failure reported as remote rejection")
	}
}

// flakyTransport fails the first failures round trips, then delegates.
type flakyTransport struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, errors.New("connection reset by peer")
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestSetHTTPClient_TransportFailures(t *testing.T) {
	tests := []struct {
		name        string
		failures    int32
		wantErr     bool
		wantCalls   int32
		wantBackend int
	}{
		{name: "recovers within retries", failures: 2, wantCalls: 3, wantBackend: 1},
		{name: "exhausts retries", failures: 5, wantErr: true, wantCalls: 3, wantBackend: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := testutil.NewMockBackend()
			defer backend.Close()
			backend.SeedItems(2, "Item")

			c := newTestClient(t, backend, nil)
			transport := &flakyTransport{failures: tt.failures}
			c.SetHTTPClient(&http.Client{Transport: transport})
			if c.httpClient.Timeout != c.config.Timeout {
				t.Errorf("timeout = %v, want the configured %v", c.httpClient.Timeout, c.config.Timeout)
			}

			page, err := c.FetchCatalog(context.Background(), firstPage())
			if tt.wantErr {
				if !IsTransport(err) || !errors.Is(err, ErrRetryExhausted) {
					t.Errorf("error = %v, want exhausted transport failure", err)
				}
			} else if err != nil || len(page.Items) != 2 {
				t.Fatalf("FetchCatalog() = %v, %v", page, err)
			}
			if got := transport.calls.Load(); got != tt.wantCalls {
				t.Errorf("round trips = %d, want %d", got, tt.wantCalls)
			}
			if got := backend.RequestCount(testutil.CatalogPath); got != tt.wantBackend {
				t.Errorf("backend requests = %d, want %d", got, tt.wantBackend)
			}
		})
	}
}

func TestSetHTTPClient_PostTransportFailureNotRetried(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()

	c := newTestClient(t, backend, nil)
	transport := &flakyTransport{failures: 1}
	c.SetHTTPClient(&http.Client{Transport: transport})

	_, err := c.AddItem(context.Background(), NewItem{Title: "t", Images: []string{"a", "b", "c"}, Link: "l"})
	if !IsTransport(err) {
		t.Fatalf("error = %v, want transport failure", err)
	}
	if got := transport.calls.Load(); got != 1 {
		t.Errorf("round trips = %d, want 1", got)
	}
	if got := len(backend.Items()); got != 0 {
		t.Errorf("backend items = %d, want 0", got)
	}
}

func TestFetchCatalog_RateLimitCooldown(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetResponse(testutil.CatalogPath, testutil.NewRateLimitResponse(60))

	c := newTestClient(t, backend, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.FetchCatalog(ctx, firstPage())
	if !errors.Is(err, ratelimit.ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if n := backend.RequestCount(testutil.CatalogPath); n != 1 {
		t.Errorf("requests = %d, want 1 (cooldown must block further attempts)", n)
	}
}

func TestFetchCatalog_CircuitBreaker(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetResponse(testutil.CatalogPath, testutil.NewServerErrorResponse())

	c := newTestClient(t, backend, func(cfg *Config) {
		cfg.Retry = fastRetry(1)
		cfg.Breaker = BreakerConfig{
			Name:         "test-trip",
			MaxRequests:  1,
			Timeout:      time.Minute,
			FailureRatio: 0.5,
			MinRequests:  2,
		}
	})

	for i := 0; i < 2; i++ {
		if _, err := c.FetchCatalog(context.Background(), firstPage()); err == nil {
			t.Fatal("expected server error")
		}
	}

	if c.BreakerState() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", c.BreakerState())
	}

	_, err := c.FetchCatalog(context.Background(), firstPage())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
	if !IsTransport(err) {
		t.Error("open circuit should read as a transport failure")
	}
	if n := backend.RequestCount(testutil.CatalogPath); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestFetchCatalog_ClientErrorsDoNotTripBreaker(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetResponse(testutil.CatalogPath, testutil.MockResponse{StatusCode: http.StatusBadRequest, Body: `{"error":"bad"}`})

	c := newTestClient(t, backend, func(cfg *Config) {
		cfg.Breaker = BreakerConfig{Name: "test-client-errors", Timeout: time.Minute, FailureRatio: 0.5, MinRequests: 2}
	})

	for i := 0; i < 4; i++ {
		_, _ = c.FetchCatalog(context.Background(), firstPage())
	}
	if c.BreakerState() != gobreaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", c.BreakerState())
	}
}

func TestFetchCatalog_CacheHit(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SeedItems(3, "Item")
	backend.SetCatalogMaxAge(60)

	c := newTestClient(t, backend, func(cfg *Config) {
		cfg.Redis = newTestRedis(t)
	})

	for i := 0; i < 3; i++ {
		page, err := c.FetchCatalog(context.Background(), firstPage())
		if err != nil {
			t.Fatalf("FetchCatalog() error = %v", err)
		}
		if len(page.Items) != 3 {
			t.Errorf("items = %d, want 3", len(page.Items))
		}
	}

	if n := backend.RequestCount(testutil.CatalogPath); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestFetchCatalog_ConditionalRevalidation(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SeedItems(2, "Item")

	c := newTestClient(t, backend, func(cfg *Config) {
		cfg.Redis = newTestRedis(t)
		cfg.CacheTTL = time.Millisecond
	})

	if _, err := c.FetchCatalog(context.Background(), firstPage()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	page, err := c.FetchCatalog(context.Background(), firstPage())
	if err != nil {
		t.Fatalf("FetchCatalog() after expiry error = %v", err)
	}
	if len(page.Items) != 2 {
		t.Errorf("items = %d, want 2 from the revalidated entry", len(page.Items))
	}
	if n := backend.GetConditionalCount(); n != 1 {
		t.Errorf("conditional requests = %d, want 1", n)
	}
	if n := backend.RequestCount(testutil.CatalogPath); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestAddItem_InvalidatesCache(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SeedItems(2, "Old")
	backend.SetCatalogMaxAge(60)

	c := newTestClient(t, backend, func(cfg *Config) {
		cfg.Redis = newTestRedis(t)
	})
	ctx := context.Background()

	if _, err := c.FetchCatalog(ctx, firstPage()); err != nil {
		t.Fatal(err)
	}

	id, err := c.AddItem(ctx, NewItem{
		Title:  "Fresh",
		Images: []string{"a", "b", "c"},
		Link:   "https://example.com/fresh",
	})
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if id != 3 {
		t.Errorf("item id = %d, want 3", id)
	}

	page, err := c.FetchCatalog(ctx, firstPage())
	if err != nil {
		t.Fatal(err)
	}
	if page.Items[0].Title != "Fresh" {
		t.Errorf("first item = %q, want the new item", page.Items[0].Title)
	}
	if n := backend.RequestCount(testutil.CatalogPath); n != 2 {
		t.Errorf("catalog requests = %d, want 2", n)
	}
}
