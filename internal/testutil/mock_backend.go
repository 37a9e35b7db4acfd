// Package testutil provides an in-memory catalog backend for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Paths served by MockBackend.
const (
	CatalogPath = "/catalog"
	AdminPath   = "/admin"
	AuthPath    = "/auth"
)

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockItem is a catalog row.
type MockItem struct {
	ID       int64
	Title    string
	Tags     []string
	Images   []string
	Link     string
	Position int
}

// MockBackend is a configurable in-memory catalog, admin and auth backend.
// Catalog reads are ordered newest first and carry an ETag that changes
// whenever an item is added.
type MockBackend struct {
	server *httptest.Server

	mu        sync.RWMutex
	handlers  map[string]http.HandlerFunc
	items     []MockItem
	users     map[string]string
	userIDs   map[string]int64
	nextItem  int64
	nextUser  int64
	version   int
	requests  map[string]int
	lastQuery map[string]string

	catalogMaxAge int

	conditional int
	lastHeader  http.Header
}

// NewMockBackend starts a mock backend.
func NewMockBackend() *MockBackend {
	m := &MockBackend{
		handlers:  make(map[string]http.HandlerFunc),
		users:     make(map[string]string),
		userIDs:   make(map[string]int64),
		requests:  make(map[string]int),
		lastQuery: make(map[string]string),
		nextItem:  1,
		nextUser:  1,
	}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests[r.URL.Path]++
		m.lastQuery[r.URL.Path] = r.URL.RawQuery
		m.lastHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			m.conditional++
		}
		handler, exists := m.handlers[r.URL.Path]
		m.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		switch r.URL.Path {
		case CatalogPath:
			m.handleCatalog(w, r)
		case AdminPath:
			m.handleAdmin(w, r)
		case AuthPath:
			m.handleAuth(w, r)
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "Not found"})
		}
	}))

	return m
}

// URL returns the server base URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// CatalogURL returns the catalog endpoint URL.
func (m *MockBackend) CatalogURL() string { return m.server.URL + CatalogPath }

// AdminURL returns the admin endpoint URL.
func (m *MockBackend) AdminURL() string { return m.server.URL + AdminPath }

// AuthURL returns the auth endpoint URL.
func (m *MockBackend) AuthURL() string { return m.server.URL + AuthPath }

// Close shuts down the server.
func (m *MockBackend) Close() {
	m.server.Close()
}

// SetHandler overrides the handler for path.
func (m *MockBackend) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// ClearHandler restores the built-in handler for path.
func (m *MockBackend) ClearHandler(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, path)
}

// SetResponse configures a fixed response for path.
func (m *MockBackend) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	})
}

// AddItem inserts an item at the top of the catalog and returns its id.
func (m *MockBackend) AddItem(title string, tags []string, images []string, link string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addItemLocked(title, tags, images, link)
}

// SeedItems inserts n items titled "<prefix> 1".."<prefix> n" in that order,
// so the last one is shown first.
func (m *MockBackend) SeedItems(n int, prefix string, tags ...string) []int64 {
	ids := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		title := fmt.Sprintf("%s %d", prefix, i)
		images := []string{
			fmt.Sprintf("https://img.example/%d/1.jpg", i),
			fmt.Sprintf("https://img.example/%d/2.jpg", i),
			fmt.Sprintf("https://img.example/%d/3.jpg", i),
		}
		ids = append(ids, m.AddItem(title, tags, images, fmt.Sprintf("https://example.com/items/%d", i)))
	}
	return ids
}

// SetCatalogMaxAge makes catalog reads carry Cache-Control max-age. 0 omits the header.
func (m *MockBackend) SetCatalogMaxAge(seconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalogMaxAge = seconds
}

// AddUser registers a user.
func (m *MockBackend) AddUser(username, password string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addUserLocked(username, password)
}

// Items returns a copy of all items, newest first.
func (m *MockBackend) Items() []MockItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked("")
}

// RequestCount returns the number of requests made to path.
func (m *MockBackend) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[path]
}

// LastQuery returns the raw query of the last request to path.
func (m *MockBackend) LastQuery(path string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery[path]
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockBackend) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditional
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockBackend) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader.Clone()
}

// Reset clears all tracking counters.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = make(map[string]int)
	m.lastQuery = make(map[string]string)
	m.conditional = 0
	m.lastHeader = nil
}

func (m *MockBackend) addItemLocked(title string, tags []string, images []string, link string) int64 {
	position := 0
	for _, it := range m.items {
		position = max(position, it.Position)
	}
	id := m.nextItem
	m.nextItem++
	if tags == nil {
		tags = []string{}
	}
	m.items = append(m.items, MockItem{
		ID:       id,
		Title:    title,
		Tags:     slices.Clone(tags),
		Images:   slices.Clone(images),
		Link:     link,
		Position: position + 1,
	})
	m.version++
	return id
}

func (m *MockBackend) addUserLocked(username, password string) int64 {
	id := m.nextUser
	m.nextUser++
	m.users[username] = password
	m.userIDs[username] = id
	return id
}

// sortedLocked returns items carrying tag (all when empty), position DESC then id DESC.
func (m *MockBackend) sortedLocked(tag string) []MockItem {
	out := make([]MockItem, 0, len(m.items))
	for _, it := range m.items {
		if tag == "" || slices.Contains(it.Tags, tag) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position > out[j].Position
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *MockBackend) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method not allowed"})
		return
	}

	q := r.URL.Query()
	page := atoiDefault(q.Get("page"), 1)
	limit := atoiDefault(q.Get("limit"), 12)
	tag := q.Get("tag")
	if page < 1 || limit < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid pagination"})
		return
	}

	m.mu.RLock()
	etag := fmt.Sprintf(`"catalog-v%d"`, m.version)
	filtered := m.sortedLocked(tag)
	tagSet := make(map[string]struct{})
	for _, it := range m.items {
		for _, t := range it.Tags {
			tagSet[t] = struct{}{}
		}
	}
	maxAge := m.catalogMaxAge
	m.mu.RUnlock()

	w.Header().Set("ETag", etag)
	if maxAge > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", maxAge))
	}
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	allTags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		allTags = append(allTags, t)
	}
	sort.Strings(allTags)

	offset := (page - 1) * limit
	items := make([]map[string]any, 0, limit)
	for i := offset; i < len(filtered) && i < offset+limit; i++ {
		it := filtered[i]
		items = append(items, map[string]any{
			"id":     it.ID,
			"title":  it.Title,
			"tags":   it.Tags,
			"images": it.Images,
			"link":   it.Link,
		})
	}

	total := len(filtered)
	writeJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"total":      total,
		"page":       page,
		"limit":      limit,
		"totalPages": (total + limit - 1) / limit,
		"allTags":    allTags,
	})
}

func (m *MockBackend) handleAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method not allowed"})
		return
	}

	var body struct {
		Action   string   `json:"action"`
		Username string   `json:"username"`
		Password string   `json:"password"`
		Title    string   `json:"title"`
		Tags     []string `json:"tags"`
		Images   []string `json:"images"`
		Link     string   `json:"link"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid JSON"})
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch body.Action {
	case "create_user":
		if body.Username == "" || body.Password == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Username and password required"})
			return
		}
		if _, exists := m.users[body.Username]; exists {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Username already exists"})
			return
		}
		id := m.addUserLocked(body.Username, body.Password)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "user_id": id})
	case "add_item":
		if body.Title == "" || len(body.Images) < 3 || body.Link == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Title, 3 images, and link required"})
			return
		}
		id := m.addItemLocked(body.Title, body.Tags, body.Images[:3], body.Link)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "item_id": id})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid action"})
	}
}

func (m *MockBackend) handleAuth(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Username == "" || body.Password == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Username and password required"})
			return
		}

		m.mu.RLock()
		password, ok := m.users[body.Username]
		id := m.userIDs[body.Username]
		m.mu.RUnlock()

		if !ok || password != body.Password {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"session_token": fmt.Sprintf("token-%s-%d", body.Username, time.Now().UnixNano()),
			"user_id":       id,
			"username":      body.Username,
		})
	case http.MethodGet:
		if r.Header.Get("X-Session-Id") == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method not allowed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// NewServerErrorResponse creates a 500 response with an error payload.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewRateLimitResponse creates a 429 response with Retry-After.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Retry-After":  strconv.Itoa(retryAfter),
		},
	}
}
