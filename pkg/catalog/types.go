// Package catalog holds the catalog data model and the controller that keeps
// the displayed page in sync with the selected tag and page number.
package catalog

import (
	"context"
	"fmt"
	"slices"
)

// DefaultPageSize is the number of items requested per catalog page.
const DefaultPageSize = 12

// Item is a single catalog entry. Items are owned by the backend and treated
// as read-only by the client.
type Item struct {
	ID     int64    `json:"id"`
	Title  string   `json:"title"`
	Tags   []string `json:"tags"`
	Images []string `json:"images"`
	Link   string   `json:"link"`
}

// HasTag reports whether the item is labelled with tag.
func (i Item) HasTag(tag string) bool {
	return slices.Contains(i.Tags, tag)
}

// Query selects one slice of the catalog. An empty Tag means unfiltered.
type Query struct {
	Tag      string
	Page     int
	PageSize int
}

// Validate checks the query bounds.
func (q Query) Validate() error {
	if q.Page < 1 {
		return fmt.Errorf("page must be >= 1 (got %d)", q.Page)
	}
	if q.PageSize < 1 {
		return fmt.Errorf("page size must be >= 1 (got %d)", q.PageSize)
	}
	return nil
}

// Page is one fetch result. AllTags covers the whole catalog, not just the
// filtered slice.
type Page struct {
	Items      []Item
	AllTags    []string
	TotalPages int
	Total      int
}

// Normalize replaces missing collections with empty ones and raises
// TotalPages to at least 1.
func (p *Page) Normalize() {
	if p.Items == nil {
		p.Items = []Item{}
	}
	if p.AllTags == nil {
		p.AllTags = []string{}
	}
	if p.TotalPages < 1 {
		p.TotalPages = 1
	}
}

// Fetcher retrieves a catalog page for a query.
type Fetcher interface {
	FetchCatalog(ctx context.Context, q Query) (*Page, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, q Query) (*Page, error)

// FetchCatalog calls f(ctx, q).
func (f FetcherFunc) FetchCatalog(ctx context.Context, q Query) (*Page, error) {
	return f(ctx, q)
}

// SessionChecker reports whether a session token is currently present.
type SessionChecker interface {
	HasSession() bool
}
