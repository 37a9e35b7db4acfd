package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/mediahub-client/pkg/catalog"
)

// CatalogEndpoint is the endpoint label and cache namespace for catalog reads.
const CatalogEndpoint = "catalog"

type catalogResponse struct {
	Items      []catalog.Item `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
	AllTags    []string       `json:"allTags"`
}

// FetchCatalog retrieves one catalog page. It implements catalog.Fetcher.
func (c *Client) FetchCatalog(ctx context.Context, q catalog.Query) (*catalog.Page, error) {
	if c.config.CatalogURL == "" {
		return nil, fmt.Errorf("catalog: %w", ErrNotConfigured)
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("catalog query: %w", err)
	}

	u, err := catalogURL(c.config.CatalogURL, q)
	if err != nil {
		return nil, err
	}

	req, err := newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.get(req, CatalogEndpoint, true)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog page %d: %w", q.Page, err)
	}
	defer resp.Body.Close()

	var body catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode catalog response: %w", ErrTransport, err)
	}

	page := &catalog.Page{
		Items:      body.Items,
		AllTags:    body.AllTags,
		TotalPages: body.TotalPages,
		Total:      body.Total,
	}
	page.Normalize()
	return page, nil
}

// catalogURL adds page, limit and tag to base. The tag is omitted when empty.
func catalogURL(base string, q catalog.Query) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse catalog url: %w", err)
	}
	params := u.Query()
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(q.PageSize))
	if q.Tag != "" {
		params.Set("tag", q.Tag)
	} else {
		params.Del("tag")
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// InvalidateCatalog drops every cached catalog page.
func (c *Client) InvalidateCatalog(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	_, err := c.cache.InvalidateEndpoint(ctx, CatalogEndpoint)
	return err
}
