package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// AdminEndpoint is the endpoint label for admin writes.
const AdminEndpoint = "admin"

// NewItem is the payload of an add_item request.
type NewItem struct {
	Title  string   `json:"title"`
	Tags   []string `json:"tags"`
	Images []string `json:"images"`
	Link   string   `json:"link"`
}

// NewUser is the payload of a create_user request.
type NewUser struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type adminRequest struct {
	Action string `json:"action"`
	*NewItem
	*NewUser
}

type adminResponse struct {
	Success bool   `json:"success"`
	ItemID  int64  `json:"item_id"`
	UserID  int64  `json:"user_id"`
	Error   string `json:"error"`
}

// AddItem creates a catalog item and returns its id. Cached catalog pages
// are dropped on success.
func (c *Client) AddItem(ctx context.Context, item NewItem) (int64, error) {
	if item.Tags == nil {
		item.Tags = []string{}
	}

	var resp adminResponse
	if err := c.admin(ctx, adminRequest{Action: "add_item", NewItem: &item}, &resp); err != nil {
		return 0, fmt.Errorf("add item: %w", err)
	}

	if err := c.InvalidateCatalog(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to invalidate catalog cache")
	}

	c.logger.Info().
		Int64("item_id", resp.ItemID).
		Str("title", item.Title).
		Msg("Catalog item added")
	return resp.ItemID, nil
}

// CreateUser creates a user account and returns its id.
func (c *Client) CreateUser(ctx context.Context, user NewUser) (int64, error) {
	var resp adminResponse
	if err := c.admin(ctx, adminRequest{Action: "create_user", NewUser: &user}, &resp); err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}

	c.logger.Info().
		Int64("user_id", resp.UserID).
		Str("username", user.Username).
		Msg("User created")
	return resp.UserID, nil
}

func (c *Client) admin(ctx context.Context, payload adminRequest, out *adminResponse) error {
	if c.config.AdminURL == "" {
		return fmt.Errorf("admin: %w", ErrNotConfigured)
	}
	if err := c.postJSON(ctx, AdminEndpoint, c.config.AdminURL, payload, out); err != nil {
		return err
	}
	if !out.Success {
		return &APIError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassClient,
			Message:    out.Error,
		}
	}
	return nil
}

// postJSON sends payload once and decodes a 2xx response into out.
func (c *Client) postJSON(ctx context.Context, endpoint, rawURL string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := newRequest(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.send(req, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", ErrTransport, endpoint, err)
	}
	return nil
}

// errorMessage extracts the "error" field of a JSON error body.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error
}
