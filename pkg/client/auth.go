package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// AuthEndpoint is the endpoint label for login and session checks.
const AuthEndpoint = "auth"

// Credentials are sent to the auth endpoint.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is a successful login.
type LoginResult struct {
	Token    string `json:"session_token"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type loginResponse struct {
	Success bool `json:"success"`
	LoginResult
	Error string `json:"error"`
}

// Login exchanges credentials for a session token. Wrong credentials come
// back as *APIError with status 401.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if c.config.AuthURL == "" {
		return nil, fmt.Errorf("auth: %w", ErrNotConfigured)
	}

	var resp loginResponse
	if err := c.postJSON(ctx, AuthEndpoint, c.config.AuthURL, creds, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !resp.Success || resp.Token == "" {
		return nil, fmt.Errorf("login: %w", &APIError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassClient,
			Message:    resp.Error,
		})
	}

	c.logger.Info().
		Int64("user_id", resp.UserID).
		Str("username", resp.Username).
		Msg("Login succeeded")
	return &resp.LoginResult, nil
}

// VerifySession asks the backend whether token is accepted. An empty token
// uses the configured session store.
func (c *Client) VerifySession(ctx context.Context, token string) (bool, error) {
	if c.config.AuthURL == "" {
		return false, fmt.Errorf("auth: %w", ErrNotConfigured)
	}
	if token == "" && c.config.Session != nil {
		if s, err := c.config.Session.Get(); err == nil {
			token = s.Token
		}
	}
	if token == "" {
		return false, nil
	}

	req, err := newRequest(ctx, http.MethodGet, c.config.AuthURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("X-Session-Id", token)

	resp, err := c.get(req, AuthEndpoint, false)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return false, nil
		}
		return false, fmt.Errorf("verify session: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("%w: decode auth response: %w", ErrTransport, err)
	}
	return body.Authenticated, nil
}
