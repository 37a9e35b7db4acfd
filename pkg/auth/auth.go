// Package auth signs users in and out. A successful login stores the
// session token; the catalog gate only ever checks that a token is present.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/mediahub-client/pkg/client"
	"github.com/Sternrassler/mediahub-client/pkg/logging"
	"github.com/Sternrassler/mediahub-client/pkg/notice"
	"github.com/Sternrassler/mediahub-client/pkg/session"
	"github.com/Sternrassler/mediahub-client/pkg/validate"
	"github.com/rs/zerolog"
)

// Login messages.
const (
	TitleLoginFailed         = "Login failed"
	MessageEnterCredentials  = "Enter a username and password"
	MessageInvalidCredential = "Invalid username or password"
)

// Backend is the auth API.
type Backend interface {
	Login(ctx context.Context, creds client.Credentials) (*client.LoginResult, error)
	VerifySession(ctx context.Context, token string) (bool, error)
}

type credentials struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

// Service manages the current session.
type Service struct {
	backend Backend
	store   session.Store
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates an auth service writing sessions to store.
func NewService(backend Backend, store session.Store) *Service {
	return &Service{
		backend: backend,
		store:   store,
		logger:  logging.NewLogger("session"),
		now:     time.Now,
	}
}

// Login validates the credentials, signs in and stores the session.
func (s *Service) Login(ctx context.Context, username, password string) (notice.Notice, error) {
	creds := credentials{Username: strings.TrimSpace(username), Password: password}
	if err := validate.Struct(creds); err != nil {
		return notice.Error(TitleLoginFailed, MessageEnterCredentials), err
	}

	res, err := s.backend.Login(ctx, client.Credentials{Username: creds.Username, Password: creds.Password})
	if err != nil {
		s.logger.Warn().Err(err).Str("username", creds.Username).Msg("Login failed")
		return notice.FromError(TitleLoginFailed, err, MessageInvalidCredential), err
	}

	sess := session.Session{
		Token:     res.Token,
		Username:  res.Username,
		UserID:    res.UserID,
		CreatedAt: s.now(),
	}
	if sess.Username == "" {
		sess.Username = creds.Username
	}
	if err := s.store.Save(sess); err != nil {
		return notice.Error(notice.TitleError, "Could not save the session"), fmt.Errorf("save session: %w", err)
	}

	s.logger.Info().
		Int64("user_id", sess.UserID).
		Str("username", sess.Username).
		Msg("Session stored")
	return notice.Success("Signed in", fmt.Sprintf("Welcome, %s!", sess.Username)), nil
}

// Logout removes the stored session. The next item selection is gated again.
func (s *Service) Logout() (notice.Notice, error) {
	if err := s.store.Clear(); err != nil {
		return notice.Error(notice.TitleError, "Could not clear the session"), fmt.Errorf("clear session: %w", err)
	}
	s.logger.Info().Msg("Session cleared")
	return notice.Success("Signed out", "Session cleared"), nil
}

// Whoami returns the stored session.
func (s *Service) Whoami() (session.Session, bool) {
	sess, err := s.store.Get()
	if err != nil {
		return session.Session{}, false
	}
	return sess, true
}

// Verify asks the backend whether the stored token is still accepted.
// Without a stored session it returns session.ErrNoSession.
func (s *Service) Verify(ctx context.Context) (bool, error) {
	sess, err := s.store.Get()
	if err != nil {
		return false, err
	}
	ok, err := s.backend.VerifySession(ctx, sess.Token)
	if err != nil {
		return false, fmt.Errorf("verify session: %w", err)
	}
	return ok, nil
}

// IsNoSession reports whether err means nobody is signed in.
func IsNoSession(err error) bool {
	return errors.Is(err, session.ErrNoSession)
}
