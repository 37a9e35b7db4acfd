package admin

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Sternrassler/mediahub-client/pkg/client"
	"github.com/Sternrassler/mediahub-client/pkg/logging"
	"github.com/Sternrassler/mediahub-client/pkg/notice"
	"github.com/Sternrassler/mediahub-client/pkg/validate"
	"github.com/rs/zerolog"
)

// User form messages.
const (
	MessageEnterCredentials = "Enter a username and password"
	MessageCreateFailed     = "Could not create the user"
)

// UserInput is the content of the create-user form.
type UserInput struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

// UserForm is the create-user form controller. It is independent of
// ItemForm; both can be in flight at once.
type UserForm struct {
	backend Backend
	logger  zerolog.Logger

	mu      sync.Mutex
	input   UserInput
	loading bool
}

// NewUserForm creates an empty create-user form.
func NewUserForm(backend Backend) *UserForm {
	return &UserForm{
		backend: backend,
		logger:  logging.NewLogger("admin"),
	}
}

// SetInput replaces the form content.
func (f *UserForm) SetInput(in UserInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = in
}

// Input returns the form content.
func (f *UserForm) Input() UserInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input
}

// Loading reports whether a submission is in flight.
func (f *UserForm) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// Submit validates and sends the form. The username is trimmed; the
// password is sent as typed.
func (f *UserForm) Submit(ctx context.Context) (notice.Notice, error) {
	f.mu.Lock()
	if f.loading {
		f.mu.Unlock()
		submissionsTotal.WithLabelValues("user", "busy").Inc()
		return notice.Error(notice.TitleError, ErrBusy.Error()), ErrBusy
	}

	in := UserInput{Username: strings.TrimSpace(f.input.Username), Password: f.input.Password}
	if err := validate.Struct(in); err != nil {
		f.mu.Unlock()
		submissionsTotal.WithLabelValues("user", "invalid").Inc()
		return notice.Error(notice.TitleError, MessageEnterCredentials), err
	}
	f.loading = true
	f.mu.Unlock()

	id, err := f.backend.CreateUser(ctx, client.NewUser{Username: in.Username, Password: in.Password})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = false
	submissionsTotal.WithLabelValues("user", resultLabel(err)).Inc()

	if err != nil {
		f.logger.Warn().Err(err).Str("username", in.Username).Msg("Create user failed")
		return notice.FromError(notice.TitleError, err, MessageCreateFailed), err
	}

	f.input = UserInput{}
	f.logger.Info().Int64("user_id", id).Str("username", in.Username).Msg("User created")
	return notice.Success("User created", fmt.Sprintf("Login: %s", in.Username)), nil
}
