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

// Item form messages.
const (
	MessageFillAllFields = "Fill in all fields"
	MessageAddFailed     = "Could not add the item"
)

// ItemInput is the raw content of the add-item form. Tags is the
// comma-separated text the user typed.
type ItemInput struct {
	Title  string   `validate:"required"`
	Tags   string
	Images []string `validate:"len=3,dive,required"`
	Link   string   `validate:"required"`
}

// EmptyItemInput returns a cleared form with three empty image slots.
func EmptyItemInput() ItemInput {
	return ItemInput{Images: make([]string, ImageCount)}
}

// trimmed returns a copy with surrounding whitespace removed.
func (in ItemInput) trimmed() ItemInput {
	out := ItemInput{
		Title:  strings.TrimSpace(in.Title),
		Tags:   in.Tags,
		Link:   strings.TrimSpace(in.Link),
		Images: make([]string, len(in.Images)),
	}
	for i, img := range in.Images {
		out.Images[i] = strings.TrimSpace(img)
	}
	return out
}

// ItemForm is the add-item form controller.
type ItemForm struct {
	backend Backend
	logger  zerolog.Logger

	mu      sync.Mutex
	input   ItemInput
	loading bool
}

// NewItemForm creates an empty add-item form.
func NewItemForm(backend Backend) *ItemForm {
	return &ItemForm{
		backend: backend,
		logger:  logging.NewLogger("admin"),
		input:   EmptyItemInput(),
	}
}

// SetInput replaces the form content.
func (f *ItemForm) SetInput(in ItemInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in.Images = append([]string(nil), in.Images...)
	f.input = in
}

// SetImage sets image slot i (0-based).
func (f *ItemForm) SetImage(i int, url string) error {
	if i < 0 || i >= ImageCount {
		return fmt.Errorf("image slot %d out of range [0,%d)", i, ImageCount)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.input.Images) < ImageCount {
		images := make([]string, ImageCount)
		copy(images, f.input.Images)
		f.input.Images = images
	}
	f.input.Images[i] = url
	return nil
}

// Input returns a copy of the form content.
func (f *ItemForm) Input() ItemInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	in := f.input
	in.Images = append([]string(nil), f.input.Images...)
	return in
}

// Loading reports whether a submission is in flight.
func (f *ItemForm) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// Submit validates the form and sends it. Invalid input never reaches the
// backend. The form is cleared on success and kept on failure.
func (f *ItemForm) Submit(ctx context.Context) (notice.Notice, error) {
	f.mu.Lock()
	if f.loading {
		f.mu.Unlock()
		submissionsTotal.WithLabelValues("item", "busy").Inc()
		return notice.Error(notice.TitleError, ErrBusy.Error()), ErrBusy
	}

	in := f.input.trimmed()
	if err := validate.Struct(in); err != nil {
		f.mu.Unlock()
		submissionsTotal.WithLabelValues("item", "invalid").Inc()
		f.logger.Debug().Err(err).Msg("Item form rejected locally")
		return notice.Error(notice.TitleError, MessageFillAllFields), err
	}
	f.loading = true
	f.mu.Unlock()

	id, err := f.backend.AddItem(ctx, client.NewItem{
		Title:  in.Title,
		Tags:   ParseTags(in.Tags),
		Images: in.Images,
		Link:   in.Link,
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = false
	submissionsTotal.WithLabelValues("item", resultLabel(err)).Inc()

	if err != nil {
		f.logger.Warn().Err(err).Str("title", in.Title).Msg("Add item failed")
		return notice.FromError(notice.TitleError, err, MessageAddFailed), err
	}

	f.input = EmptyItemInput()
	f.logger.Info().Int64("item_id", id).Str("title", in.Title).Msg("Item added")
	return notice.Success("Item added", fmt.Sprintf("New item #%d added to the catalog", id)), nil
}
