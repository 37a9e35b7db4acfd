// Package admin holds the two admin forms: adding catalog items and creating
// users. Each form validates locally before anything is sent and keeps its
// own in-flight flag.
package admin

import (
	"context"
	"errors"
	"strings"

	"github.com/Sternrassler/mediahub-client/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrBusy is returned when a form is submitted while its previous
// submission is still in flight.
var ErrBusy = errors.New("submission already in progress")

// ImageCount is the number of images every item carries.
const ImageCount = 3

var submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mediahub_admin_submissions_total",
	Help: "Total admin form submissions by form and result",
}, []string{"form", "result"})

// Backend is the admin API.
type Backend interface {
	AddItem(ctx context.Context, item client.NewItem) (int64, error)
	CreateUser(ctx context.Context, user client.NewUser) (int64, error)
}

// ParseTags splits a comma-separated tag list, trimming each tag and
// dropping empty ones.
func ParseTags(s string) []string {
	tags := []string{}
	for _, part := range strings.Split(s, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// resultLabel maps a submission error to a metric label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case client.IsTransport(err):
		return "transport"
	case client.IsRemote(err):
		return "rejected"
	default:
		return "failed"
	}
}
