// Package ratelimit paces outgoing backend requests and honors Retry-After
// cooldowns announced by the backend on 429 and 503 responses.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultCooldown applies when a 429 carries no usable Retry-After header.
const DefaultCooldown = 5 * time.Second

// MaxCooldown caps server-announced cooldowns.
const MaxCooldown = 5 * time.Minute

// CooldownState describes a backend-requested pause.
type CooldownState struct {
	// Until is when requests may resume. Zero means no cooldown.
	Until time.Time

	// StatusCode is the response that started the cooldown.
	StatusCode int

	// LastUpdate is when the state was last changed.
	LastUpdate time.Time
}

// Active reports whether the cooldown is still running at now.
func (s CooldownState) Active(now time.Time) bool {
	return now.Before(s.Until)
}

// TimeUntilReset returns the cooldown remaining at now, or 0 if it has passed.
func (s CooldownState) TimeUntilReset(now time.Time) time.Duration {
	if d := s.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ParseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form. ok is false when the header is missing or malformed.
func ParseRetryAfter(headers http.Header, now time.Time) (d time.Duration, ok bool) {
	v := strings.TrimSpace(headers.Get("Retry-After"))
	if v == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return clampCooldown(time.Duration(secs) * time.Second), true
	}

	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return clampCooldown(d), true
	}

	return 0, false
}

func clampCooldown(d time.Duration) time.Duration {
	if d > MaxCooldown {
		return MaxCooldown
	}
	return d
}
