package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a request cannot be sent before its deadline.
var ErrRateLimited = errors.New("rate limited")

var (
	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediahub_rate_limit_waits_total",
		Help: "Total number of requests delayed by the client-side token bucket",
	})

	rateLimitCooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediahub_rate_limit_cooldowns_total",
		Help: "Total number of Retry-After cooldowns started",
	})

	rateLimitRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediahub_rate_limit_rejections_total",
		Help: "Total number of requests rejected because a cooldown outlives their deadline",
	})
)

// Tracker gates outgoing requests.
type Tracker struct {
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu       sync.Mutex
	cooldown CooldownState
	now      func() time.Time
}

// NewTracker creates a tracker allowing requestsPerSecond with an equal burst.
// A non-positive rate disables pacing; cooldowns still apply.
func NewTracker(requestsPerSecond int, logger zerolog.Logger) *Tracker {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = requestsPerSecond
	}

	return &Tracker{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		now:     time.Now,
	}
}

// GetState returns the current cooldown state.
func (t *Tracker) GetState() CooldownState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cooldown
}

// Wait blocks until a request may be sent. It fails fast with ErrRateLimited
// when a cooldown would outlast the context deadline.
func (t *Tracker) Wait(ctx context.Context) error {
	state := t.GetState()
	now := t.now()

	if state.Active(now) {
		remaining := state.TimeUntilReset(now)
		if deadline, ok := ctx.Deadline(); ok && deadline.Sub(now) < remaining {
			rateLimitRejectionsTotal.Inc()
			t.logger.Warn().
				Dur("cooldown_remaining", remaining).
				Msg("Cooldown outlives request deadline - rejecting request")
			return fmt.Errorf("%w: cooldown for %s", ErrRateLimited, remaining.Round(time.Millisecond))
		}

		t.logger.Debug().Dur("cooldown_remaining", remaining).Msg("Waiting for cooldown")
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrRateLimited, ctx.Err())
		case <-timer.C:
		}
	}

	if !t.limiter.Allow() {
		rateLimitWaitsTotal.Inc()
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
	}
	return nil
}

// UpdateFromResponse starts a cooldown for 429 responses and for 503
// responses that carry Retry-After.
func (t *Tracker) UpdateFromResponse(statusCode int, headers http.Header) {
	if statusCode != http.StatusTooManyRequests && statusCode != http.StatusServiceUnavailable {
		return
	}

	now := t.now()
	d, ok := ParseRetryAfter(headers, now)
	if !ok {
		if statusCode != http.StatusTooManyRequests {
			return
		}
		d = DefaultCooldown
	}

	t.mu.Lock()
	until := now.Add(d)
	if until.After(t.cooldown.Until) {
		t.cooldown = CooldownState{Until: until, StatusCode: statusCode, LastUpdate: now}
	}
	t.mu.Unlock()

	rateLimitCooldownsTotal.Inc()
	t.logger.Warn().
		Int("status", statusCode).
		Dur("cooldown", d).
		Msg("Backend requested cooldown")
}

// Reset clears any cooldown.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cooldown = CooldownState{}
}
