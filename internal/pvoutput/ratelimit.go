package pvoutput

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Rate-limit counters arrive as response headers on every API call.
const (
	headerRateLimitRemaining = "X-Rate-Limit-Remaining"
	headerRateLimitLimit     = "X-Rate-Limit-Limit"
	headerRateLimitReset     = "X-Rate-Limit-Reset"
)

// resetSafetyMargin pads the wait beyond the server-reported reset time
// to tolerate clock skew between client and server.
const resetSafetyMargin = 3 * time.Minute

// RateLimitState is a snapshot of the quota counters the API last
// reported.
type RateLimitState struct {
	Remaining int
	Limit     int
	ResetTime time.Time
}

// RateLimiter tracks the API quota for one credential.  The quota
// belongs to the credential, not the process, so a single shared
// instance backs every call made with that credential.
type RateLimiter struct {
	mu     sync.Mutex
	state  RateLimitState
	logger *zap.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewRateLimiter(logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		// Until the first response arrives we know nothing about the
		// quota; report it as available.
		state:  RateLimitState{Remaining: 1},
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// UpdateFromHeaders refreshes the counters from an API response.
// Responses without rate-limit headers leave the state untouched.
func (l *RateLimiter) UpdateFromHeaders(h http.Header) {
	remaining, err := strconv.Atoi(h.Get(headerRateLimitRemaining))
	if err != nil {
		return
	}
	limit, err := strconv.Atoi(h.Get(headerRateLimitLimit))
	if err != nil {
		return
	}
	resetUnix, err := strconv.ParseInt(h.Get(headerRateLimitReset), 10, 64)
	if err != nil {
		return
	}

	l.mu.Lock()
	l.state = RateLimitState{
		Remaining: remaining,
		Limit:     limit,
		ResetTime: time.Unix(resetUnix, 0).UTC(),
	}
	l.mu.Unlock()

	l.logger.Debug("rate limit updated",
		zap.Int("remaining", remaining),
		zap.Int("limit", limit),
		zap.Time("reset_time", time.Unix(resetUnix, 0).UTC()))
}

// State returns the last reported counters.
func (l *RateLimiter) State() RateLimitState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// WaitDuration returns how long to wait until the quota resets,
// including the safety margin.  Never negative.
func (l *RateLimiter) WaitDuration() time.Duration {
	l.mu.Lock()
	reset := l.state.ResetTime
	now := l.now()
	l.mu.Unlock()

	wait := reset.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait + resetSafetyMargin
}

// Wait blocks until the quota resets (plus the safety margin) or the
// context is cancelled, and returns the duration it intended to wait.
func (l *RateLimiter) Wait(ctx context.Context) (time.Duration, error) {
	wait := l.WaitDuration()
	l.logger.Info("waiting for rate limit reset",
		zap.Duration("wait", wait),
		zap.Time("retry_at", l.now().Add(wait)))
	if err := l.sleep(ctx, wait); err != nil {
		return wait, err
	}
	return wait, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
