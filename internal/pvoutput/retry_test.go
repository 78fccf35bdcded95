package pvoutput

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetrier() (*Retrier, *[]time.Duration) {
	r := NewRetrier(nil)
	sleeps := &[]time.Duration{}
	r.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return r, sleeps
}

func TestRetrierSucceedsAfterServiceErrors(t *testing.T) {
	r, sleeps := newTestRetrier()

	attempts := 0
	err := r.Do(t.Context(), "getstatus", func() error {
		attempts++
		if attempts < 3 {
			return &BadStatusError{Service: "getstatus", StatusCode: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	// Backoff doubles per attempt.
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, *sleeps)
}

func TestRetrierExhaustsStatusBudget(t *testing.T) {
	r, _ := newTestRetrier()
	r.StatusAttempts = 4

	attempts := 0
	err := r.Do(t.Context(), "getstatus", func() error {
		attempts++
		return &BadStatusError{Service: "getstatus", StatusCode: 500}
	})

	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	var bad *BadStatusError
	assert.ErrorAs(t, err, &bad)
}

func TestRetrierCapsBackoff(t *testing.T) {
	r, sleeps := newTestRetrier()
	r.StatusAttempts = 12
	r.MaxBackoff = 2 * time.Second

	_ = r.Do(t.Context(), "getstatus", func() error {
		return &BadStatusError{Service: "getstatus", StatusCode: 502}
	})

	for _, d := range *sleeps {
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestRetrierDoesNotRetryTerminalErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"no status found", &NoStatusFoundError{Service: "getstatus"}},
		{"rate limit exceeded", &RateLimitExceededError{ResetTime: time.Now()}},
		{"client error", &BadStatusError{Service: "getstatus", StatusCode: 401}},
		{"plain error", errors.New("undecodable response body")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, sleeps := newTestRetrier()
			attempts := 0
			err := r.Do(t.Context(), "getstatus", func() error {
				attempts++
				return tc.err
			})
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, 1, attempts)
			assert.Empty(t, *sleeps)
		})
	}
}

func TestRetrierRetriesConnectionErrors(t *testing.T) {
	r, _ := newTestRetrier()

	attempts := 0
	err := r.Do(t.Context(), "getstatus", func() error {
		attempts++
		if attempts < 5 {
			return &url.Error{Op: "Get", URL: "https://pvoutput.org", Err: errors.New("connection refused")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 5, attempts)
}

func TestRetrierConnectionBudgetIsSeparate(t *testing.T) {
	r, _ := newTestRetrier()
	r.ConnectAttempts = 3
	r.StatusAttempts = 100

	attempts := 0
	err := r.Do(t.Context(), "getstatus", func() error {
		attempts++
		return &url.Error{Op: "Get", URL: "https://pvoutput.org", Err: errors.New("connection refused")}
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}
