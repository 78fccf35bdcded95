package pvoutput

import (
	"fmt"
	"time"
)

// NoStatusFoundError reports that the API answered "no status found"
// (HTTP 400) for a query.  It is a legitimate empty result, never
// retried.
type NoStatusFoundError struct {
	Service string
}

func (e *NoStatusFoundError) Error() string {
	return fmt.Sprintf("pvoutput: no status found for %s query", e.Service)
}

// RateLimitExceededError reports that the API quota for this credential
// is exhausted.  ResetTime is when the quota comes back.
type RateLimitExceededError struct {
	ResetTime time.Time
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("pvoutput: API rate limit exceeded, resets at %s",
		e.ResetTime.UTC().Format(time.RFC3339))
}

// BadStatusError reports an unexpected HTTP status.  5xx statuses are
// retried by the Retrier; anything else surfaces immediately.
type BadStatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *BadStatusError) Error() string {
	return fmt.Sprintf("pvoutput: %s query returned status %d: %s",
		e.Service, e.StatusCode, e.Body)
}
