package pvoutput

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Retrier re-runs outbound calls that failed transiently.  Connection
// failures get a very high budget because the remote service can be
// unreachable for hours at a time; 5xx statuses get a much smaller one.
// Quota exhaustion, "no status found" and other 4xx responses are never
// retried here.
type Retrier struct {
	ConnectAttempts int
	StatusAttempts  int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration

	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

func NewRetrier(logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		ConnectAttempts: 720,
		StatusAttempts:  20,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      2 * time.Minute,
		logger:          logger,
		sleep:           sleepContext,
	}
}

type errorClass int

const (
	errClassTerminal errorClass = iota
	errClassConnect
	errClassStatus
)

func classifyError(err error) errorClass {
	var bad *BadStatusError
	if errors.As(err, &bad) {
		if bad.StatusCode >= 500 {
			return errClassStatus
		}
		return errClassTerminal
	}

	var nsf *NoStatusFoundError
	var rle *RateLimitExceededError
	if errors.As(err, &nsf) || errors.As(err, &rle) {
		return errClassTerminal
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return errClassConnect
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errClassConnect
	}
	return errClassTerminal
}

// Do runs fn until it succeeds, returns a non-retriable error, or
// exhausts the relevant attempt budget.  Backoff doubles per attempt up
// to MaxBackoff.
func (r *Retrier) Do(ctx context.Context, op string, fn func() error) error {
	var connectFailures, statusFailures int
	backoff := r.InitialBackoff

	for {
		err := fn()
		if err == nil {
			return nil
		}

		switch classifyError(err) {
		case errClassConnect:
			connectFailures++
			if connectFailures >= r.ConnectAttempts {
				return fmt.Errorf("%s: giving up after %d connection failures: %w",
					op, connectFailures, err)
			}
		case errClassStatus:
			statusFailures++
			if statusFailures >= r.StatusAttempts {
				return fmt.Errorf("%s: giving up after %d service errors: %w",
					op, statusFailures, err)
			}
		default:
			return err
		}

		r.logger.Warn("retrying after transient error",
			zap.String("op", op),
			zap.Int("connect_failures", connectFailures),
			zap.Int("status_failures", statusFailures),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if serr := r.sleep(ctx, backoff); serr != nil {
			return serr
		}
		backoff *= 2
		if backoff > r.MaxBackoff {
			backoff = r.MaxBackoff
		}
	}
}
