// Package retry provides a bounded, fixed-delay retry wrapper for fallible
// operations against the remote sites. Only transport-level failures are
// retried; application errors (not authenticated, validation) pass through
// untouched so callers see the true root cause.
package retry

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"
)

const (
	// DefaultMaxAttempts is the total number of attempts, not extra retries.
	DefaultMaxAttempts = 3
	// DefaultDelay is the fixed sleep between attempts. The target sites do
	// not throttle aggressively enough to need backoff growth.
	DefaultDelay = 2 * time.Second
)

// Options controls a Do call. Zero values fall back to the defaults above.
type Options struct {
	MaxAttempts int
	Delay       time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsTransient.
	Retryable func(error) bool
}

// Do executes op, retrying on retryable errors up to MaxAttempts total
// attempts with a fixed delay in between. On exhaustion the last observed
// error is returned unchanged. Non-retryable errors return immediately.
//
// Callers must not pass non-idempotent side-effecting operations (final
// submit clicks) unless the operation is read-only navigation; Do cannot
// enforce that.
func Do(ctx context.Context, op func() error, opts Options) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	retryable := opts.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var last error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		last = err
		if attempt < opts.MaxAttempts {
			select {
			case <-ctx.Done():
				return last
			case <-time.After(opts.Delay):
			}
		}
	}
	return last
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable regardless of its type. The browser page
// adapter uses this for navigation timeouts, which chromedp reports as plain
// context errors.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is a network or timeout class error.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var marked *transientError
	if errors.As(err, &marked) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return false
}
