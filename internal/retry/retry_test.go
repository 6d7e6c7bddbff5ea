package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return Transient(errors.New("connection dropped"))
		}
		return nil
	}, Options{MaxAttempts: 3, Delay: time.Millisecond})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts, "no 4th attempt after success")
}

func TestDoExhaustion(t *testing.T) {
	attempts := 0
	cause := Transient(errors.New("navigation timed out"))
	err := Do(context.Background(), func() error {
		attempts++
		return cause
	}, Options{MaxAttempts: 3, Delay: time.Millisecond})

	assert.Equal(t, 3, attempts)
	assert.Equal(t, cause, err, "last observed error is re-raised unchanged")
}

func TestDoDoesNotRetryApplicationErrors(t *testing.T) {
	attempts := 0
	appErr := errors.New("not authenticated")
	err := Do(context.Background(), func() error {
		attempts++
		return appErr
	}, Options{MaxAttempts: 3, Delay: time.Millisecond})

	assert.Equal(t, 1, attempts)
	assert.Equal(t, appErr, err)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	cause := Transient(errors.New("flaky"))
	err := Do(ctx, func() error {
		attempts++
		cancel()
		return cause
	}, Options{MaxAttempts: 5, Delay: time.Minute})

	assert.Equal(t, 1, attempts)
	assert.Equal(t, cause, err, "cancellation surfaces the last real error")
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("goto: %w", context.DeadlineExceeded), true},
		{"net timeout", &net.DNSError{IsTimeout: true}, true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"marked transient", Transient(errors.New("anything")), true},
		{"application error", errors.New("validation failed"), false},
		{"cancelled context", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
