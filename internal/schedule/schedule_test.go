package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relister/internal/workflow"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNextAfter(t *testing.T) {
	base := time.Date(2026, 8, 31, 10, 30, 0, 0, time.Local)

	at, err := nextAfter(base, "12:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local), at)

	at, err = nextAfter(base, "08:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 8, 0, 0, 0, time.Local), at, "a slot already passed today fires tomorrow")

	at, err = nextAfter(time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local), "12:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 12, 0, 0, 0, time.Local), at, "exact boundary fires the next day")

	_, err = nextAfter(base, "25:99")
	assert.Error(t, err)
}

func TestRunFiresJobsInDailyOrder(t *testing.T) {
	var ran []string
	job := func(name string) Job {
		return Job{Name: name, At: map[string]string{"listing": "08:00", "shipping": "12:00", "relisting": "20:00"}[name],
			Run: func(context.Context) error {
				ran = append(ran, name)
				return nil
			}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := New(job("listing"), job("shipping"), job("relisting"))
	s.now = fixedClock(time.Date(2026, 8, 31, 7, 0, 0, 0, time.Local))
	s.sleep = func(context.Context, time.Duration) error {
		if len(ran) == 4 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"listing", "shipping", "relisting", "listing"}, ran,
		"slots fire in wall-clock order and wrap to the next day")
}

func TestRunStopsOnBatchFatalError(t *testing.T) {
	fatal := &workflow.FlowError{Severity: workflow.SeverityBatch, Step: "register slip", Err: errors.New("rejected")}
	runs := 0
	s := New(Job{Name: "shipping", At: "12:00", Run: func(context.Context) error {
		runs++
		return fatal
	}})
	s.now = fixedClock(time.Date(2026, 8, 31, 7, 0, 0, 0, time.Local))
	s.sleep = func(context.Context, time.Duration) error { return nil }

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, runs, "no further slots after a batch-fatal failure")
}

func TestRunContinuesPastBusyAndItemErrors(t *testing.T) {
	runs := 0
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Job{Name: "listing", At: "08:00", Run: func(context.Context) error {
		runs++
		if runs == 1 {
			return workflow.ErrBusy
		}
		cancel()
		return nil
	}})
	s.now = fixedClock(time.Date(2026, 8, 31, 7, 0, 0, 0, time.Local))
	s.sleep = func(context.Context, time.Duration) error { return ctx.Err() }

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, runs, "a busy slot does not stop the scheduler")
}
