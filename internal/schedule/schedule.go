// Package schedule runs the daily workflow slots: listing in the morning,
// shipping at noon, relisting in the evening.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"relister/internal/workflow"
)

// Job is one daily slot: a wall-clock time in "15:04" form and the workflow
// to run at it.
type Job struct {
	Name string
	At   string
	Run  func(ctx context.Context) error
}

// Scheduler fires jobs at their daily times, one at a time. A batch-fatal
// workflow error stops the scheduler; everything else is logged and the
// next slot still fires.
type Scheduler struct {
	jobs []Job
	now  func() time.Time

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:  jobs,
		now:   time.Now,
		sleep: sleepContext,
	}
}

// Run blocks until ctx is cancelled or a job fails batch-fatally.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}
	cursor := s.now()
	for {
		job, at, err := s.next(cursor)
		if err != nil {
			return err
		}
		log.Info().Str("job", job.Name).Time("at", at).Msg("next scheduled run")

		if err := s.sleep(ctx, at.Sub(s.now())); err != nil {
			return err
		}
		if err := job.Run(ctx); err != nil {
			if workflow.IsBatchFatal(err) {
				return fmt.Errorf("scheduled %s run failed: %w", job.Name, err)
			}
			// Includes ErrBusy: a manual run holding the session only
			// costs this one slot.
			log.Error().Err(err).Str("job", job.Name).Msg("scheduled run failed")
		}
		cursor = at
	}
}

// next returns the job with the earliest firing time strictly after t.
func (s *Scheduler) next(t time.Time) (Job, time.Time, error) {
	var (
		best   Job
		bestAt time.Time
	)
	for _, job := range s.jobs {
		at, err := nextAfter(t, job.At)
		if err != nil {
			return Job{}, time.Time{}, fmt.Errorf("job %s: %w", job.Name, err)
		}
		if bestAt.IsZero() || at.Before(bestAt) {
			best, bestAt = job, at
		}
	}
	return best, bestAt, nil
}

// nextAfter returns the first occurrence of the daily wall-clock time at
// strictly after t.
func nextAfter(t time.Time, at string) (time.Time, error) {
	clock, err := time.Parse("15:04", at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule time %q: %w", at, err)
	}
	candidate := time.Date(t.Year(), t.Month(), t.Day(), clock.Hour(), clock.Minute(), 0, 0, t.Location())
	if !candidate.After(t) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
