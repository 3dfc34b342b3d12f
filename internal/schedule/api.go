package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Repeat registers work under id.
//
//   - every == 0: run on every tick
//   - every > 0: run on wall-clock slots of every (whole seconds only)
//   - every < 0: ErrNegativeInterval
func (s *Scheduler) Repeat(id string, work Work, every time.Duration) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	switch {
	case every < 0:
		return fmt.Errorf("%w: %s", ErrNegativeInterval, every)
	case every == 0:
		s.Add(NewTickEvent(id, work))
	default:
		if every%time.Second != 0 {
			return fmt.Errorf("%w: %s", ErrInvalidInterval, every)
		}
		s.Add(NewRepeatableEvent(id, work, int64(every/time.Second), s.now()))
	}
	return nil
}

// Once registers work to run once, after the given delay (truncated to
// whole seconds).
func (s *Scheduler) Once(id string, work Work, after time.Duration) {
	s.AtSec(id, work, TimeToSec(s.now())+int64(after/time.Second))
}

// At registers work to run once at t.
func (s *Scheduler) At(id string, work Work, t time.Time) {
	s.AtSec(id, work, TimeToSec(t))
}

// AtSec registers work to run once at the given epoch second.
func (s *Scheduler) AtSec(id string, work Work, sec int64) {
	s.Add(NewScheduledEvent(id, work, sec))
}

// Cron registers work on a cron spec ("*/5 * * * *", "0 30 9 * * *",
// "@hourly"). Each successful run re-arms the event at the following cron
// time; a failed run backs off like any scheduled event and re-arms once a
// retry succeeds.
func (s *Scheduler) Cron(id, spec string, work Work) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	sched, err := s.parser.Parse(strings.TrimSpace(spec))
	if err != nil {
		return fmt.Errorf("cron %q: %w", spec, err)
	}
	var run Work
	run = func(ctx context.Context) error {
		if work != nil {
			if err := work(ctx); err != nil {
				return err
			}
		}
		s.At(id, run, sched.Next(s.now()))
		return nil
	}
	s.At(id, run, sched.Next(s.now()))
	return nil
}

// Bind captures arg into a Work. The bound function sees only arg, never
// the state of whoever registered it.
func Bind[T any](fn func(ctx context.Context, arg T) error, arg T) Work {
	return func(ctx context.Context) error { return fn(ctx, arg) }
}
