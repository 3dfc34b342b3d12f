// Package clock provides the wall-clock source used by the scheduler.
//
// Only two services are needed: the current time and a relative one-shot
// timer. Tests swap the real clock for Mock to drive time explicitly.
package clock

import "time"

// Clock is the time source.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
	// NewTimer returns a one-shot timer firing after d.
	NewTimer(d time.Duration) Timer
}

// Timer wraps time.Timer for mockability.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Real implements Clock using the standard time package.
type Real struct{}

// New returns the real wall clock.
func New() Clock { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) NewTimer(d time.Duration) Timer {
	return &realTimer{timer: time.NewTimer(d)}
}

type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) C() <-chan time.Time { return t.timer.C }
func (t *realTimer) Stop() bool          { return t.timer.Stop() }
