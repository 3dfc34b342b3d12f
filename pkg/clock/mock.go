package clock

import (
	"sync"
	"time"
)

// Mock is a Clock whose time only moves when told to.
type Mock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*mockTimer
}

// NewMock returns a Mock set to t.
func NewMock(t time.Time) *Mock {
	return &Mock{current: t}
}

func (c *Mock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Set moves the clock to t and fires any due timers.
func (c *Mock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
	c.fireLocked()
}

// Add advances the clock by d and fires any due timers.
func (c *Mock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	c.fireLocked()
}

// Pending reports the number of timers that have neither fired nor been stopped.
func (c *Mock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

func (c *Mock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{
		ch:       make(chan time.Time, 1),
		deadline: c.current.Add(d),
		mu:       &c.mu,
	}
	c.timers = append(c.timers, t)
	c.fireLocked()
	return t
}

func (c *Mock) fireLocked() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if t.stopped || t.fired {
			continue
		}
		if !c.current.Before(t.deadline) {
			t.fired = true
			t.ch <- c.current
			continue
		}
		live = append(live, t)
	}
	c.timers = live
}

type mockTimer struct {
	mu       *sync.Mutex
	ch       chan time.Time
	deadline time.Time
	fired    bool
	stopped  bool
}

func (t *mockTimer) C() <-chan time.Time { return t.ch }

func (t *mockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := !t.fired && !t.stopped
	t.stopped = true
	return pending
}
