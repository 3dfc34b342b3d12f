// Package supervisor runs the daemon's long-lived loops under one context.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	logx "statusbar/pkg/logx"
)

// Supervisor owns the background loops (tick driver, bar writer, recorder,
// metrics consumer, config watcher). A loop that panics or fails records the
// first error; with WithCancelOnError it also stops the others.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger
	strict bool

	wg sync.WaitGroup

	mu      sync.Mutex
	err     error
	total   uint64
	running map[string]int
}

type Option func(*Supervisor)

// Counters reports loops started so far and those still running by name.
type Counters struct {
	Active  int64          `json:"active"`
	Started uint64         `json:"started"`
	Running map[string]int `json:"running,omitempty"`
}

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the shared context on the first loop error.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.strict = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	s := &Supervisor{running: map[string]int{}}
	s.ctx, s.cancel = context.WithCancel(parent)
	for _, apply := range opts {
		apply(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Done is closed once the shared context is canceled.
func (s *Supervisor) Done() <-chan struct{} { return s.ctx.Done() }

// Cancel cancels the shared context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first loop failure, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Supervisor) Counters() Counters {
	if s == nil {
		return Counters{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := Counters{Started: s.total}
	for _, n := range s.running {
		c.Active += int64(n)
	}
	if len(s.running) > 0 {
		c.Running = maps.Clone(s.running)
	}
	return c
}

// Go runs fn on its own goroutine. Returning context.Canceled counts as a
// clean stop.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.total++
	s.running[name]++
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.exited(name)
		s.log.Debug("loop started", logx.String("loop", name))
		if err := s.call(name, fn); err != nil {
			s.fail(name, err)
		}
	}()
}

// Go0 is Go for loops that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error { fn(ctx); return nil })
}

func (s *Supervisor) call(name string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("loop panicked", logx.String("loop", name), logx.Any("panic", r), logx.Stack(logx.StackTrace(3, 32)))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := fn(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Supervisor) exited(name string) {
	s.mu.Lock()
	if s.running[name]--; s.running[name] <= 0 {
		delete(s.running, name)
	}
	s.mu.Unlock()
	s.log.Debug("loop exited", logx.String("loop", name))
}

func (s *Supervisor) fail(name string, err error) {
	err = fmt.Errorf("%s: %w", name, err)
	s.log.Warn("loop failed", logx.Err(err))
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	if s.strict {
		s.cancel()
	}
}

// Stop cancels every loop and waits for them.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every loop has returned or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
