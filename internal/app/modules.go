package app

import (
	"context"
	"sync"
	"time"

	"statusbar/internal/module"
	"statusbar/internal/schedule"
	"statusbar/pkg/clock"
	logx "statusbar/pkg/logx"
)

// moduleScheduler is what the module set needs from the scheduler.
type moduleScheduler interface {
	module.Scheduler
	Remove(id string) bool
	Location() *time.Location
}

// moduleDisplay is what the module set needs from the bar.
type moduleDisplay interface {
	SetModules(names []string)
	Render(ctx context.Context, name string, items []module.Item, err error) error
}

// moduleSet owns the currently loaded modules. Every apply is a new
// generation: push modules of the previous one are stopped through their
// context, scheduled ones are replaced by id or removed. A generation only
// reaches the scheduler's At and the display while it is current.
type moduleSet struct {
	reg   *module.Registry
	sched moduleScheduler
	disp  moduleDisplay
	clk   clock.Clock
	log   logx.Logger

	mu     sync.Mutex
	names  []string
	cancel context.CancelFunc

	// retire is held for writing while a generation is canceled and its
	// events removed, and for reading while a generation calls out.
	retire sync.RWMutex
}

// whileCurrent runs fn unless gen has been retired.
func (s *moduleSet) whileCurrent(gen context.Context, fn func()) bool {
	s.retire.RLock()
	defer s.retire.RUnlock()
	if gen.Err() != nil {
		return false
	}
	fn()
	return true
}

// genScheduler drops forced refreshes armed by a retired generation.
type genScheduler struct {
	moduleScheduler
	set *moduleSet
	gen context.Context
}

func (g genScheduler) At(id string, work schedule.Work, at time.Time) {
	g.set.whileCurrent(g.gen, func() { g.moduleScheduler.At(id, work, at) })
}

// renderFor drops renders of a retired generation so a removed module
// cannot reappear in the bar.
func (s *moduleSet) renderFor(gen context.Context) module.RenderFunc {
	return func(ctx context.Context, name string, items []module.Item, err error) error {
		var rerr error
		s.whileCurrent(gen, func() { rerr = s.disp.Render(ctx, name, items, err) })
		return rerr
	}
}

// retireLocked cancels the current generation and removes its events;
// keep lists names whose main event the next generation replaces.
func (s *moduleSet) retireLocked(keep map[string]bool) {
	s.retire.Lock()
	defer s.retire.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	for _, n := range s.names {
		// Pending forced refreshes belong to the old instance.
		s.sched.Remove(n + module.ForcedSuffix)
		if !keep[n] {
			s.sched.Remove(n)
		}
	}
}

func newModuleSet(reg *module.Registry, sched moduleScheduler, disp moduleDisplay, clk clock.Clock, log logx.Logger) *moduleSet {
	return &moduleSet{reg: reg, sched: sched, disp: disp, clk: clk, log: log}
}

// apply loads entries and wires them. Module failures never abort the
// apply; they show up in the bar instead.
func (s *moduleSet) apply(ctx context.Context, entries []module.Entry) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen, cancel := context.WithCancel(ctx)
	loaded := s.reg.Load(entries, module.Deps{
		Clock:    s.clk,
		Location: s.sched.Location(),
		Log:      s.log,
		Life:     gen,
	})
	names := make([]string, 0, len(loaded))
	keep := make(map[string]bool, len(loaded))
	for _, l := range loaded {
		names = append(names, l.Module.Name())
		keep[l.Module.Name()] = true
	}

	s.retireLocked(keep)
	s.cancel = cancel
	s.names = names
	s.disp.SetModules(names)

	sched := genScheduler{moduleScheduler: s.sched, set: s, gen: gen}
	render := s.renderFor(gen)
	for _, l := range loaded {
		err := module.Init(gen, sched, l.Module, render, module.Options{
			Schedule: l.Entry.Schedule,
			Timeout:  l.Entry.Timeout,
			Life:     gen,
			Log:      s.log,
		})
		if err != nil {
			s.log.Warn("module init failed", logx.String("module", l.Module.Name()), logx.Err(err))
			_ = render(gen, l.Module.Name(), nil, err)
		}
	}
	s.log.Info("modules loaded", logx.Strings("modules", names))
	return names
}

// stop ends push modules and unregisters every scheduled one.
func (s *moduleSet) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retireLocked(nil)
	s.names = nil
}

func (s *moduleSet) loaded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}
