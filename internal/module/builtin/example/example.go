// Package example holds two reference modules, one scheduled and one push,
// showing the minimum a module has to implement.
package example

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"statusbar/internal/module"
	"statusbar/pkg/clock"
	logx "statusbar/pkg/logx"
)

const (
	ScheduledName = "ExampleScheduledModule"
	PushName      = "ExamplePushModule"

	pushEvery = 2 * time.Second
)

func defaults() module.Defaults {
	return module.Defaults{
		Strategy: module.DefaultWithStoredExclusive,
		Help:     "Help text printed above the configuration.",
		HelpTemplate: map[string]string{
			"config": "help text per template parameter",
		},
		Template: map[string]string{
			"config":      "some value",
			"another_key": "second value",
		},
	}
}

type Scheduled struct {
	module.Base
	log     logx.Logger
	counter atomic.Int64
}

func NewScheduled(deps module.Deps) module.Module {
	return &Scheduled{Base: module.NewBase(ScheduledName), log: deps.Log}
}

func (m *Scheduled) Interval() time.Duration           { return 0 }
func (m *Scheduled) Defaults() module.Defaults         { return defaults() }
func (m *Scheduled) Configure(map[string]string) error { return nil }

func (m *Scheduled) Refresh(_ context.Context, forced bool) (module.RefreshResult, error) {
	done := m.log.Timer(logx.LevelTrace, "example refresh", logx.Bool("forced", forced))
	defer done()
	n := m.counter.Add(1) - 1
	return module.RefreshResult{Items: []module.Item{{
		Value:      "Hello. I am scheduled module, calls count: " + strconv.FormatInt(n, 10),
		Extension:  module.Details("I have more data"),
		ClassNames: []string{"some-class"},
	}}}, nil
}

// Push renders a counter every two seconds until its context ends.
type Push struct {
	module.Base
	clk clock.Clock
	log logx.Logger

	mu      sync.Mutex
	counter int
}

func NewPush(deps module.Deps) module.Module {
	return &Push{Base: module.NewBase(PushName), clk: deps.Clock, log: deps.Log}
}

func (m *Push) Defaults() module.Defaults         { return defaults() }
func (m *Push) Configure(map[string]string) error { return nil }

func (m *Push) Bind(ctx context.Context, render module.RenderFunc) error {
	if err := render(ctx, m.Name(), nil, nil); err != nil {
		return err
	}
	go m.loop(ctx, render)
	return nil
}

func (m *Push) loop(ctx context.Context, render module.RenderFunc) {
	for {
		t := m.clk.NewTimer(pushEvery)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C():
		}
		if err := render(ctx, m.Name(), []module.Item{m.next()}, nil); err != nil {
			m.log.Warn("push render failed", logx.String("module", m.Name()), logx.Err(err))
		}
	}
}

func (m *Push) next() module.Item {
	m.mu.Lock()
	n := m.counter
	m.counter++
	m.mu.Unlock()
	return module.Item{
		Value:      "Hello. I am push module, push count: " + strconv.Itoa(n),
		Extension:  module.Details("I have more data"),
		ClassNames: []string{"some-class"},
	}
}
