package module

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"statusbar/internal/schedule"
	logx "statusbar/pkg/logx"
)

// ForcedSuffix is appended to a module name for its forced-refresh event.
const ForcedSuffix = "-forcedUpdate"

var ErrInvalidModule = errors.New("invalid module instance")

// Scheduler is the part of the scheduler the adapter needs.
type Scheduler interface {
	Repeat(id string, work schedule.Work, every time.Duration) error
	AddSchedule(id, spec string, work schedule.Work) error
	At(id string, work schedule.Work, t time.Time)
}

// Options tune how a module is wired.
type Options struct {
	// Schedule overrides the module's own interval ("tick", "5m", "02:30",
	// "*/5 * * * *", "@hourly"). Empty keeps Interval().
	Schedule string
	// Timeout bounds a single refresh. Zero means no limit beyond ctx.
	Timeout time.Duration
	// Life ends with this module instance. Once it is done a refresh still
	// in flight neither renders nor re-arms its forced refresh, and its
	// context is canceled. Nil means the ctx passed to Init.
	Life context.Context
	Log  logx.Logger
}

// target is everything a refresh run needs, captured by value when the
// work is registered.
type target struct {
	mod     Scheduled
	render  RenderFunc
	sched   Scheduler
	life    context.Context
	timeout time.Duration
	log     logx.Logger
}

// Init wires m to render.
//
// Push modules are bound directly. Scheduled modules are registered under
// their name and rendered once right away (forced); that first render's
// failure is only logged since the error is already on screen.
func Init(ctx context.Context, sched Scheduler, m Module, render RenderFunc, opts Options) error {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if m == nil {
		return ErrInvalidModule
	}
	log = log.With(logx.String("module", m.Name()))

	switch mod := m.(type) {
	case Push:
		return mod.Bind(ctx, render)
	case Scheduled:
		life := opts.Life
		if life == nil {
			life = ctx
		}
		t := target{mod: mod, render: render, sched: sched, life: life, timeout: opts.Timeout, log: log}
		work := schedule.Bind(refreshScheduled, t)
		var err error
		if strings.TrimSpace(opts.Schedule) != "" {
			err = sched.AddSchedule(mod.Name(), opts.Schedule, work)
		} else {
			err = sched.Repeat(mod.Name(), work, mod.Interval())
		}
		if err != nil {
			return fmt.Errorf("module %s: %w", mod.Name(), err)
		}
		if err := refreshRender(ctx, t, true); err != nil {
			log.Warn("could not render module", logx.Err(err))
		}
		return nil
	default:
		return fmt.Errorf("%w: %s (%T)", ErrInvalidModule, m.Name(), m)
	}
}

func refreshScheduled(ctx context.Context, t target) error { return refreshRender(ctx, t, false) }

func refreshForced(ctx context.Context, t target) error { return refreshRender(ctx, t, true) }

// refreshRender runs one refresh, renders its outcome and arms the forced
// refresh when requested. A refresh failure is rendered and then returned
// so the scheduler backs off.
func refreshRender(ctx context.Context, t target, forced bool) error {
	res, err := safeRefresh(ctx, t, forced)
	if t.life.Err() != nil {
		t.log.Debug("module retired during refresh; outcome dropped")
		return nil
	}
	if err != nil {
		if rerr := t.render(ctx, t.mod.Name(), nil, err); rerr != nil {
			t.log.Warn("render of refresh error failed", logx.Err(rerr))
		}
		return err
	}
	if !res.SkipRender {
		if err := t.render(ctx, t.mod.Name(), res.Items, nil); err != nil {
			return fmt.Errorf("render %s: %w", t.mod.Name(), err)
		}
	}
	if !res.ForceNextRefresh.IsZero() {
		t.log.Debug("forced refresh requested", logx.Time("at", res.ForceNextRefresh))
		t.sched.At(t.mod.Name()+ForcedSuffix, schedule.Bind(refreshForced, t), res.ForceNextRefresh)
	}
	return nil
}

func safeRefresh(ctx context.Context, t target, forced bool) (res RefreshResult, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(t.life, cancel)()
	if t.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("module %s: refresh panic: %v", t.mod.Name(), r)
		}
	}()
	return t.mod.Refresh(ctx, forced)
}
