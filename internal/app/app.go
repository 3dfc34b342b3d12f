package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"statusbar/internal/bar"
	"statusbar/internal/config"
	"statusbar/internal/eventbus"
	"statusbar/internal/httpapi"
	"statusbar/internal/metrics"
	"statusbar/internal/module"
	"statusbar/internal/module/builtin"
	"statusbar/internal/runtime/supervisor"
	"statusbar/internal/schedule"
	"statusbar/internal/storage"
	"statusbar/pkg/clock"
	logx "statusbar/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor
	clk  clock.Clock
	reg  *module.Registry

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	rec   *storage.Recorder

	sched   *schedule.Scheduler
	metrics *metrics.Metrics
	bar     *bar.Bar
	mods    *moduleSet
	http    *httpapi.Service
	sd      *notifier
}

// Option tweaks construction; tests use it to swap the outside world.
type Option func(*options)

type options struct {
	out io.Writer
	clk clock.Clock
	reg *module.Registry
}

// WithOutput sets where the bar line is written. Default: stdout.
func WithOutput(w io.Writer) Option { return func(o *options) { o.out = w } }

func WithClock(c clock.Clock) Option { return func(o *options) { o.clk = c } }

// WithRegistry replaces the built-in module registry.
func WithRegistry(r *module.Registry) Option { return func(o *options) { o.reg = r } }

func New(cfgPath string, opts ...Option) (*App, error) {
	o := options{out: os.Stdout, clk: clock.New()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.reg == nil {
		o.reg = builtin.NewRegistry()
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	bus := eventbus.New()

	var store storage.Store
	if sc, enabled := mapStorage(cfg); enabled {
		store, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("storage: %w", err)
		}
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}
	rec := storage.NewRecorder(store, bus, log.With(logx.String("comp", "recorder")))
	if cfg.Storage != nil {
		rec.RecordTicks = cfg.Storage.RecordTicks
	}

	sched := schedule.New(mapScheduler(cfg), o.clk, log.With(logx.String("comp", "scheduler")), bus)
	m := metrics.New(bus.Dropped)
	b := bar.New(mapBar(cfg), o.out, bus, log.With(logx.String("comp", "bar")), o.clk)

	src := httpapi.Sources{Bar: b, Schedule: sched, Now: o.clk.Now}
	if store != nil {
		src.Runs = store
	}

	a := &App{
		cfgm:    cfgm,
		clk:     o.clk,
		reg:     o.reg,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		rec:     rec,
		sched:   sched,
		metrics: m,
		bar:     b,
		mods:    newModuleSet(o.reg, sched, b, o.clk, log.With(logx.String("comp", "module"))),
		sd:      newNotifier(log.With(logx.String("comp", "systemd"))),
	}
	src.Loops = a.loops
	a.http = httpapi.New(mapHTTP(cfg), src, m, log)
	return a, nil
}

// loops is read by HTTP handlers, which only run after Start has set sup.
func (a *App) loops() map[string]int {
	if a.sup == nil {
		return nil
	}
	return a.sup.Counters().Running
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Done()
}

// Err returns the first fatal error of a background loop.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Modules lists the loaded module instance names in display order.
func (a *App) Modules() []string { return a.mods.loaded() }

func (a *App) Bar() *bar.Bar { return a.bar }

func (a *App) Scheduler() *schedule.Scheduler { return a.sched }

// HTTPAddr is the bound API address, "" when the API is off.
func (a *App) HTTPAddr() string { return a.http.Addr() }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()
	cfg := a.cfgm.Get()

	// Reloads are transactional: a rejected config is never committed.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	a.sup.Go("metrics", func(c context.Context) error { return a.metrics.Run(c, a.bus) })
	a.sup.Go("bar", a.bar.Run)
	if a.store != nil {
		a.sup.Go("storage.recorder", a.rec.Run)
	}

	if err := a.http.Start(run); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("http: %w", err)
	}

	a.mods.apply(run, mapModules(cfg))
	a.applyWatchdog(cfg.Systemd)
	a.sched.Start(run)

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128, schedule.EventRun, bar.EventRender)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sd.ready(cfg.Systemd)
	a.log.Info("app started", logx.Strings("modules", a.mods.loaded()), logx.String("http", a.http.Addr()))
	return nil
}

// validate rejects a reload whose module configs a known module refuses.
// Unknown module names pass: they are shown as error modules.
func (a *App) validate(_ context.Context, cfg *config.Config) error {
	known := a.reg.Names()
	var errs []error
	for _, l := range a.reg.Load(mapModules(cfg), module.Deps{Clock: a.clk, Log: logx.Nop()}) {
		em, ok := l.Module.(*module.ErrorModule)
		if !ok || !slices.Contains(known, l.Entry.Name) {
			continue
		}
		errs = append(errs, em.Err())
	}
	return errors.Join(errs...)
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.sd.reloading(newCfg.Systemd)
	changed := func(name string) bool { return slices.Contains(sections, name) }

	if changed("logging") {
		a.logs.Apply(mapLogging(newCfg))
	}
	if changed("scheduler") {
		a.sched.Apply(mapScheduler(newCfg))
	}
	if changed("bar") {
		if mapBar(oldCfg).Enabled != mapBar(newCfg).Enabled {
			a.log.Warn("bar.enabled changed; restart required for it to take effect")
		}
		a.bar.Apply(mapBar(newCfg))
	}
	if changed("storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	// Modules capture the scheduler's location when loaded.
	if changed("modules") || changed("scheduler") {
		a.mods.apply(a.sup.Context(), mapModules(newCfg))
	}
	if changed("http") {
		a.http.Reconfigure(ctx, mapHTTP(newCfg))
	}
	if changed("systemd") {
		a.applyWatchdog(newCfg.Systemd)
	}

	a.sd.ready(newCfg.Systemd)
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) applyWatchdog(cfg config.SystemdConfig) {
	every := a.sd.watchdogInterval(cfg)
	if every <= 0 {
		a.sched.Remove(watchdogEventID)
		return
	}
	if err := a.sched.Repeat(watchdogEventID, a.sd.ping, every); err != nil {
		a.log.Warn("watchdog not scheduled", logx.Err(err))
		return
	}
	a.log.Info("systemd watchdog enabled", logx.Duration("every", every))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.stopping(a.cfgm.Get().Systemd)

	a.sup.Cancel()

	// step runs one shutdown step with an upper bound so a stuck component
	// cannot stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			// never extend the caller's deadline
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("modules", time.Second, func(context.Context) error { a.mods.stop(); return nil })
	step("http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("bar", 500*time.Millisecond, func(context.Context) error {
		if !mapBar(a.cfgm.Get()).Enabled {
			return nil
		}
		return a.bar.Flush()
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
