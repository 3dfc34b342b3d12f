// Package netspeed shows download and upload bandwidth measured with
// speedtest.net.
//
// A measurement takes tens of seconds, longer than a refresh may hold the
// scheduler, so Refresh only starts one in the background and polls for
// its result through forced refreshes.
package netspeed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"statusbar/internal/module"
	"statusbar/pkg/clock"
	logx "statusbar/pkg/logx"
)

const Name = "NetSpeedModule"

const (
	pollEvery      = 5 * time.Second
	measureTimeout = 2 * time.Minute
)

type Module struct {
	module.Base
	clk  clock.Clock
	log  logx.Logger
	life context.Context

	newMeasurer func(candidates, conns int) Measurer

	mu        sync.Mutex
	measurer  Measurer
	warnBelow float64
	running   bool
	started   bool
	done      *outcome
}

type outcome struct {
	m   Measurement
	err error
}

func New(deps module.Deps) module.Module {
	life := deps.Life
	if life == nil {
		life = context.Background()
	}
	m := &Module{Base: module.NewBase(Name), clk: deps.Clock, log: deps.Log, life: life}
	m.newMeasurer = func(candidates, conns int) Measurer {
		return speedtestMeasurer{candidates: candidates, maxConnections: conns, now: m.clk.Now}
	}
	return m
}

func (m *Module) Interval() time.Duration { return time.Hour }

func (m *Module) Defaults() module.Defaults {
	return module.Defaults{
		Strategy: module.DefaultWithStoredExclusive,
		Help:     "Measures bandwidth against the closest speedtest.net server.",
		HelpTemplate: map[string]string{
			"candidates":      "nearest servers to ping before picking one",
			"max_connections": "parallel connections per transfer test",
			"warn_below_mbps": "download speed under which the box is marked important; 0 disables",
		},
		Template: map[string]string{
			"candidates":      "3",
			"max_connections": "4",
			"warn_below_mbps": "0",
		},
	}
}

func (m *Module) Configure(cfg map[string]string) error {
	candidates, err := positiveInt(cfg, "candidates")
	if err != nil {
		return err
	}
	conns, err := positiveInt(cfg, "max_connections")
	if err != nil {
		return err
	}
	warn, err := strconv.ParseFloat(strings.TrimSpace(cfg["warn_below_mbps"]), 64)
	if err != nil || warn < 0 {
		return fmt.Errorf("warn_below_mbps: want a number >= 0, got %q", cfg["warn_below_mbps"])
	}

	m.mu.Lock()
	m.measurer = m.newMeasurer(candidates, conns)
	m.warnBelow = warn
	m.mu.Unlock()
	return nil
}

func positiveInt(cfg map[string]string, key string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(cfg[key]))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s: want a positive integer, got %q", key, cfg[key])
	}
	return n, nil
}

// Refresh reports a finished measurement, or starts one when called on
// the regular schedule or, the first time, from a forced refresh.
func (m *Module) Refresh(_ context.Context, forced bool) (module.RefreshResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if out := m.done; out != nil {
		m.done = nil
		if out.err != nil {
			return module.RefreshResult{}, fmt.Errorf("speed test: %w", out.err)
		}
		return module.RefreshResult{Items: []module.Item{m.item(out.m)}}, nil
	}

	poll := module.RefreshResult{SkipRender: true, ForceNextRefresh: m.clk.Now().Add(pollEvery)}
	if m.running {
		return poll, nil
	}
	if forced && m.started {
		// Nothing in flight and nothing to show.
		return module.RefreshResult{SkipRender: true}, nil
	}

	m.running, m.started = true, true
	go m.measure(m.measurer)
	return poll, nil
}

func (m *Module) measure(r Measurer) {
	// A measurement outlives the refresh that started it but not the module.
	ctx, cancel := context.WithTimeout(m.life, measureTimeout)
	defer cancel()
	start := m.clk.Now()
	res, err := r.Measure(ctx)
	m.log.Debug("speed test finished",
		logx.String("module", m.Name()),
		logx.Duration("took", m.clk.Now().Sub(start)),
		logx.Err(err),
	)

	m.mu.Lock()
	m.running = false
	m.done = &outcome{m: res, err: err}
	m.mu.Unlock()
}

func (m *Module) item(res Measurement) module.Item {
	details := []string{"ping " + res.Ping.Round(time.Millisecond).String()}
	if res.ISP != "" {
		details = append(details, res.ISP)
	}
	if res.Server != "" {
		details = append(details, res.Server)
	}
	return module.Item{
		Value:      fmt.Sprintf("↓%.0f ↑%.0f Mbps", res.DownMbps, res.UpMbps),
		Extension:  module.Details(details...),
		ClassNames: []string{"netspeed"},
		Important:  m.warnBelow > 0 && res.DownMbps < m.warnBelow,
	}
}
