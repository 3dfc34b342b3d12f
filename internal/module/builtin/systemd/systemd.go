// Package systemd shows the state of selected systemd units.
package systemd

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"statusbar/internal/module"
	"statusbar/pkg/clock"
	logx "statusbar/pkg/logx"
	"statusbar/pkg/units"
)

const Name = "SystemdModule"

const (
	queryTimeout = 2 * time.Second
	// settleDelay is how soon a unit caught mid-transition is looked at again.
	settleDelay = 5 * time.Second
)

var errNoUnits = errors.New("units: at least one unit is required")

type Module struct {
	module.Base
	clk  clock.Clock
	loc  *time.Location
	log  logx.Logger
	open func(context.Context) (units.Reader, error)

	mu          sync.Mutex
	reader      units.Reader
	units       []string
	hideHealthy bool
}

func New(deps module.Deps) module.Module {
	return newWithOpener(deps, units.Open)
}

func newWithOpener(deps module.Deps, open func(context.Context) (units.Reader, error)) *Module {
	return &Module{
		Base: module.NewBase(Name),
		clk:  deps.Clock,
		loc:  deps.Location,
		log:  deps.Log,
		open: open,
	}
}

func (m *Module) Interval() time.Duration { return 30 * time.Second }

func (m *Module) Defaults() module.Defaults {
	return module.Defaults{
		Strategy: module.DefaultWithStoredMerged,
		Help:     "Shows one box per systemd unit: ● active, ○ inactive, ✗ failed, ? missing.",
		HelpTemplate: map[string]string{
			"units":        "comma-separated unit names; .service is implied",
			"hide_healthy": "true hides active units",
		},
		Template: map[string]string{
			"units":        "sshd",
			"hide_healthy": "false",
		},
	}
}

func (m *Module) Configure(cfg map[string]string) error {
	var list []string
	for _, u := range strings.Split(cfg["units"], ",") {
		if u = strings.TrimSpace(u); u != "" {
			list = append(list, u)
		}
	}
	if len(list) == 0 {
		return errNoUnits
	}
	hide := false
	if v := strings.TrimSpace(cfg["hide_healthy"]); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("hide_healthy: want true or false")
		}
		hide = b
	}

	m.mu.Lock()
	m.units = list
	m.hideHealthy = hide
	m.mu.Unlock()
	return nil
}

// readerLocked connects on first use so a missing system bus only fails
// refreshes, which then back off.
func (m *Module) readerLocked(ctx context.Context) (units.Reader, error) {
	if m.reader != nil {
		return m.reader, nil
	}
	r, err := m.open(ctx)
	if err != nil {
		return nil, err
	}
	m.reader = r
	return r, nil
}

func (m *Module) Refresh(ctx context.Context, _ bool) (module.RefreshResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.readerLocked(ctx)
	if err != nil {
		return module.RefreshResult{}, err
	}

	var (
		items    = make([]module.Item, 0, len(m.units))
		settling bool
	)
	for _, name := range m.units {
		pctx, cancel := context.WithTimeout(ctx, queryTimeout)
		st, err := r.Status(pctx, name)
		cancel()
		if err != nil {
			m.log.Debug("unit query failed", logx.String("unit", name), logx.Err(err))
			items = append(items, module.Item{
				Value:      name + " ?",
				Extension:  module.Details(err.Error()),
				ClassNames: []string{"unit", "unit-error"},
				Important:  true,
			})
			continue
		}
		if st.Healthy() && m.hideHealthy {
			continue
		}
		if st.Active == "activating" || st.Active == "deactivating" || st.Active == "reloading" {
			settling = true
		}
		items = append(items, m.item(st))
	}

	res := module.RefreshResult{Items: items}
	if settling {
		res.ForceNextRefresh = m.clk.Now().Add(settleDelay)
	}
	return res, nil
}

func (m *Module) item(st units.Status) module.Item {
	details := []string{st.Active + "/" + st.SubState}
	if !st.Since.IsZero() {
		details = append(details, "since "+st.Since.In(m.loc).Format("Jan 2 15:04")+
			" ("+humanize.RelTime(st.Since, m.clk.Now(), "ago", "from now")+")")
	}
	if st.Memory > 0 {
		details = append(details, humanize.IBytes(st.Memory))
	}
	return module.Item{
		Value:      st.Name + " " + st.Symbol(),
		Extension:  module.Details(details...),
		ClassNames: []string{"unit", "unit-" + st.Active},
		Important:  !st.Healthy(),
		Urgent:     st.Failed(),
	}
}
