package clock

import (
	"context"
	"sort"
	"sync"
	"time"

	"statusbar/internal/module"
	sysclock "statusbar/pkg/clock"
)

const Name = "ClockModule"

type zone struct {
	label string
	loc   *time.Location
	err   error
}

// Module shows the local time every tick. On the minute it also refreshes
// the configured world clocks, shown as details.
type Module struct {
	module.Base

	clk sysclock.Clock
	loc *time.Location

	mu    sync.RWMutex
	zones []zone
}

func New(deps module.Deps) module.Module {
	return &Module{Base: module.NewBase(Name), clk: deps.Clock, loc: deps.Location}
}

func (m *Module) Interval() time.Duration { return 0 }

func (m *Module) Defaults() module.Defaults {
	return module.Defaults{
		Strategy: module.StoredOrDefault,
		Help:     "Timezones shown next to the local time, one label per timezone.",
		HelpTemplate: map[string]string{
			"label": "shown before the time; the value must be an IANA timezone name",
		},
		Template: map[string]string{
			"lax": "America/Los_Angeles",
			"nyc": "America/New_York",
			"sao": "America/Sao_Paulo",
			"utc": "UTC",
			"lon": "Europe/London",
			"zrh": "Europe/Zurich",
			"del": "Asia/Kolkata",
			"tok": "Asia/Tokyo",
			"syd": "Australia/Sydney",
		},
	}
}

// Configure never fails: a bad timezone is shown in place of its time.
func (m *Module) Configure(cfg map[string]string) error {
	zones := make([]zone, 0, len(cfg))
	for label, name := range cfg {
		loc, err := time.LoadLocation(name)
		zones = append(zones, zone{label: label, loc: loc, err: err})
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].label < zones[j].label })

	m.mu.Lock()
	m.zones = zones
	m.mu.Unlock()
	return nil
}

func (m *Module) Refresh(context.Context, bool) (module.RefreshResult, error) {
	now := m.clk.Now().In(m.loc)
	item := module.Item{Value: now.Format("15:04:05")}

	if now.Second() == 0 {
		m.mu.RLock()
		details := make([]string, 0, len(m.zones))
		for _, z := range m.zones {
			if z.err != nil {
				details = append(details, z.label+": "+z.err.Error())
				continue
			}
			details = append(details, z.label+": "+now.In(z.loc).Format("15:04"))
		}
		m.mu.RUnlock()
		item.Extension = module.Details(details...)
	}
	return module.RefreshResult{Items: []module.Item{item}}, nil
}
