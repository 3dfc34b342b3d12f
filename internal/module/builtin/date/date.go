package date

import (
	"context"
	"time"

	"statusbar/internal/module"
	"statusbar/pkg/clock"
	logx "statusbar/pkg/logx"
)

const Name = "DateModule"

// Module shows today's date, refreshed at local midnight.
type Module struct {
	module.Base
	clk clock.Clock
	loc *time.Location
	log logx.Logger
}

func New(deps module.Deps) module.Module {
	return &Module{Base: module.NewBase(Name), clk: deps.Clock, loc: deps.Location, log: deps.Log}
}

func (m *Module) Interval() time.Duration { return 24 * time.Hour }

func (m *Module) Defaults() module.Defaults {
	return module.Defaults{
		Strategy: module.DefaultWithStoredExclusive,
		Help:     "Date is not configurable.",
	}
}

func (m *Module) Configure(map[string]string) error { return nil }

func (m *Module) Refresh(context.Context, bool) (module.RefreshResult, error) {
	now := m.clk.Now().In(m.loc)
	m.log.Debug("date refresh", logx.String("module", m.Name()))
	return module.RefreshResult{Items: []module.Item{{Value: now.Format("Mon 2006-01-02")}}}, nil
}
