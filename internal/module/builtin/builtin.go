// Package builtin registers the modules shipped with statusbar.
package builtin

import (
	"statusbar/internal/module"
	"statusbar/internal/module/builtin/clock"
	"statusbar/internal/module/builtin/date"
	"statusbar/internal/module/builtin/example"
	"statusbar/internal/module/builtin/netspeed"
	"statusbar/internal/module/builtin/systemd"
)

// Register adds every built-in module to r.
func Register(r *module.Registry) error {
	for name, c := range map[string]module.Constructor{
		clock.Name:            clock.New,
		date.Name:             date.New,
		example.ScheduledName: example.NewScheduled,
		example.PushName:      example.NewPush,
		netspeed.Name:         netspeed.New,
		systemd.Name:          systemd.New,
	} {
		if err := r.Register(name, c); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in modules.
func NewRegistry() *module.Registry {
	r := module.NewRegistry()
	// Names are distinct constants, so this cannot fail.
	_ = Register(r)
	return r
}
