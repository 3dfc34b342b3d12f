package app

import (
	"strings"
	"time"

	"statusbar/internal/bar"
	"statusbar/internal/config"
	"statusbar/internal/httpapi"
	"statusbar/internal/module"
	"statusbar/internal/schedule"
	"statusbar/internal/storage"
	logx "statusbar/pkg/logx"
)

// The mappers below assume a config that passed config.Validate, so
// duration errors cannot occur and are treated as zero.

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapScheduler(cfg *config.Config) schedule.Config {
	base, _ := config.Duration("scheduler.retry_base", cfg.Scheduler.RetryBase)
	ceil, _ := config.Duration("scheduler.retry_max", cfg.Scheduler.RetryMax)
	return schedule.Config{
		Timezone:  cfg.Scheduler.Timezone,
		RetryBase: base,
		RetryMax:  ceil,
	}
}

func mapBar(cfg *config.Config) bar.Config {
	if cfg.Bar == nil {
		return bar.Config{Enabled: true}
	}
	return bar.Config{
		Enabled:         cfg.Bar.Enabled == nil || *cfg.Bar.Enabled,
		MaxRedrawPerSec: cfg.Bar.MaxRedrawPerSec,
		ModuleSeparator: cfg.Bar.ModuleSeparator,
		ItemSeparator:   cfg.Bar.ItemSeparator,
	}
}

// mapStorage reports false when run history is disabled.
func mapStorage(cfg *config.Config) (storage.Config, bool) {
	if cfg.Storage == nil {
		return storage.Config{}, false
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "none", "off", "disabled":
		return storage.Config{}, false
	}
	busy, _ := config.DurationOr("storage.busy_timeout", sc.BusyTimeout, time.Second)
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		Keep:        sc.Keep,
	}, true
}

func mapHTTP(cfg *config.Config) httpapi.Config {
	h := cfg.HTTP
	read, _ := config.Duration("http.read_timeout", h.ReadTimeout)
	write, _ := config.Duration("http.write_timeout", h.WriteTimeout)
	idle, _ := config.Duration("http.idle_timeout", h.IdleTimeout)
	req, _ := config.Duration("http.request_timeout", h.RequestTimeout)
	return httpapi.Config{
		Enabled:        h.Enabled,
		Addr:           strings.TrimSpace(h.Addr),
		Token:          strings.TrimSpace(h.Token),
		AllowInsecure:  h.AllowInsecure,
		Pprof:          h.Pprof,
		ReadTimeout:    read,
		WriteTimeout:   write,
		IdleTimeout:    idle,
		RequestTimeout: req,
	}
}

func mapModules(cfg *config.Config) []module.Entry {
	out := make([]module.Entry, 0, len(cfg.Modules))
	for _, m := range cfg.Modules {
		timeout, _ := config.Duration("modules.timeout", m.Timeout)
		out = append(out, module.Entry{
			Name:     strings.TrimSpace(m.Name),
			Enabled:  m.IsEnabled(),
			Schedule: strings.TrimSpace(m.Schedule),
			Timeout:  timeout,
			Config:   m.Config,
		})
	}
	return out
}
