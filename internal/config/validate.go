package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"statusbar/internal/schedule"
)

// Validate checks everything that can be checked without building the
// runtime. Errors name the offending config path.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	base, err := Duration("scheduler.retry_base", cfg.Scheduler.RetryBase)
	errs = append(errs, err)
	ceil, err := Duration("scheduler.retry_max", cfg.Scheduler.RetryMax)
	errs = append(errs, err)
	if base > 0 && ceil > 0 && ceil < base {
		errs = append(errs, errors.New("scheduler.retry_max must be >= scheduler.retry_base"))
	}

	for i, m := range cfg.Modules {
		path := fmt.Sprintf("modules[%d]", i)
		if strings.TrimSpace(m.Name) == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", path))
		}
		if s := strings.TrimSpace(m.Schedule); s != "" {
			if _, err := schedule.ParseSpec(s); err != nil {
				errs = append(errs, fmt.Errorf("%s.schedule: %w", path, err))
			}
		}
		_, err := Duration(path+".timeout", m.Timeout)
		errs = append(errs, err)
	}

	if b := cfg.Bar; b != nil && b.MaxRedrawPerSec < 0 {
		errs = append(errs, errors.New("bar.max_redraw_per_sec must be >= 0"))
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "off", "disabled":
		case "file", "sqlite":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, errors.New("storage.path is required"))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		_, err := Duration("storage.busy_timeout", s.BusyTimeout)
		errs = append(errs, err)
		if s.Keep < 0 {
			errs = append(errs, errors.New("storage.keep must be >= 0"))
		}
	}

	for _, f := range []struct{ path, raw string }{
		{"http.read_timeout", cfg.HTTP.ReadTimeout},
		{"http.write_timeout", cfg.HTTP.WriteTimeout},
		{"http.idle_timeout", cfg.HTTP.IdleTimeout},
		{"http.request_timeout", cfg.HTTP.RequestTimeout},
	} {
		_, err := Duration(f.path, f.raw)
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
