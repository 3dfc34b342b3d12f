package config

import (
	"bytes"
	"encoding/json"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Modules are shown in order. The same module name may appear more
	// than once; every instance gets its own suffix.
	Modules []ModuleConfig `json:"modules"`

	// Bar is optional; nil means enabled with defaults.
	Bar *BarConfig `json:"bar,omitempty"`
	// Storage is optional; nil means run history is disabled.
	Storage *StorageConfig `json:"storage,omitempty"`
	HTTP    HTTPConfig     `json:"http,omitempty"`
	Systemd SystemdConfig  `json:"systemd,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the tick loop and the failure backoff.
//
// All durations are Go duration strings (e.g. "5s", "15m").
//
// Defaults (when fields are omitted/zero):
//   - timezone: local
//   - retry_base: "5s"
//   - retry_max: "15m"
type SchedulerConfig struct {
	Timezone  string `json:"timezone,omitempty"`
	RetryBase string `json:"retry_base,omitempty"`
	RetryMax  string `json:"retry_max,omitempty"`
}

// ModuleConfig is one bar module instance.
//
// Enabled is a pointer so an omitted key means enabled.
type ModuleConfig struct {
	Name    string `json:"name"`
	Enabled *bool  `json:"enabled,omitempty"`
	// Schedule overrides the module's own interval: "tick", "30s", "02:30",
	// "*/5 * * * *" or "@hourly".
	Schedule string `json:"schedule,omitempty"`
	// Timeout bounds one refresh (Go duration string).
	Timeout string            `json:"timeout,omitempty"`
	Config  map[string]string `json:"config,omitempty"`
}

// IsEnabled reports the effective enabled flag.
func (m ModuleConfig) IsEnabled() bool { return m.Enabled == nil || *m.Enabled }

// UnmarshalJSON disallows unknown fields so typos inside a module entry are
// caught during reload.
func (m *ModuleConfig) UnmarshalJSON(b []byte) error {
	type plain ModuleConfig
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var p plain
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*m = ModuleConfig(p)
	return nil
}

// BarConfig controls the rendered line.
//
// Example:
//
//	"bar": { "max_redraw_per_sec": 4, "module_separator": " | " }
type BarConfig struct {
	Enabled         *bool   `json:"enabled,omitempty"`
	MaxRedrawPerSec float64 `json:"max_redraw_per_sec,omitempty"`
	ModuleSeparator string  `json:"module_separator,omitempty"`
	ItemSeparator   string  `json:"item_separator,omitempty"`
}

// StorageConfig controls the optional run history.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./statusbar.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Keep        int    `json:"keep,omitempty"`
	// RecordTicks also keeps successful tick-event runs.
	RecordTicks bool `json:"record_ticks,omitempty"`
}

// HTTPConfig controls the optional read-only HTTP API.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:7070").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:7070"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 so
	// pprof profiles (30s+) work.
	ReadTimeout    string `json:"read_timeout,omitempty"`
	WriteTimeout   string `json:"write_timeout,omitempty"`
	IdleTimeout    string `json:"idle_timeout,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
}

// SystemdConfig controls sd_notify integration. Both flags are no-ops when
// the process is not started by systemd.
type SystemdConfig struct {
	Notify   bool `json:"notify,omitempty"`
	Watchdog bool `json:"watchdog,omitempty"`
}
