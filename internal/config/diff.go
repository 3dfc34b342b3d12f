package config

import (
	"sort"
	"strconv"
	"strings"

	logx "statusbar/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe structured
// attrs for logging. Secrets such as the HTTP token are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.retry_base", strings.TrimSpace(newCfg.Scheduler.RetryBase)),
			logx.String("scheduler.retry_max", strings.TrimSpace(newCfg.Scheduler.RetryMax)),
		)
	}

	if mods := DiffModules(oldCfg.Modules, newCfg.Modules); len(mods) > 0 {
		changed = append(changed, "modules")
		attrs = append(attrs,
			logx.Strings("modules.changed", mods),
			logx.Int("modules.count", len(newCfg.Modules)),
		)
	}

	if derefBar(oldCfg.Bar) != derefBar(newCfg.Bar) {
		changed = append(changed, "bar")
		nb := derefBar(newCfg.Bar)
		attrs = append(attrs,
			logx.Bool("bar.enabled", nb.enabled),
			logx.Float64("bar.max_redraw_per_sec", nb.maxRedrawPerSec),
		)
	}

	// Storage: nil means disabled.
	if derefStorage(oldCfg.Storage) != derefStorage(newCfg.Storage) {
		changed = append(changed, "storage")
		ns := derefStorage(newCfg.Storage)
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(ns.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(ns.Path) != ""),
			logx.Int("storage.keep", ns.Keep),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Bool("http.token_set", strings.TrimSpace(newCfg.HTTP.Token) != ""),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
	}

	sort.Strings(changed)
	return changed, attrs
}

// DiffModules lists the positions whose module entry changed, as
// "index:name". Added and removed tail entries count as changed.
func DiffModules(oldM, newM []ModuleConfig) []string {
	n := max(len(oldM), len(newM))
	out := make([]string, 0)
	for i := 0; i < n; i++ {
		switch {
		case i >= len(oldM):
			out = append(out, moduleLabel(i, newM[i]))
		case i >= len(newM):
			out = append(out, moduleLabel(i, oldM[i]))
		case fingerprint(oldM[i]) != fingerprint(newM[i]):
			out = append(out, moduleLabel(i, newM[i]))
		}
	}
	return out
}

func moduleLabel(i int, m ModuleConfig) string {
	return strconv.Itoa(i) + ":" + m.Name
}

// barKey is BarConfig with the enabled pointer resolved, so it compares
// by value.
type barKey struct {
	enabled         bool
	maxRedrawPerSec float64
	moduleSeparator string
	itemSeparator   string
}

func derefBar(b *BarConfig) barKey {
	if b == nil {
		return barKey{enabled: true}
	}
	return barKey{
		enabled:         b.Enabled == nil || *b.Enabled,
		maxRedrawPerSec: b.MaxRedrawPerSec,
		moduleSeparator: b.ModuleSeparator,
		itemSeparator:   b.ItemSeparator,
	}
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}
