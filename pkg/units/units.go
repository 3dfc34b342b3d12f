// Package units reads systemd unit state over D-Bus.
package units

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrUnsupported = errors.New("units: unsupported OS (linux only)")

// Status is the state of one unit.
type Status struct {
	Name        string
	Active      string // active, inactive, failed, etc.
	SubState    string // running, dead, etc.
	LoadState   string // loaded, not-found, etc.
	Description string
	Memory      uint64    // bytes; 0 when unknown
	Since       time.Time // last state change
}

// Reader reports unit state.
type Reader interface {
	Status(ctx context.Context, name string) (Status, error)
	Close() error
}

func (s Status) Found() bool   { return s.LoadState != "not-found" }
func (s Status) Healthy() bool { return s.Active == "active" }
func (s Status) Failed() bool  { return s.Active == "failed" }

// Symbol is a one-rune summary of the state.
func (s Status) Symbol() string {
	switch {
	case !s.Found():
		return "?"
	case s.Healthy():
		return "●"
	case s.Failed():
		return "✗"
	case s.Active == "activating" || s.Active == "reloading":
		return "◐"
	default:
		return "○"
	}
}

// unitName appends ".service" when name has no unit suffix.
func unitName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		switch name[i+1:] {
		case "service", "socket", "timer", "target", "mount", "path", "scope", "slice":
			return name
		}
	}
	return name + ".service"
}

func notFound(name string) Status {
	return Status{Name: name, Active: "unknown", SubState: "not-found", LoadState: "not-found"}
}

// parseTimestamp reads a systemd microsecond timestamp property.
func parseTimestamp(props map[string]any, key string) time.Time {
	if ts, ok := props[key].(uint64); ok && ts > 0 {
		return time.UnixMicro(int64(ts))
	}
	return time.Time{}
}

func stringProp(props map[string]any, key string) string {
	v, _ := props[key].(string)
	return v
}

func isNoSuchUnitErr(err error) bool {
	if err == nil {
		return false
	}
	es := err.Error()
	// systemd returns org.freedesktop.systemd1.NoSuchUnit for missing units.
	return strings.Contains(es, "NoSuchUnit") || strings.Contains(es, "not-found")
}

// statusFromProps builds a Status from a unit property map.
func statusFromProps(name string, props map[string]any) Status {
	if stringProp(props, "LoadState") == "not-found" {
		return notFound(name)
	}
	st := Status{
		Name:        name,
		Active:      stringProp(props, "ActiveState"),
		SubState:    stringProp(props, "SubState"),
		LoadState:   stringProp(props, "LoadState"),
		Description: stringProp(props, "Description"),
		Since:       parseTimestamp(props, "StateChangeTimestamp"),
	}
	// MemoryCurrent is UINT64_MAX when accounting is off.
	if mem, ok := props["MemoryCurrent"].(uint64); ok && mem > 0 && mem != ^uint64(0) {
		st.Memory = mem
	}
	return st
}
