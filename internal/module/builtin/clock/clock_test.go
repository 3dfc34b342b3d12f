package clock

import (
	"context"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"statusbar/internal/module"
	sysclock "statusbar/pkg/clock"
)

func newModule(t *testing.T, at time.Time, cfg map[string]string) (*Module, *sysclock.Mock) {
	t.Helper()
	clk := sysclock.NewMock(at)
	m := New(module.Deps{Clock: clk, Location: time.UTC}).(*Module)
	if err := m.Configure(cfg); err != nil {
		t.Fatal(err)
	}
	return m, clk
}

func TestClockValueEveryTick(t *testing.T) {
	t.Parallel()
	m, _ := newModule(t, time.Date(2024, 3, 5, 10, 1, 7, 0, time.UTC), map[string]string{"utc": "UTC"})
	if m.Interval() != 0 {
		t.Fatal("clock must run every tick")
	}
	res, err := m.Refresh(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	it := res.Items[0]
	if it.Value != "10:01:07" {
		t.Fatalf("Value = %q", it.Value)
	}
	if it.Extension.Kind != module.ExtKeep {
		t.Fatalf("extension off the minute = %+v, want keep", it.Extension)
	}
}

func TestClockWorldTimesOnTheMinute(t *testing.T) {
	t.Parallel()
	m, _ := newModule(t, time.Date(2024, 1, 5, 10, 2, 0, 0, time.UTC), map[string]string{
		"tok": "Asia/Tokyo",
		"bad": "Mars/Olympus",
		"utc": "UTC",
	})
	res, err := m.Refresh(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	ext := res.Items[0].Extension
	if ext.Kind != module.ExtDetails || len(ext.Details) != 3 {
		t.Fatalf("extension = %+v", ext)
	}
	if !strings.HasPrefix(ext.Details[0], "bad: ") {
		t.Fatalf("bad zone detail = %q", ext.Details[0])
	}
	if ext.Details[1] != "tok: 19:02" || ext.Details[2] != "utc: 10:02" {
		t.Fatalf("details = %v", ext.Details)
	}
}

func TestClockDefaultsShowWorldClocks(t *testing.T) {
	t.Parallel()
	m := New(module.Deps{}).(*Module)
	cfg := m.Defaults().Merge(nil)
	if cfg["utc"] != "UTC" || len(cfg) != 9 {
		t.Fatalf("template = %v", cfg)
	}
}
