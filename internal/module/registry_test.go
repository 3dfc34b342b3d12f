package module

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type configModule struct {
	Base
	defaults Defaults
	got      map[string]string
	reject   error
}

func (m *configModule) Defaults() Defaults      { return m.defaults }
func (m *configModule) Interval() time.Duration { return time.Minute }
func (m *configModule) Configure(cfg map[string]string) error {
	m.got = cfg
	return m.reject
}
func (m *configModule) Refresh(context.Context, bool) (RefreshResult, error) {
	return RefreshResult{}, nil
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	err := r.Register("Weather", func(Deps) Module {
		return &configModule{
			Base:     NewBase("Weather"),
			defaults: Defaults{Strategy: DefaultWithStoredExclusive, Template: map[string]string{"city": "Zurich"}},
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	err = r.Register("Picky", func(Deps) Module {
		return &configModule{Base: NewBase("Picky"), reject: errors.New("missing token")}
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()
	r := testRegistry(t)
	if err := r.Register("Weather", func(Deps) Module { return nil }); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if got := strings.Join(r.Names(), ","); got != "Picky,Weather" {
		t.Fatalf("Names = %s", got)
	}
}

func TestLoadSuffixesAndConfig(t *testing.T) {
	t.Parallel()
	r := testRegistry(t)
	loaded := r.Load([]Entry{
		{Name: "Weather", Enabled: true, Config: map[string]string{"city": "Bern", "extra": "dropped"}},
		{Name: "Weather", Enabled: false},
		{Name: "Weather", Enabled: true},
	}, Deps{})

	if len(loaded) != 2 {
		t.Fatalf("loaded %d modules, want 2", len(loaded))
	}
	if n := loaded[0].Module.Name(); n != "Weather_0" {
		t.Fatalf("first name = %s", n)
	}
	if n := loaded[1].Module.Name(); n != "Weather_1" {
		t.Fatalf("second name = %s", n)
	}
	first := loaded[0].Module.(*configModule).got
	if first["city"] != "Bern" || len(first) != 1 {
		t.Fatalf("merged config = %v", first)
	}
	if second := loaded[1].Module.(*configModule).got; second["city"] != "Zurich" {
		t.Fatalf("template fallback = %v", second)
	}
}

func TestLoadUnknownModuleBecomesErrorModule(t *testing.T) {
	t.Parallel()
	r := testRegistry(t)
	loaded := r.Load([]Entry{{Name: "Nope", Enabled: true}, {Name: "Nope", Enabled: true}}, Deps{})

	if len(loaded) != 2 {
		t.Fatalf("loaded %d", len(loaded))
	}
	if n := loaded[0].Module.Name(); n != "ErrorModule_Nope_0" {
		t.Fatalf("name = %s", n)
	}
	if n := loaded[1].Module.Name(); n != "ErrorModule_Nope_1" {
		t.Fatalf("name = %s", n)
	}
	em, ok := loaded[0].Module.(Scheduled)
	if !ok {
		t.Fatal("error module must be scheduled")
	}
	_, err := em.Refresh(context.Background(), true)
	if err == nil || err.Error() != "module Nope not found" {
		t.Fatalf("refresh err = %v", err)
	}
}

func TestLoadRejectedConfigBecomesErrorModule(t *testing.T) {
	t.Parallel()
	r := testRegistry(t)
	loaded := r.Load([]Entry{{Name: "Picky", Enabled: true}}, Deps{})
	em, ok := loaded[0].Module.(*ErrorModule)
	if !ok {
		t.Fatalf("got %T, want *ErrorModule", loaded[0].Module)
	}
	if !strings.Contains(em.Err().Error(), "missing token") {
		t.Fatalf("err = %v", em.Err())
	}
}
