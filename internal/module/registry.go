package module

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"statusbar/pkg/clock"
	logx "statusbar/pkg/logx"
)

// Deps are handed to every module constructor.
type Deps struct {
	Clock    clock.Clock
	Location *time.Location
	Log      logx.Logger
	// Life ends when the module instance is retired. Work a module starts
	// on its own, outside a refresh, should derive from it.
	Life context.Context
}

// Constructor builds a fresh, unconfigured module.
type Constructor func(deps Deps) Module

// Registry maps module type names to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: map[string]Constructor{}}
}

// Register adds a constructor. Registering a name twice is an error.
func (r *Registry) Register(name string, c Constructor) error {
	if name == "" || c == nil {
		return fmt.Errorf("module registry: name and constructor required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ctors[name]; ok {
		return fmt.Errorf("module registry: %s already registered", name)
	}
	r.ctors[name] = c
	return nil
}

// Names lists registered module types, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lookup(name string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.ctors[name]
	return c, ok
}

// Entry is one configured module instance.
type Entry struct {
	Name     string
	Enabled  bool
	Schedule string
	Timeout  time.Duration
	Config   map[string]string
}

// Loaded pairs a ready module with the entry it came from.
type Loaded struct {
	Module Module
	Entry  Entry
}

// Load instantiates enabled entries in order.
//
// An unknown name, or a config the module rejects, yields an ErrorModule so
// the failure shows up in the bar instead of taking the other modules down.
// Every module gets a "_N" suffix, N counting instances of the same name.
func (r *Registry) Load(entries []Entry, deps Deps) []Loaded {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Life == nil {
		deps.Life = context.Background()
	}

	seen := map[string]int{}
	out := make([]Loaded, 0, len(entries))
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		var m Module
		if c, ok := r.lookup(e.Name); ok {
			m = c(deps)
		} else {
			err := fmt.Errorf("module %s not found", e.Name)
			deps.Log.Warn("module not found", logx.String("module", e.Name), logx.Strings("known", r.Names()))
			m = NewErrorModule(e.Name, err)
		}

		n := seen[m.Name()]
		seen[m.Name()] = n + 1
		m.AddNameSuffix(strconv.Itoa(n))

		if err := m.Configure(m.Defaults().Merge(e.Config)); err != nil {
			deps.Log.Warn("module config rejected", logx.String("module", m.Name()), logx.Err(err))
			em := NewErrorModule(e.Name, fmt.Errorf("module %s: config: %w", m.Name(), err))
			em.AddNameSuffix(strconv.Itoa(n))
			m = em
		}
		out = append(out, Loaded{Module: m, Entry: e})
	}
	return out
}

// ErrorModule stands in for a module that could not be loaded. Its refresh
// always fails with the load error.
type ErrorModule struct {
	Base
	err error
}

// errorModuleInterval keeps the error module out of the way; the initial
// forced render already shows the error.
const errorModuleInterval = 9999 * time.Minute

func NewErrorModule(name string, err error) *ErrorModule {
	m := &ErrorModule{Base: NewBase("ErrorModule"), err: err}
	m.AddNameSuffix(name)
	return m
}

func (m *ErrorModule) Defaults() Defaults {
	return Defaults{Strategy: DefaultWithStoredExclusive}
}

func (m *ErrorModule) Configure(map[string]string) error { return nil }

func (m *ErrorModule) Interval() time.Duration { return errorModuleInterval }

func (m *ErrorModule) Refresh(context.Context, bool) (RefreshResult, error) {
	return RefreshResult{}, m.err
}

func (m *ErrorModule) Err() error { return m.err }
