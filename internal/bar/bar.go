// Package bar keeps the latest rendered items of every module and draws
// them as a one-line text strip.
//
// Rules carried over from the item model:
//   - an item without an extension keeps the one shown before at its position
//   - a Clear extension removes it
//   - a refresh error replaces the module's boxes with a single error box
//   - a module with no items is hidden along with its separator
package bar

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"statusbar/internal/eventbus"
	"statusbar/internal/module"
	"statusbar/pkg/clock"
	logx "statusbar/pkg/logx"
)

// EventRender is published on the bus after every render call.
const EventRender = "bar.render"

const (
	DefaultModuleSeparator = " • "
	DefaultItemSeparator   = " ◦ "
	defaultRedrawPerSec    = 4
)

type Config struct {
	Enabled         bool
	MaxRedrawPerSec float64
	// ModuleSeparator goes between modules, ItemSeparator between the items
	// of one module and in front of every detail.
	ModuleSeparator string
	ItemSeparator   string
}

// RenderRecord is the payload of EventRender.
type RenderRecord struct {
	Module string `json:"module"`
	Items  int    `json:"items"`
	Error  string `json:"error,omitempty"`
}

// box is the state of one displayed item.
type box struct {
	text      string
	ext       string
	href      string
	classes   []string
	important bool
	urgent    bool
	err       bool
}

func (b box) expanded() string {
	if b.ext == "" {
		return b.text
	}
	return strings.TrimSuffix(b.text, module.Ellipsis) + b.ext
}

type slot struct {
	name    string
	boxes   []box
	updated time.Time
}

// Bar is safe for concurrent use; modules render from scheduler goroutines.
type Bar struct {
	mu      sync.Mutex
	cfg     Config
	slots   []*slot
	byName  map[string]*slot
	renders uint64

	out     io.Writer
	limiter *rate.Limiter
	kick    chan struct{}
	bus     eventbus.Bus
	log     logx.Logger
	clk     clock.Clock
}

func New(cfg Config, out io.Writer, bus eventbus.Bus, log logx.Logger, clk clock.Clock) *Bar {
	if log.IsZero() {
		log = logx.Nop()
	}
	if clk == nil {
		clk = clock.New()
	}
	b := &Bar{
		byName: map[string]*slot{},
		out:    out,
		kick:   make(chan struct{}, 1),
		bus:    bus,
		log:    log,
		clk:    clk,
	}
	b.Apply(cfg)
	return b
}

func normalize(cfg Config) Config {
	if cfg.MaxRedrawPerSec <= 0 {
		cfg.MaxRedrawPerSec = defaultRedrawPerSec
	}
	if cfg.ModuleSeparator == "" {
		cfg.ModuleSeparator = DefaultModuleSeparator
	}
	if cfg.ItemSeparator == "" {
		cfg.ItemSeparator = DefaultItemSeparator
	}
	return cfg
}

// Apply swaps separators and the redraw rate.
func (b *Bar) Apply(cfg Config) {
	cfg = normalize(cfg)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg
	burst := int(cfg.MaxRedrawPerSec)
	if burst < 1 {
		burst = 1
	}
	if b.limiter == nil {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRedrawPerSec), burst)
		return
	}
	b.limiter.SetLimit(rate.Limit(cfg.MaxRedrawPerSec))
	b.limiter.SetBurst(burst)
}

// SetModules fixes the display order. Slots of modules not listed are
// dropped; listed modules keep what they last rendered.
func (b *Bar) SetModules(names []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	slots := make([]*slot, 0, len(names))
	byName := make(map[string]*slot, len(names))
	for _, n := range names {
		s, ok := b.byName[n]
		if !ok {
			s = &slot{name: n}
		}
		slots = append(slots, s)
		byName[n] = s
	}
	b.slots, b.byName = slots, byName
}

// Render implements module.RenderFunc.
func (b *Bar) Render(_ context.Context, name string, items []module.Item, err error) error {
	b.mu.Lock()
	s, ok := b.byName[name]
	if !ok {
		// Unknown modules are appended so nothing rendered gets lost.
		s = &slot{name: name}
		b.slots = append(b.slots, s)
		b.byName[name] = s
	}
	if err != nil {
		s.boxes = []box{{text: err.Error(), classes: []string{"error"}, err: true}}
	} else {
		s.boxes = b.applyItems(s.boxes, items)
	}
	s.updated = b.clk.Now()
	b.renders++
	b.mu.Unlock()

	rec := RenderRecord{Module: name, Items: len(items)}
	if err != nil {
		rec.Error = err.Error()
	}
	if b.bus != nil {
		b.bus.Publish(eventbus.Event{Type: EventRender, Time: b.clk.Now(), Data: rec})
	}

	select {
	case b.kick <- struct{}{}:
	default:
	}
	return nil
}

func (b *Bar) applyItems(prev []box, items []module.Item) []box {
	out := make([]box, len(items))
	for i, it := range items {
		var bx box
		if i < len(prev) && !prev[i].err {
			bx.ext = prev[i].ext
		}
		bx.text = it.Value
		bx.href = it.Href
		bx.classes = slices.Clone(it.ClassNames)
		bx.urgent = it.Urgent
		bx.important = it.Important && !it.Urgent

		switch it.Extension.Kind {
		case module.ExtClear:
			bx.ext = ""
		case module.ExtDetails:
			bx.ext = b.cfg.ItemSeparator + it.Extension.Text(it.Value, b.cfg.ItemSeparator)
		case module.ExtTruncated:
			bx.ext = it.Extension.Rest
		}
		out[i] = bx
	}
	return out
}

// Line draws the bar. expanded shows every extension.
func (b *Bar) Line(expanded bool) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lineLocked(expanded)
}

func (b *Bar) lineLocked(expanded bool) string {
	var sb strings.Builder
	first := true
	for _, s := range b.slots {
		if len(s.boxes) == 0 {
			continue
		}
		if !first {
			sb.WriteString(b.cfg.ModuleSeparator)
		}
		first = false
		for i, bx := range s.boxes {
			if i > 0 {
				sb.WriteString(b.cfg.ItemSeparator)
			}
			text := bx.text
			if expanded {
				text = bx.expanded()
			}
			if bx.err {
				text = "[" + text + "]"
			} else if bx.urgent {
				text = "!" + text
			}
			sb.WriteString(text)
		}
	}
	return sb.String()
}

// Run redraws the bar on out whenever something rendered, at most
// MaxRedrawPerSec times per second. Returns when ctx ends.
func (b *Bar) Run(ctx context.Context) error {
	b.mu.Lock()
	enabled, out := b.cfg.Enabled, b.out
	b.mu.Unlock()
	if !enabled || out == nil {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.kick:
		}
		if err := b.limiter.Wait(ctx); err != nil {
			return nil
		}
		if err := b.Flush(); err != nil {
			b.log.Warn("bar redraw failed", logx.Err(err))
		}
	}
}

// Flush writes the current line to out right away.
func (b *Bar) Flush() error {
	if b.out == nil {
		return nil
	}
	line := b.Line(false)
	_, err := fmt.Fprintln(b.out, line)
	return err
}
