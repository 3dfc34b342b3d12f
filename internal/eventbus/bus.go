// Package eventbus fans scheduler and bar signals out to observers (run
// history, metrics, debug logging) without letting a slow observer stall
// the tick loop.
package eventbus

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus delivers each published event to every matching subscriber whose
// buffer has room. Publish never blocks.
type Bus interface {
	Publish(e Event)
	// Subscribe delivers events whose Type is in types, or every event when
	// types is empty.
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
	// Dropped reports how many deliveries were lost to full buffers.
	Dropped() uint64
}

const defaultBuffer = 8

func New() Bus { return &bus{} }

type sub struct {
	ch    chan Event
	types []string
}

type bus struct {
	mu      sync.RWMutex
	subs    []*sub
	dropped atomic.Uint64
}

// Publish sends under the read lock. Sends never block, and unsubscribe
// takes the write lock before closing, so a send never hits a closed channel.
func (b *bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if len(s.types) > 0 && !slices.Contains(s.types, e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *bus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &sub{ch: make(chan Event, buffer), types: slices.Clone(types)}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			b.subs = slices.DeleteFunc(b.subs, func(x *sub) bool { return x == s })
			b.mu.Unlock()
			close(s.ch)
		})
	}
}

func (b *bus) Dropped() uint64 { return b.dropped.Load() }
