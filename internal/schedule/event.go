package schedule

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	logx "statusbar/pkg/logx"
)

// Work is one unit of work. A returned error and a panic are both failures.
type Work func(ctx context.Context) error

// Kind tags the Event variant.
type Kind uint8

const (
	KindTick Kind = iota + 1
	KindScheduled
	KindRepeatable
)

func (k Kind) String() string {
	switch k {
	case KindTick:
		return "tick"
	case KindScheduled:
		return "scheduled"
	case KindRepeatable:
		return "repeatable"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

const (
	defaultRetryBaseSec int64 = 5
	defaultRetryMaxSec  int64 = 900

	// 1.659 yields a readable ladder: 5, 8, 13, 22, 36, 60, 100 ...
	retryGrowth = 1.659
)

// RetryPolicy bounds the backoff ladder, in seconds.
type RetryPolicy struct {
	BaseSec int64
	MaxSec  int64
}

// DefaultRetryPolicy is 5s growing to at most 15m.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseSec: defaultRetryBaseSec, MaxSec: defaultRetryMaxSec}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.BaseSec <= 0 {
		p.BaseSec = defaultRetryBaseSec
	}
	if p.MaxSec <= 0 {
		p.MaxSec = defaultRetryMaxSec
	}
	if p.MaxSec < p.BaseSec {
		p.MaxSec = p.BaseSec
	}
	return p
}

// NextDelay is the delay following cur on the ladder.
func (p RetryPolicy) NextDelay(cur int64) int64 {
	next := int64(math.Round(float64(cur) * retryGrowth))
	if next > p.MaxSec {
		return p.MaxSec
	}
	return next
}

// Event is a schedulable unit of work. Fields beyond id/kind/work are only
// meaningful for KindScheduled and KindRepeatable.
type Event struct {
	id   string
	kind Kind
	work Work

	nextRun         int64
	retryDelay      int64
	rescheduleCount int
	interval        int64
	policy          RetryPolicy
	hasPolicy       bool
}

// NewTickEvent returns an event run on every tick.
func NewTickEvent(id string, work Work) *Event {
	return newEvent(id, KindTick, work, Unscheduled, 0)
}

// NewScheduledEvent returns a one-shot event armed at atSec.
func NewScheduledEvent(id string, work Work, atSec int64) *Event {
	return newEvent(id, KindScheduled, work, atSec, 0)
}

// NewRepeatableEvent returns an event armed at the next wall-clock slot of
// intervalSec after now. now's location decides the slot grid.
func NewRepeatableEvent(id string, work Work, intervalSec int64, now time.Time) *Event {
	return newEvent(id, KindRepeatable, work, NextAlignedSec(now, intervalSec), intervalSec)
}

// newEvent starts on the default ladder; the scheduler swaps in its own
// policy on first Add unless WithRetryPolicy was used.
func newEvent(id string, kind Kind, work Work, nextRun, interval int64) *Event {
	p := DefaultRetryPolicy()
	return &Event{
		id:         id,
		kind:       kind,
		work:       work,
		nextRun:    nextRun,
		interval:   interval,
		policy:     p,
		retryDelay: p.BaseSec,
	}
}

// WithRetryPolicy overrides the scheduler's backoff ladder for this event.
func (e *Event) WithRetryPolicy(p RetryPolicy) *Event {
	e.setPolicy(p)
	return e
}

func (e *Event) setPolicy(p RetryPolicy) {
	e.policy = p.normalized()
	e.retryDelay = e.policy.BaseSec
	e.hasPolicy = true
}

func (e *Event) ID() string               { return e.id }
func (e *Event) Kind() Kind               { return e.kind }
func (e *Event) NextRunSec() int64        { return e.nextRun }
func (e *Event) IsScheduled() bool        { return e.nextRun != Unscheduled }
func (e *Event) RetryDelaySec() int64     { return e.retryDelay }
func (e *Event) RescheduleCount() int     { return e.rescheduleCount }
func (e *Event) IntervalSec() int64       { return e.interval }
func (e *Event) RetryPolicy() RetryPolicy { return e.policy }

func (e *Event) String() string {
	return e.describe(time.Local)
}

func (e *Event) describe(loc *time.Location) string {
	switch e.kind {
	case KindTick:
		return e.id + ", repeatable every 1s"
	case KindRepeatable:
		return fmt.Sprintf("%s: scheduled=%s, repeatable every %s", e.id, formatSec(e.nextRun, loc), time.Duration(e.interval)*time.Second)
	default:
		return fmt.Sprintf("%s: scheduled=%s", e.id, formatSec(e.nextRun, loc))
	}
}

// run performs the work once and applies the per-kind bookkeeping.
//
// Scheduled events always end unscheduled; repeatable events then compute
// their next slot from the time the run finished. Success resets backoff.
// The failure is logged here and returned so the caller applies retry policy.
func (e *Event) run(ctx context.Context, now func() time.Time, log logx.Logger) error {
	err := e.invoke(ctx)
	if err != nil {
		log.Error("event failed", logx.String("event", e.id), logx.String("kind", e.kind.String()), logx.Err(err))
	}

	switch e.kind {
	case KindScheduled, KindRepeatable:
		if err == nil {
			e.retryDelay = e.policy.BaseSec
			e.rescheduleCount = 0
		}
		e.nextRun = Unscheduled
		if e.kind == KindRepeatable {
			e.nextRun = NextAlignedSec(now(), e.interval)
		}
	}
	return err
}

func (e *Event) invoke(ctx context.Context) (err error) {
	if e.work == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkPanic, r)
		}
	}()
	return e.work(ctx)
}

// scheduleForRetry re-arms a failed event. The retry is never later than a
// next run the event already computed for itself. Returns the previous next
// run for logging.
func (e *Event) scheduleForRetry(now time.Time) int64 {
	retryAt := TimeToSec(now) + e.retryDelay
	original := e.nextRun
	if e.IsScheduled() {
		e.nextRun = min(retryAt, e.nextRun)
	} else {
		e.nextRun = retryAt
	}
	e.retryDelay = e.policy.NextDelay(e.retryDelay)
	e.rescheduleCount++
	return original
}

// compareEvents orders by next run, then id. Ids are unique in the queue,
// so this is a total order.
func compareEvents(a, b *Event) int {
	switch {
	case a.nextRun < b.nextRun:
		return -1
	case a.nextRun > b.nextRun:
		return 1
	}
	return strings.Compare(a.id, b.id)
}
