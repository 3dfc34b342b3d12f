package schedule

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"statusbar/internal/eventbus"
	"statusbar/pkg/clock"
	logx "statusbar/pkg/logx"
)

// Bus event types published by the scheduler.
const (
	EventRun  = "schedule.run"
	EventTick = "schedule.tick"
)

const sentinelID = "__?# internal Scheduler last event #?__"

// Config controls the scheduler.
type Config struct {
	Timezone  string        // IANA TZ used for slot alignment; empty means Local
	RetryBase time.Duration // first retry delay; default 5s
	RetryMax  time.Duration // backoff ceiling; default 15m
}

// RunRecord describes one dispatched event run.
type RunRecord struct {
	RunID           string        `json:"run_id"`
	Tick            uint64        `json:"tick"`
	EventID         string        `json:"event_id"`
	Kind            string        `json:"kind"`
	Started         time.Time     `json:"started"`
	Duration        time.Duration `json:"duration"`
	Error           string        `json:"error,omitempty"`
	RetryAt         time.Time     `json:"retry_at,omitempty"`
	RescheduleCount int           `json:"reschedule_count,omitempty"`
}

// OK reports whether the run succeeded.
func (r RunRecord) OK() bool { return r.Error == "" }

// TickRecord describes one settled tick.
type TickRecord struct {
	Tick       uint64        `json:"tick"`
	Started    time.Time     `json:"started"`
	Duration   time.Duration `json:"duration"`
	TickEvents int           `json:"tick_events"`
	Due        int           `json:"due"`
}

// Scheduler owns the tick-event set and the time-ordered event queue.
//
// Both collections are guarded by mu. Work never runs under mu, so work may
// register events (self re-arm, forced refresh).
type Scheduler struct {
	mu sync.Mutex

	cfg    Config
	loc    *time.Location
	policy RetryPolicy
	clk    clock.Clock
	log    logx.Logger
	bus    eventbus.Bus
	parser cron.Parser

	tickEvents []*Event
	// scheduled is sorted by compareEvents and always ends with sentinel.
	scheduled []*Event
	sentinel  *Event
	// inflight holds events popped by the running tick. A registration with
	// the same id removes the entry, so the stale event is not re-inserted.
	inflight map[string]*Event
	ticks    uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a scheduler. Nothing ticks until Start.
func New(cfg Config, clk clock.Clock, log logx.Logger, bus eventbus.Bus) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if clk == nil {
		clk = clock.New()
	}
	s := &Scheduler{
		cfg: cfg,
		clk: clk,
		log: log,
		bus: bus,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:   cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		inflight: map[string]*Event{},
	}
	s.loc = s.loadLocation()
	s.policy = policyFromConfig(cfg)
	s.sentinel = NewScheduledEvent(sentinelID, func(context.Context) error { return nil }, EpochFuture)
	s.scheduled = []*Event{s.sentinel}
	return s
}

func policyFromConfig(cfg Config) RetryPolicy {
	return RetryPolicy{
		BaseSec: int64(cfg.RetryBase / time.Second),
		MaxSec:  int64(cfg.RetryMax / time.Second),
	}.normalized()
}

func (s *Scheduler) loadLocation() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Apply swaps timezone and retry policy. Queued events keep their current
// next run; new policy applies to events registered afterwards.
func (s *Scheduler) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.loc = s.loadLocation()
	s.policy = policyFromConfig(cfg)
}

// Location is the zone used for slot alignment.
func (s *Scheduler) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

func (s *Scheduler) now() time.Time {
	s.mu.Lock()
	loc := s.loc
	s.mu.Unlock()
	return s.clk.Now().In(loc)
}

// Add registers e, replacing any event with the same id.
//
// Adding a scheduled event that is not armed is a programming error: it is
// logged and the event is still accepted.
func (s *Scheduler) Add(e *Event) {
	if e == nil {
		s.log.Error("scheduler: invalid event", logx.String("event", "<nil>"))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(e, logx.LevelInfo)
}

func (s *Scheduler) addLocked(e *Event, level logx.Level) {
	if e.id == sentinelID && e != s.sentinel {
		s.log.Error("scheduler: reserved event id", logx.String("event", e.id))
		return
	}
	if !e.hasPolicy {
		e.setPolicy(s.policy)
	}
	if cur, ok := s.inflight[e.id]; ok {
		if cur == e {
			// reinsert queues it once run has settled nextRun.
			s.logAt(level, "scheduler add deferred until run settles", logx.String("event", e.id))
			return
		}
		delete(s.inflight, e.id)
	}

	switch e.kind {
	case KindScheduled, KindRepeatable:
		if !e.IsScheduled() {
			s.log.Error("scheduler: cannot add non scheduled event", logx.String("event", e.describe(s.loc)))
		}
		s.removeTickLocked(e.id)
		if i := slices.IndexFunc(s.scheduled, func(x *Event) bool { return x.id == e.id }); i >= 0 {
			s.logAt(level, "scheduler replace", logx.String("old", s.scheduled[i].describe(s.loc)), logx.String("new", e.describe(s.loc)))
			s.scheduled[i] = e
		} else {
			s.logAt(level, "scheduler add", logx.String("event", e.describe(s.loc)))
			s.scheduled = append(s.scheduled, e)
		}
		slices.SortFunc(s.scheduled, compareEvents)
	case KindTick:
		s.removeScheduledLocked(e.id)
		if i := slices.IndexFunc(s.tickEvents, func(x *Event) bool { return x.id == e.id }); i >= 0 {
			s.logAt(level, "scheduler replace", logx.String("old", s.tickEvents[i].describe(s.loc)), logx.String("new", e.describe(s.loc)))
			s.tickEvents[i] = e
		} else {
			s.logAt(level, "scheduler add", logx.String("event", e.describe(s.loc)))
			s.tickEvents = append(s.tickEvents, e)
		}
	default:
		s.log.Error("scheduler: invalid event", logx.String("event", e.id), logx.String("kind", e.kind.String()))
	}
}

// removeScheduledLocked drops id from the queue; the sentinel is never removed.
func (s *Scheduler) removeScheduledLocked(id string) {
	if id == sentinelID {
		return
	}
	s.scheduled = slices.DeleteFunc(s.scheduled, func(x *Event) bool { return x.id == id })
}

// Remove drops every event registered under id, including one currently
// running (it is not re-inserted). It reports whether anything was removed.
func (s *Scheduler) Remove(id string) bool {
	if id == sentinelID {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.scheduled) + len(s.tickEvents)
	s.removeScheduledLocked(id)
	s.removeTickLocked(id)
	_, running := s.inflight[id]
	delete(s.inflight, id)
	removed := running || n != len(s.scheduled)+len(s.tickEvents)
	if removed {
		s.log.Info("scheduler remove", logx.String("event", id))
	}
	return removed
}

func (s *Scheduler) removeTickLocked(id string) {
	s.tickEvents = slices.DeleteFunc(s.tickEvents, func(x *Event) bool { return x.id == id })
}

func (s *Scheduler) logAt(level logx.Level, msg string, fields ...logx.Field) {
	switch level {
	case logx.LevelInfo:
		s.log.Info(msg, fields...)
	default:
		s.log.Debug(msg, fields...)
	}
}

// Start launches the tick loop. The first tick fires at the next whole
// second. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}
	if prev := s.done; prev != nil {
		// A loop abandoned by a timed out Stop must end before another starts.
		select {
		case <-prev:
		default:
			s.log.Warn("scheduler start waiting for previous loop")
			select {
			case <-prev:
			case <-ctx.Done():
				return
			}
		}
		s.done = nil
	}
	lctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(lctx, s.done)
	s.log.Info("scheduler started", logx.String("tz", s.Location().String()))
}

// Stop cancels the loop and waits for the running tick to settle or ctx to end.
// When ctx ends first the loop is still tracked, so a later Start waits for it.
func (s *Scheduler) Stop(ctx context.Context) {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
		s.runMu.Lock()
		if s.done == done {
			s.done = nil
		}
		s.runMu.Unlock()
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; tick still running", logx.Err(ctx.Err()))
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		// Recomputed from the real clock every time: host timers drift and
		// may be delayed arbitrarily (e.g. suspend).
		t := s.clk.NewTimer(untilNextSecond(s.clk.Now()))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C():
		}
		s.tick(ctx)
	}
}

// tick runs one heartbeat: every tick event concurrently, then every due
// scheduled event in queue order, then re-inserts whatever re-armed.
func (s *Scheduler) tick(ctx context.Context) {
	started := s.clk.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("unexpected panic in scheduler - this is a bug",
				logx.Any("panic", r), logx.Stack(logx.StackTrace(3, 16)))
		}
	}()

	tickNo, ticking, due := s.popDue(TimeToSec(started))

	var wg sync.WaitGroup
	for _, e := range ticking {
		wg.Add(1)
		go func(e *Event) {
			defer wg.Done()
			// Failures are logged by run; tick events simply go again next tick.
			s.dispatch(ctx, tickNo, e)
		}(e)
	}
	wg.Wait()

	for _, e := range due {
		s.dispatch(ctx, tickNo, e)
	}

	s.reinsert(due)

	rec := TickRecord{
		Tick:       tickNo,
		Started:    started,
		Duration:   s.clk.Now().Sub(started),
		TickEvents: len(ticking),
		Due:        len(due),
	}
	if rec.Due > 0 {
		s.log.Trace("tick settled", logx.Uint64("tick", rec.Tick), logx.Int("due", rec.Due), logx.Duration("took", rec.Duration))
	}
	s.publish(EventTick, rec)
}

// popDue removes the due prefix of the queue and snapshots the tick events.
// The sentinel bounds the scan, so no length check is needed.
func (s *Scheduler) popDue(nowSec int64) (uint64, []*Event, []*Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for s.scheduled[n] != s.sentinel && s.scheduled[n].nextRun <= nowSec {
		n++
	}
	due := slices.Clone(s.scheduled[:n])
	s.scheduled = slices.Delete(s.scheduled, 0, n)
	for _, e := range due {
		s.inflight[e.id] = e
	}
	s.ticks++
	return s.ticks, slices.Clone(s.tickEvents), due
}

// reinsert puts back popped events that re-armed themselves, unless a newer
// registration for the same id arrived while they ran.
func (s *Scheduler) reinsert(due []*Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range due {
		if s.inflight[e.id] != e {
			continue
		}
		delete(s.inflight, e.id)
		if e.IsScheduled() {
			s.addLocked(e, logx.LevelDebug)
		}
	}
}

// dispatch runs e once and, for scheduled kinds, applies retry on failure.
func (s *Scheduler) dispatch(ctx context.Context, tickNo uint64, e *Event) {
	started := s.clk.Now()
	var done func(...logx.Field)
	if e.kind != KindTick {
		done = s.log.Timer(logx.LevelDebug, "event run", logx.String("event", e.id))
	}
	err := e.run(ctx, s.now, s.log)

	rec := RunRecord{
		RunID:   uuid.NewString(),
		Tick:    tickNo,
		EventID: e.id,
		Kind:    e.kind.String(),
		Started: started,
	}
	if err != nil {
		rec.Error = err.Error()
		if e.kind != KindTick {
			now := s.now()
			original := e.scheduleForRetry(now)
			rec.RetryAt = SecToTime(e.nextRun, now.Location())
			rec.RescheduleCount = e.rescheduleCount
			s.log.Info("rescheduling",
				logx.String("event", e.id),
				logx.Int("retry", e.rescheduleCount),
				logx.String("original_next_run", formatSec(original, now.Location())),
				logx.String("retry_at", formatSec(e.nextRun, now.Location())),
				logx.Int64("next_retry_delay_sec", e.retryDelay),
			)
		}
	}
	rec.Duration = s.clk.Now().Sub(started)
	if done != nil {
		done(logx.Bool("ok", err == nil))
	}
	s.publish(EventRun, rec)
}

func (s *Scheduler) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clk.Now(), Data: data})
}
