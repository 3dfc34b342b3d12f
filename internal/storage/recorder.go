package storage

import (
	"context"
	"time"

	"statusbar/internal/eventbus"
	"statusbar/internal/schedule"
	logx "statusbar/pkg/logx"
)

// Recorder persists schedule.run events published on the bus.
//
// Tick events run every second, so their successful runs are skipped
// unless RecordTicks is set; their failures are always kept.
type Recorder struct {
	store       Store
	bus         eventbus.Bus
	log         logx.Logger
	RecordTicks bool
}

func NewRecorder(store Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, bus: bus, log: log}
}

// Run consumes run records until ctx ends.
func (r *Recorder) Run(ctx context.Context) error {
	if r.store == nil || r.bus == nil {
		<-ctx.Done()
		return nil
	}
	ch, unsub := r.bus.Subscribe(256, schedule.EventRun)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			rec, ok := ev.Data.(schedule.RunRecord)
			if !ok {
				continue
			}
			if err := r.Record(ctx, rec); err != nil {
				r.log.Warn("run history append failed", logx.String("event", rec.EventID), logx.Err(err))
			}
		}
	}
}

// Record stores one run, applying the tick filter.
func (r *Recorder) Record(ctx context.Context, rec schedule.RunRecord) error {
	if rec.Kind == schedule.KindTick.String() && rec.OK() && !r.RecordTicks {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.store.AppendRun(wctx, EntryFromRecord(rec))
}

func EntryFromRecord(rec schedule.RunRecord) RunEntry {
	return RunEntry{
		RunID:           rec.RunID,
		Tick:            rec.Tick,
		EventID:         rec.EventID,
		Kind:            rec.Kind,
		Started:         rec.Started,
		TookMS:          rec.Duration.Milliseconds(),
		Error:           rec.Error,
		RetryAt:         rec.RetryAt,
		RescheduleCount: rec.RescheduleCount,
	}
}
