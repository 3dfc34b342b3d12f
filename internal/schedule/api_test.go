package schedule

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRepeatRejectsBadIntervals(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, t0)
	noop := func(context.Context) error { return nil }

	if err := s.Repeat("neg", noop, -time.Second); !errors.Is(err, ErrNegativeInterval) {
		t.Fatalf("negative interval err = %v", err)
	}
	if err := s.Repeat("frac", noop, 1500*time.Millisecond); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("fractional interval err = %v", err)
	}
	if err := s.Repeat(" ", noop, time.Second); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("empty id err = %v", err)
	}
	if s.Len() != 1 || len(s.Snapshot().TickEvents) != 0 {
		t.Fatal("rejected registrations must not be queued")
	}
}

func TestOnceAndAt(t *testing.T) {
	t.Parallel()
	s, clk := newTestScheduler(t, t0)
	rec := &recorder{}

	s.Once("soon", rec.work("soon"), 3*time.Second)
	s.At("later", rec.work("later"), t0.Add(10*time.Second))
	if got := findScheduled(s, "soon").NextRunSec(); got != TimeToSec(t0)+3 {
		t.Fatalf("once armed at %d", got)
	}

	clk.Add(3 * time.Second)
	s.tick(context.Background())
	if got := rec.got(); len(got) != 1 || got[0] != "soon" {
		t.Fatalf("ran %v, want [soon]", got)
	}
	if findScheduled(s, "soon") != nil {
		t.Fatal("one-shot must not be re-queued after success")
	}

	clk.Add(7 * time.Second)
	s.tick(context.Background())
	if rec.count("later") != 1 {
		t.Fatal("At event did not run")
	}
}

func TestCronRearmsOnSuccess(t *testing.T) {
	t.Parallel()
	s, clk := newTestScheduler(t, t0)
	rec := &recorder{}

	if err := s.Cron("c", "*/10 * * * * *", rec.work("c")); err != nil {
		t.Fatalf("Cron: %v", err)
	}
	if got := findScheduled(s, "c").NextRunSec(); got != TimeToSec(t0)+10 {
		t.Fatalf("first cron run at %d, want +10", got-TimeToSec(t0))
	}

	clk.Add(10 * time.Second)
	s.tick(context.Background())
	if rec.count("c") != 1 {
		t.Fatal("cron work did not run")
	}
	if got := findScheduled(s, "c"); got == nil || got.NextRunSec() != TimeToSec(t0)+20 {
		t.Fatal("cron not re-armed at the next slot")
	}
}

func TestCronFailureBacksOffThenRearms(t *testing.T) {
	t.Parallel()
	s, clk := newTestScheduler(t, t0)
	fail := true
	if err := s.Cron("c", "@hourly", func(context.Context) error {
		if fail {
			return errBoom
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	clk.Set(t0.Add(time.Hour))
	s.tick(context.Background())
	e := findScheduled(s, "c")
	if e == nil || e.NextRunSec() != TimeToSec(t0.Add(time.Hour))+5 {
		t.Fatal("failed cron run should retry after the base delay")
	}

	fail = false
	clk.Add(5 * time.Second)
	s.tick(context.Background())
	e = findScheduled(s, "c")
	if e == nil || e.NextRunSec() != TimeToSec(t0.Add(2*time.Hour)) {
		t.Fatal("cron should re-arm at the next hour once a retry succeeds")
	}
	if e.RescheduleCount() != 0 {
		t.Fatalf("re-armed cron carries reschedule count %d", e.RescheduleCount())
	}
}

func TestCronInvalidSpec(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, t0)
	if err := s.Cron("c", "not a cron", nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAddSchedule(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, t0.Add(time.Minute))
	noop := func(context.Context) error { return nil }

	if err := s.AddSchedule("t", "tick", noop); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSchedule("i", "4m", noop); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSchedule("c", "@hourly", noop); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSchedule("bad", "soon", noop); err == nil {
		t.Fatal("expected error for bad schedule")
	}

	snap := s.Snapshot()
	if len(snap.TickEvents) != 1 || snap.TickEvents[0].ID != "t" {
		t.Fatalf("tick events = %+v", snap.TickEvents)
	}
	if len(snap.Scheduled) != 2 || snap.Scheduled[0].ID != "i" || snap.Scheduled[1].ID != "c" {
		t.Fatalf("scheduled = %+v", snap.Scheduled)
	}
	if snap.Scheduled[0].IntervalSec != 240 || snap.Timezone != "UTC" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestBindCapturesArgument(t *testing.T) {
	t.Parallel()
	type target struct{ name string }
	var seen string
	w := Bind(func(_ context.Context, tg target) error {
		seen = tg.name
		return nil
	}, target{name: "clock"})

	if err := w(context.Background()); err != nil {
		t.Fatal(err)
	}
	if seen != "clock" {
		t.Fatalf("bound arg = %q", seen)
	}
}
