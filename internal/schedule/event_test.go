package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "statusbar/pkg/logx"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }

func fixedNow(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestRetryLadder(t *testing.T) {
	t.Parallel()
	want := []int64{8, 13, 22, 36, 60, 100, 166, 275, 456, 757, 900, 900}

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := NewScheduledEvent("job", failing, TimeToSec(now))
	if e.RetryDelaySec() != 5 {
		t.Fatalf("initial retry delay = %d, want 5", e.RetryDelaySec())
	}
	for i, w := range want {
		if err := e.run(context.Background(), fixedNow(now), logx.Nop()); err == nil {
			t.Fatal("expected failure")
		}
		e.scheduleForRetry(now)
		if got := e.RetryDelaySec(); got != w {
			t.Fatalf("after %d failures delay = %d, want %d", i+1, got, w)
		}
		if e.RescheduleCount() != i+1 {
			t.Fatalf("reschedule count = %d, want %d", e.RescheduleCount(), i+1)
		}
	}

	e.work = func(context.Context) error { return nil }
	if err := e.run(context.Background(), fixedNow(now), logx.Nop()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if e.RetryDelaySec() != 5 || e.RescheduleCount() != 0 {
		t.Fatalf("after success delay=%d count=%d, want 5/0", e.RetryDelaySec(), e.RescheduleCount())
	}
}

func TestRetryPolicyCustomBounds(t *testing.T) {
	t.Parallel()
	p := RetryPolicy{BaseSec: 2, MaxSec: 10}.normalized()
	cur := p.BaseSec
	var got []int64
	for i := 0; i < 5; i++ {
		cur = p.NextDelay(cur)
		got = append(got, cur)
	}
	want := []int64{3, 5, 8, 10, 10}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ladder = %v, want %v", got, want)
		}
	}

	if n := (RetryPolicy{BaseSec: 30, MaxSec: 10}).normalized(); n.MaxSec != 30 {
		t.Fatalf("max below base not raised: %+v", n)
	}
	if n := (RetryPolicy{}).normalized(); n != DefaultRetryPolicy() {
		t.Fatalf("zero policy = %+v, want default", n)
	}
}

func TestScheduledEventEndsUnscheduled(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ran := false
	e := NewScheduledEvent("once", func(context.Context) error { ran = true; return nil }, TimeToSec(now))
	if err := e.run(context.Background(), fixedNow(now), logx.Nop()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !ran {
		t.Fatal("work not invoked")
	}
	if e.IsScheduled() {
		t.Fatalf("one-shot still scheduled at %d", e.NextRunSec())
	}
}

func TestOneShotRetryUsesNowPlusDelay(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := NewScheduledEvent("once", failing, TimeToSec(now))
	_ = e.run(context.Background(), fixedNow(now), logx.Nop())
	original := e.scheduleForRetry(now)
	if original != Unscheduled {
		t.Fatalf("original next run = %d, want unscheduled", original)
	}
	if want := TimeToSec(now) + 5; e.NextRunSec() != want {
		t.Fatalf("retry at %d, want %d", e.NextRunSec(), want)
	}
}

func TestRepeatableRetryNeverLaterThanNaturalSlot(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 1, 1, 10, 4, 0, 0, time.UTC)

	// Short backoff: retry wins.
	e := NewRepeatableEvent("rep", failing, 240, at.Add(-time.Minute))
	_ = e.run(context.Background(), fixedNow(at), logx.Nop())
	natural := e.NextRunSec()
	e.scheduleForRetry(at)
	if want := min(natural, TimeToSec(at)+5); e.NextRunSec() != want {
		t.Fatalf("retry at %d, want %d", e.NextRunSec(), want)
	}

	// Long backoff: the natural slot wins.
	e = NewRepeatableEvent("rep", failing, 240, at.Add(-time.Minute)).
		WithRetryPolicy(RetryPolicy{BaseSec: 600, MaxSec: 900})
	_ = e.run(context.Background(), fixedNow(at), logx.Nop())
	natural = e.NextRunSec()
	e.scheduleForRetry(at)
	if e.NextRunSec() != natural {
		t.Fatalf("retry at %d, want natural slot %d", e.NextRunSec(), natural)
	}
	if want := time.Date(2024, 1, 1, 10, 8, 0, 0, time.UTC); natural != TimeToSec(want) {
		t.Fatalf("natural slot = %s, want %s", SecToTime(natural, time.UTC), want)
	}
}

func TestEventRunRecoversPanic(t *testing.T) {
	t.Parallel()
	e := NewTickEvent("p", func(context.Context) error { panic("kaboom") })
	err := e.run(context.Background(), time.Now, logx.Nop())
	if !errors.Is(err, ErrWorkPanic) {
		t.Fatalf("err = %v, want ErrWorkPanic", err)
	}
}

func TestCompareEventsOrdersByTimeThenID(t *testing.T) {
	t.Parallel()
	a := NewScheduledEvent("a", nil, 10)
	b := NewScheduledEvent("b", nil, 10)
	c := NewScheduledEvent("c", nil, 5)
	if compareEvents(a, b) >= 0 {
		t.Fatal("a should sort before b at equal time")
	}
	if compareEvents(c, a) >= 0 {
		t.Fatal("earlier time should sort first")
	}
}
