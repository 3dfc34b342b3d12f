package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"statusbar/internal/bar"
	"statusbar/internal/eventbus"
	"statusbar/internal/schedule"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	b, _ := io.ReadAll(w.Body)
	return string(b)
}

func TestNew(t *testing.T) {
	t.Parallel()
	m := New(nil)
	if m == nil {
		t.Fatal("New returned nil")
	}
	if m.RunsTotal == nil || m.TickDuration == nil || m.RendersTotal == nil {
		t.Error("collectors not initialized")
	}
	// Two instances must not collide.
	_ = New(nil)
}

func TestRecordRunAndTick(t *testing.T) {
	t.Parallel()
	m := New(func() uint64 { return 7 })

	m.RecordRun(schedule.RunRecord{EventID: "clock", Kind: "tick", Duration: time.Millisecond})
	m.RecordRun(schedule.RunRecord{EventID: "date", Kind: "repeatable", Error: "boom", RescheduleCount: 1})
	m.RecordTick(schedule.TickRecord{Tick: 1, Duration: time.Millisecond, TickEvents: 2, Due: 3})
	m.RecordRender(bar.RenderRecord{Module: "DateModule", Error: "boom"})
	m.RecordHTTPRequest(http.MethodGet, "/bar", 200, time.Millisecond)

	body := scrape(t, m)
	for _, want := range []string{
		`statusbar_runs_total{event="clock",kind="tick",status="success"} 1`,
		`statusbar_runs_total{event="date",kind="repeatable",status="failed"} 1`,
		`statusbar_retries_total{event="date"} 1`,
		`statusbar_ticks_total 1`,
		`statusbar_due_events 3`,
		`statusbar_tick_events 2`,
		`statusbar_renders_total{module="DateModule",status="error"} 1`,
		`statusbar_bus_dropped_events 7`,
		`statusbar_http_requests_total{method="GET",path="/bar",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestRunConsumesBus(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	m := New(bus.Dropped)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx, bus)
		close(done)
	}()

	// Subscription happens inside Run; publish until one is observed.
	deadline := time.Now().Add(2 * time.Second)
	for strings.Contains(scrape(t, m), "statusbar_ticks_total 0\n") {
		if time.Now().After(deadline) {
			t.Fatal("tick record never observed")
		}
		bus.Publish(eventbus.Event{Type: schedule.EventTick, Data: schedule.TickRecord{Tick: 1}})
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
