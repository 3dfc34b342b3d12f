package bar

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"statusbar/internal/eventbus"
	"statusbar/internal/module"
	"statusbar/pkg/clock"
	logx "statusbar/pkg/logx"
)

func newTestBar(out io.Writer, bus eventbus.Bus) *Bar {
	clk := clock.NewMock(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	b := New(Config{Enabled: true, ModuleSeparator: " | ", ItemSeparator: ", "}, out, bus, logx.Nop(), clk)
	b.SetModules([]string{"clock_0", "mail_0", "cal_0"})
	return b
}

func render(t *testing.T, b *Bar, name string, items []module.Item, err error) {
	t.Helper()
	if rerr := b.Render(context.Background(), name, items, err); rerr != nil {
		t.Fatalf("Render: %v", rerr)
	}
}

func TestLineKeepsModuleOrderAndHidesEmpty(t *testing.T) {
	t.Parallel()
	b := newTestBar(nil, nil)
	render(t, b, "cal_0", []module.Item{{Value: "standup"}}, nil)
	render(t, b, "clock_0", []module.Item{{Value: "10:00:00"}}, nil)
	render(t, b, "mail_0", nil, nil)

	if got, want := b.Line(false), "10:00:00 | standup"; got != want {
		t.Fatalf("Line = %q, want %q", got, want)
	}
}

func TestExtensionRules(t *testing.T) {
	t.Parallel()
	b := newTestBar(nil, nil)

	render(t, b, "clock_0", []module.Item{{Value: "10:00:00", Extension: module.Details("tok: 19:00", "utc: 10:00")}}, nil)
	if got, want := b.Line(true), "10:00:00, tok: 19:00, utc: 10:00"; got != want {
		t.Fatalf("details: %q, want %q", got, want)
	}

	// No extension keeps the previous one.
	render(t, b, "clock_0", []module.Item{{Value: "10:00:01"}}, nil)
	if got, want := b.Line(true), "10:00:01, tok: 19:00, utc: 10:00"; got != want {
		t.Fatalf("keep: %q, want %q", got, want)
	}
	if got := b.Line(false); got != "10:00:01" {
		t.Fatalf("compact: %q", got)
	}

	render(t, b, "clock_0", []module.Item{{Value: "10:00:02", Extension: module.Clear()}}, nil)
	if got := b.Line(true); got != "10:00:02" {
		t.Fatalf("clear: %q", got)
	}

	render(t, b, "cal_0", []module.Item{module.TruncateItem("Quarterly planning", 10)}, nil)
	snap := b.Snapshot()
	cal := snap.Modules[2].Boxes[0]
	if cal.Text != "Quarterly"+module.Ellipsis || cal.Expanded != "Quarterly planning" {
		t.Fatalf("truncated box = %+v", cal)
	}
}

func TestErrorReplacesBoxes(t *testing.T) {
	t.Parallel()
	b := newTestBar(nil, nil)
	render(t, b, "mail_0", []module.Item{
		{Value: "3 unread", Extension: module.Details("boss")},
		{Value: "1 flagged"},
	}, nil)
	render(t, b, "mail_0", nil, errors.New("imap timeout"))

	snap := b.Snapshot()
	boxes := snap.Modules[1].Boxes
	if len(boxes) != 1 || !boxes[0].Error || boxes[0].Expanded != "imap timeout" {
		t.Fatalf("error boxes = %+v", boxes)
	}
	if snap.Line != "[imap timeout]" {
		t.Fatalf("Line = %q", snap.Line)
	}

	// Recovery does not resurrect the old extension.
	render(t, b, "mail_0", []module.Item{{Value: "0 unread"}}, nil)
	if got := b.Line(true); got != "0 unread" {
		t.Fatalf("after recovery: %q", got)
	}
}

func TestUrgentWinsOverImportant(t *testing.T) {
	t.Parallel()
	b := newTestBar(nil, nil)
	render(t, b, "cal_0", []module.Item{{Value: "now", Urgent: true, Important: true}}, nil)
	snap := b.Snapshot()
	bx := snap.Modules[2].Boxes[0]
	if !bx.Urgent || bx.Important {
		t.Fatalf("box = %+v", bx)
	}
	if snap.Line != "!now" {
		t.Fatalf("Line = %q", snap.Line)
	}
}

func TestRenderPublishesAndAppendsUnknown(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4, EventRender)
	defer unsub()
	b := newTestBar(nil, bus)

	render(t, b, "late_0", []module.Item{{Value: "x"}}, nil)
	select {
	case ev := <-ch:
		if rec := ev.Data.(RenderRecord); rec.Module != "late_0" || rec.Items != 1 {
			t.Fatalf("record = %+v", rec)
		}
	default:
		t.Fatal("no render event")
	}
	if snap := b.Snapshot(); snap.Modules[len(snap.Modules)-1].Name != "late_0" {
		t.Fatalf("unknown module not appended: %+v", snap.Modules)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func TestRunRedrawsOnRender(t *testing.T) {
	t.Parallel()
	out := &lockedBuffer{}
	b := New(Config{Enabled: true, MaxRedrawPerSec: 100}, out, nil, logx.Nop(), nil)
	b.SetModules([]string{"clock_0"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	render(t, b, "clock_0", []module.Item{{Value: "10:00:00"}}, nil)
	for !strings.Contains(out.String(), "10:00:00\n") {
		select {
		case <-ctx.Done():
			t.Fatalf("no redraw, output %q", out.String())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestFlushWritesLine(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	b := newTestBar(&out, nil)
	render(t, b, "clock_0", []module.Item{{Value: "10:00:00"}}, nil)
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "10:00:00\n" {
		t.Fatalf("output %q", out.String())
	}
}
