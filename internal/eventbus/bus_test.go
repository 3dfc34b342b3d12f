package eventbus

import "testing"

func TestSubscribeFiltersByType(t *testing.T) {
	b := New()
	runs, unsub := b.Subscribe(4, "schedule.run")
	defer unsub()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()

	b.Publish(Event{Type: "schedule.tick"})
	b.Publish(Event{Type: "schedule.run", Data: "x"})

	e := <-runs
	if e.Type != "schedule.run" || e.Data != "x" {
		t.Fatalf("unexpected event %+v", e)
	}
	select {
	case extra := <-runs:
		t.Fatalf("filtered subscriber got %+v", extra)
	default:
	}
	if len(all) != 2 {
		t.Fatalf("unfiltered subscriber has %d events, want 2", len(all))
	}
	if e.Time.IsZero() {
		t.Fatal("Publish should stamp Time")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if b.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", b.Dropped())
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish(Event{Type: "after"})
}
