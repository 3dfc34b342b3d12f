package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestErrorCancelsSiblings(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")

	sawCancel := make(chan struct{})
	s.Go0("sibling", func(ctx context.Context) {
		<-ctx.Done()
		close(sawCancel)
	})
	s.Go("failing", func(context.Context) error { return boom })

	select {
	case <-sawCancel:
	case <-time.After(2 * time.Second):
		t.Fatal("sibling was not canceled")
	}
	err := s.Wait(waitCtx(t))
	if !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, want %v", err, boom)
	}
	if !strings.HasPrefix(err.Error(), "failing:") {
		t.Fatalf("error %q not prefixed with loop name", err)
	}
}

func TestErrorWithoutCancelKeepsRunning(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("failing", func(context.Context) error { return errors.New("x") })

	deadline := time.Now().Add(2 * time.Second)
	for s.Err() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Err() == nil {
		t.Fatal("error not recorded")
	}
	if s.Context().Err() != nil {
		t.Fatal("context canceled without WithCancelOnError")
	}
	s.Cancel()
}

func TestPanicBecomesError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	s.Go0("panicky", func(context.Context) { panic("kaboom") })

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("panic did not cancel the supervisor")
	}
	err := s.Wait(waitCtx(t))
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("Wait = %v, want panic error", err)
	}
}

func TestCanceledIsCleanStop(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := s.Stop(waitCtx(t)); err != nil {
		t.Fatalf("Stop = %v, want nil", err)
	}
}

func TestFirstErrorWins(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	first := errors.New("first")
	done := make(chan struct{})
	s.Go("a", func(context.Context) error { defer close(done); return first })
	<-done
	s.Go("b", func(context.Context) error { return errors.New("second") })
	if err := s.Stop(waitCtx(t)); !errors.Is(err, first) {
		t.Fatalf("Stop = %v, want %v", err, first)
	}
}

func TestCounters(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	release := make(chan struct{})
	for i := 0; i < 2; i++ {
		s.Go0("worker", func(context.Context) { <-release })
	}
	s.Go0("other", func(context.Context) { <-release })

	c := s.Counters()
	if c.Started != 3 || c.Active != 3 {
		t.Fatalf("Counters = %+v, want 3 started and active", c)
	}
	if c.Running["worker"] != 2 || c.Running["other"] != 1 {
		t.Fatalf("Running = %v", c.Running)
	}

	close(release)
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	c = s.Counters()
	if c.Active != 0 || len(c.Running) != 0 || c.Started != 3 {
		t.Fatalf("after Wait: %+v", c)
	}
}

func TestWaitTimesOut(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	release := make(chan struct{})
	defer close(release)
	s.Go0("stuck", func(context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}
}

func TestNilCounters(t *testing.T) {
	t.Parallel()
	var s *Supervisor
	if c := s.Counters(); c.Started != 0 || c.Running != nil {
		t.Fatalf("nil Counters = %+v", c)
	}
}
