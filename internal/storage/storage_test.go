package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"statusbar/internal/schedule"
	logx "statusbar/pkg/logx"
)

var started = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

func entry(i int, failed bool) RunEntry {
	e := RunEntry{
		RunID:   fmt.Sprintf("run-%d", i),
		Tick:    uint64(i),
		EventID: fmt.Sprintf("ev-%d", i%2),
		Kind:    "repeatable",
		Started: started.Add(time.Duration(i) * time.Second),
		TookMS:  int64(i),
	}
	if failed {
		e.Error = "boom"
		e.RetryAt = e.Started.Add(5 * time.Second)
		e.RescheduleCount = 1
	}
	return e
}

func openStore(t *testing.T, driver string, keep int) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(Config{Driver: driver, Path: path, Keep: keep, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if st != nil || err != nil {
		t.Fatalf("disabled: %v %v", st, err)
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestStoresAppendAndQuery(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			st, _ := openStore(t, driver, 100)
			ctx := context.Background()
			for i := 0; i < 6; i++ {
				if err := st.AppendRun(ctx, entry(i, i%3 == 0)); err != nil {
					t.Fatalf("AppendRun: %v", err)
				}
			}

			got, err := st.RecentRuns(ctx, RunQuery{Limit: 2})
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].RunID != "run-5" || got[1].RunID != "run-4" {
				t.Fatalf("recent = %+v", got)
			}

			failed, err := st.RecentRuns(ctx, RunQuery{FailedOnly: true})
			if err != nil {
				t.Fatal(err)
			}
			if len(failed) != 2 || failed[0].RunID != "run-3" || failed[1].RunID != "run-0" {
				t.Fatalf("failed = %+v", failed)
			}
			if !failed[0].RetryAt.Equal(entry(3, true).RetryAt) || failed[0].RescheduleCount != 1 {
				t.Fatalf("retry fields lost: %+v", failed[0])
			}

			byEvent, err := st.RecentRuns(ctx, RunQuery{EventID: "ev-1"})
			if err != nil {
				t.Fatal(err)
			}
			if len(byEvent) != 3 {
				t.Fatalf("by event = %d rows", len(byEvent))
			}
			if !byEvent[0].Started.Equal(entry(5, false).Started) {
				t.Fatalf("started = %s", byEvent[0].Started)
			}
		})
	}
}

func TestFileStoreCompactsAndReplays(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := Config{Driver: "file", Path: filepath.Join(dir, "history.jsonl"), Keep: 3}
	ctx := context.Background()

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 7; i++ {
		if err := st.AppendRun(ctx, entry(i, false)); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}
	if err := st.AppendRun(ctx, entry(99, false)); err == nil {
		t.Fatal("append after close should fail")
	}

	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, err := st.RecentRuns(ctx, RunQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].RunID != "run-6" || got[2].RunID != "run-4" {
		t.Fatalf("replayed = %+v", got)
	}
}

func TestSQLitePruneKeepsNewest(t *testing.T) {
	t.Parallel()
	st, _ := openStore(t, "sqlite", 2)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := st.AppendRun(ctx, entry(i, false)); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.(*sqliteStore).prune(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := st.RecentRuns(ctx, RunQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].RunID != "run-4" || got[1].RunID != "run-3" {
		t.Fatalf("after prune = %+v", got)
	}
}

func TestRetryOp(t *testing.T) {
	t.Parallel()
	cfg := retryConfig{maxRetries: 3, baseDelay: time.Millisecond, maxDelay: 2 * time.Millisecond}

	calls := 0
	err := retryOp(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("sqlite: (5) database is busy")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("transient: err=%v calls=%d", err, calls)
	}

	calls = 0
	err = retryOp(context.Background(), cfg, func() error {
		calls++
		return errors.New("no such table: runs")
	})
	if err == nil || calls != 1 {
		t.Fatalf("permanent: err=%v calls=%d", err, calls)
	}
}

type memStore struct{ runs []RunEntry }

func (m *memStore) AppendRun(_ context.Context, e RunEntry) error {
	m.runs = append(m.runs, e)
	return nil
}
func (m *memStore) RecentRuns(context.Context, RunQuery) ([]RunEntry, error) { return m.runs, nil }
func (m *memStore) Close() error                                             { return nil }

func TestRecorderSkipsHealthyTicks(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	r := NewRecorder(st, nil, logx.Nop())
	ctx := context.Background()

	_ = r.Record(ctx, schedule.RunRecord{EventID: "clock", Kind: "tick", Duration: time.Millisecond})
	_ = r.Record(ctx, schedule.RunRecord{EventID: "clock", Kind: "tick", Error: "boom"})
	_ = r.Record(ctx, schedule.RunRecord{EventID: "date", Kind: "repeatable", Duration: 1500 * time.Millisecond})

	if len(st.runs) != 2 {
		t.Fatalf("recorded %d runs, want 2", len(st.runs))
	}
	if st.runs[1].TookMS != 1500 {
		t.Fatalf("took_ms = %d", st.runs[1].TookMS)
	}

	r.RecordTicks = true
	_ = r.Record(ctx, schedule.RunRecord{EventID: "clock", Kind: "tick"})
	if len(st.runs) != 3 {
		t.Fatal("RecordTicks should keep healthy ticks")
	}
}
