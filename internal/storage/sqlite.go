package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "statusbar/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db   *sql.DB
	log  logx.Logger
	keep int

	opCount    atomic.Uint64
	pruneEvery uint64
}

// openSQLite opens a single-connection database with WAL journaling. The
// pragmas travel in the DSN so every pooled connection gets them.
func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite store needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	if ms := cfg.BusyTimeout.Milliseconds(); ms > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", ms))
	}
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, keep: cfg.keep(), pruneEvery: 500}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite %s: schema: %w", path, err)
	}
	log.Debug("sqlite store ready", logx.String("path", path), logx.Int("keep", st.keep))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, e RunEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.Started.IsZero() {
		e.Started = time.Now()
	}
	err := retryOnContention(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO runs(run_id, tick, event_id, kind, started, took_ms, err, retry_at, reschedule_count)
			 VALUES(?,?,?,?,?,?,?,?,?)`,
			e.RunID, int64(e.Tick), e.EventID, e.Kind, e.Started.Format(time.RFC3339Nano), e.TookMS,
			nullStr(e.Error), nullTime(e.RetryAt), e.RescheduleCount,
		)
		return err
	})
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if perr := s.prune(pctx); perr != nil {
			s.log.Debug("run history prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, q RunQuery) ([]RunEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	var (
		where []string
		args  []any
	)
	if q.EventID != "" {
		where = append(where, "event_id = ?")
		args = append(args, q.EventID)
	}
	if q.FailedOnly {
		where = append(where, "err IS NOT NULL")
	}
	query := `SELECT run_id, tick, event_id, kind, started, took_ms, err, retry_at, reschedule_count FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, q.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var (
			e       RunEntry
			tick    int64
			started string
			errStr  sql.NullString
			retryAt sql.NullString
		)
		if err := rows.Scan(&e.RunID, &tick, &e.EventID, &e.Kind, &started, &e.TookMS, &errStr, &retryAt, &e.RescheduleCount); err != nil {
			return nil, err
		}
		e.Tick = uint64(tick)
		e.Started, _ = time.Parse(time.RFC3339Nano, started)
		e.Error = errStr.String
		if retryAt.Valid {
			e.RetryAt, _ = time.Parse(time.RFC3339Nano, retryAt.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// prune keeps the newest keep rows.
func (s *sqliteStore) prune(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id <= (SELECT COALESCE(MAX(id), 0) FROM runs) - ?`, s.keep)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
