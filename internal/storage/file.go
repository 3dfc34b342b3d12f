package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "statusbar/pkg/logx"
)

var errFileClosed = errors.New("run history file closed")

// fileStore appends runs to a JSON Lines file at cfg.Path and answers
// queries from the newest keep runs held in memory. After keep appends the
// file is rewritten to that tail, so it stays under 2*keep lines.
type fileStore struct {
	path string
	keep int
	log  logx.Logger

	mu     sync.Mutex
	w      *os.File
	recent []RunEntry
	since  int // appends since the last rewrite
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("file store needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &fileStore{path: path, keep: cfg.keep(), log: log}

	switch f, err := os.Open(path); {
	case err == nil:
		skipped := s.load(f)
		_ = f.Close()
		if skipped > 0 {
			log.Warn("run history has unreadable lines", logx.String("path", path), logx.Int("skipped", skipped))
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	w, err := appendTo(path)
	if err != nil {
		return nil, err
	}
	s.w = w
	return s, nil
}

func appendTo(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}

// load reads every line of r into recent and returns how many it skipped.
func (s *fileStore) load(r io.Reader) (skipped int) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, 1<<20)
	for sc.Scan() {
		var e RunEntry
		if json.Unmarshal(sc.Bytes(), &e) != nil || e.EventID == "" {
			skipped++
			continue
		}
		s.remember(e)
	}
	return skipped
}

func (s *fileStore) remember(e RunEntry) {
	s.recent = append(s.recent, e)
	if n := len(s.recent) - s.keep; n > 0 {
		s.recent = append(s.recent[:0], s.recent[n:]...)
	}
}

func (s *fileStore) AppendRun(_ context.Context, e RunEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return errFileClosed
	}
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		return err
	}
	s.remember(e)
	if s.since++; s.since >= s.keep {
		if err := s.rewrite(); err != nil {
			s.log.Debug("run history rewrite failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentRuns(_ context.Context, q RunQuery) ([]RunEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := q.limit()
	var out []RunEntry
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		if q.match(s.recent[i]) {
			out = append(out, s.recent[i])
		}
	}
	return out, nil
}

// rewrite replaces the file with the in-memory tail through a temp file in
// the same directory, then reopens the writer on the new file.
func (s *fileStore) rewrite() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	enc := json.NewEncoder(bw)
	for _, e := range s.recent {
		if err = enc.Encode(e); err != nil {
			break
		}
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return err
	}
	w, err := appendTo(s.path)
	if err != nil {
		return err
	}
	_ = s.w.Close()
	s.w, s.since = w, 0
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}
