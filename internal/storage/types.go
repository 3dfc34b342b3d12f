package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON lines file, compacted to the newest Keep entries
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Keep        int           // runs retained; 0 means defaultKeep
}

const defaultKeep = 5000

func (c Config) keep() int {
	if c.Keep <= 0 {
		return defaultKeep
	}
	return c.Keep
}

// RunEntry is one persisted event run.
// Keep it compact and schema-stable.
type RunEntry struct {
	RunID           string    `json:"run_id"`
	Tick            uint64    `json:"tick"`
	EventID         string    `json:"event_id"`
	Kind            string    `json:"kind"`
	Started         time.Time `json:"started"`
	TookMS          int64     `json:"took_ms"`
	Error           string    `json:"error,omitempty"`
	RetryAt         time.Time `json:"retry_at,omitempty"`
	RescheduleCount int       `json:"reschedule_count,omitempty"`
}

// RunQuery selects runs, newest first.
type RunQuery struct {
	Limit      int
	EventID    string
	FailedOnly bool
}

func (q RunQuery) limit() int {
	if q.Limit <= 0 || q.Limit > 1000 {
		return 100
	}
	return q.Limit
}

func (q RunQuery) match(e RunEntry) bool {
	if q.EventID != "" && e.EventID != q.EventID {
		return false
	}
	if q.FailedOnly && e.Error == "" {
		return false
	}
	return true
}
