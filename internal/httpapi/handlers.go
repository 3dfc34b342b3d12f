package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"statusbar/internal/bar"
	"statusbar/internal/schedule"
	"statusbar/internal/storage"
	logx "statusbar/pkg/logx"
)

// BarSource exposes the rendered bar.
type BarSource interface {
	Snapshot() bar.Snapshot
}

// ScheduleSource exposes the scheduler queue.
type ScheduleSource interface {
	Snapshot() schedule.Snapshot
}

// RunSource exposes persisted run history.
type RunSource interface {
	RecentRuns(ctx context.Context, q storage.RunQuery) ([]storage.RunEntry, error)
}

// Sources are the read models behind the API. Any of them may be nil; the
// matching endpoints then answer 503.
type Sources struct {
	Bar      BarSource
	Schedule ScheduleSource
	Runs     RunSource
	Now      func() time.Time
	// Loops reports background loops still running by name; may be nil.
	Loops func() map[string]int
}

type handler struct {
	src Sources
	log logx.Logger
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
	Ticks  uint64    `json:"ticks"`
	Queued int       `json:"queued"`

	Loops map[string]int `json:"loops,omitempty"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok", Time: h.src.Now()}
	if h.src.Schedule != nil {
		snap := h.src.Schedule.Snapshot()
		resp.Ticks = snap.Ticks
		resp.Queued = len(snap.Scheduled) + len(snap.TickEvents)
	}
	if h.src.Loops != nil {
		resp.Loops = h.src.Loops()
	}
	writeJSON(w, h.log, http.StatusOK, resp)
}

func (h *handler) bar(w http.ResponseWriter, _ *http.Request) {
	if h.src.Bar == nil {
		writeError(w, h.log, http.StatusServiceUnavailable, CodeUnavailable, "bar is disabled")
		return
	}
	writeData(w, h.log, h.src.Bar.Snapshot())
}

// barLine answers the plain rendered line, expanded with ?expanded=1.
func (h *handler) barLine(w http.ResponseWriter, r *http.Request) {
	if h.src.Bar == nil {
		writeError(w, h.log, http.StatusServiceUnavailable, CodeUnavailable, "bar is disabled")
		return
	}
	expanded, _ := strconv.ParseBool(r.URL.Query().Get("expanded"))
	snap := h.src.Bar.Snapshot()
	line := snap.Line
	if expanded {
		line = snap.Expanded
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(line + "\n"))
}

func (h *handler) schedule(w http.ResponseWriter, _ *http.Request) {
	if h.src.Schedule == nil {
		writeError(w, h.log, http.StatusServiceUnavailable, CodeUnavailable, "scheduler is not running")
		return
	}
	writeData(w, h.log, h.src.Schedule.Snapshot())
}

func (h *handler) runs(w http.ResponseWriter, r *http.Request) {
	if h.src.Runs == nil {
		writeError(w, h.log, http.StatusServiceUnavailable, CodeUnavailable, "run history is disabled")
		return
	}
	q := storage.RunQuery{EventID: r.URL.Query().Get("event")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, h.log, http.StatusBadRequest, CodeBadRequest, "limit must be a non-negative integer")
			return
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("failed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, h.log, http.StatusBadRequest, CodeBadRequest, "failed must be a boolean")
			return
		}
		q.FailedOnly = b
	}

	runs, err := h.src.Runs.RecentRuns(r.Context(), q)
	if errors.Is(err, storage.ErrDisabled) {
		writeError(w, h.log, http.StatusServiceUnavailable, CodeUnavailable, "run history is disabled")
		return
	}
	if err != nil {
		h.log.Warn("run history query failed", logx.Err(err))
		writeError(w, h.log, http.StatusInternalServerError, CodeInternal, "failed to query run history")
		return
	}
	if runs == nil {
		runs = []storage.RunEntry{}
	}
	writeData(w, h.log, runs)
}
