package schedule

import "time"

// EventInfo is a read-only view of one queued event.
type EventInfo struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	NextRun         time.Time `json:"next_run,omitempty"`
	RetryDelaySec   int64     `json:"retry_delay_sec,omitempty"`
	RescheduleCount int       `json:"reschedule_count,omitempty"`
	IntervalSec     int64     `json:"interval_sec,omitempty"`
}

type Snapshot struct {
	Timezone   string      `json:"timezone"`
	Ticks      uint64      `json:"ticks"`
	TickEvents []EventInfo `json:"tick_events"`
	// Scheduled is in dispatch order; the sentinel is omitted.
	Scheduled []EventInfo `json:"scheduled"`
	// InFlight lists ids popped by the tick currently running.
	InFlight []string `json:"in_flight,omitempty"`
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{
		Timezone:   s.loc.String(),
		Ticks:      s.ticks,
		TickEvents: make([]EventInfo, 0, len(s.tickEvents)),
		Scheduled:  make([]EventInfo, 0, len(s.scheduled)),
	}
	for _, e := range s.tickEvents {
		out.TickEvents = append(out.TickEvents, EventInfo{ID: e.id, Kind: e.kind.String()})
	}
	for _, e := range s.scheduled {
		if e == s.sentinel {
			continue
		}
		info := EventInfo{
			ID:              e.id,
			Kind:            e.kind.String(),
			RetryDelaySec:   e.retryDelay,
			RescheduleCount: e.rescheduleCount,
			IntervalSec:     e.interval,
		}
		if e.IsScheduled() {
			info.NextRun = SecToTime(e.nextRun, s.loc)
		}
		out.Scheduled = append(out.Scheduled, info)
	}
	for id := range s.inflight {
		out.InFlight = append(out.InFlight, id)
	}
	return out
}

// Len reports queued scheduled events, sentinel included.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scheduled)
}
