package schedule

import "time"

// EpochFuture is some time in year 2096. The queue sentinel is parked there.
const EpochFuture int64 = 4_000_000_000

// Unscheduled marks an event that has no next run.
const Unscheduled int64 = -1

// TimeToSec truncates t to whole epoch seconds.
func TimeToSec(t time.Time) int64 { return t.Unix() }

// SecToTime converts epoch seconds back into a time in loc (Local when nil).
func SecToTime(sec int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(sec, 0).In(loc)
}

// NextAlignedSec returns the next slot after now on the grid of intervalSec
// seconds counted from local midnight of now's location. A 4 minute interval
// lands on :00, :04, :08 ... regardless of when the previous run finished.
// When now is exactly on a slot, the following slot is returned.
func NextAlignedSec(now time.Time, intervalSec int64) int64 {
	nowSec := now.Unix()
	if intervalSec <= 0 {
		return nowSec
	}
	_, offset := now.Zone()
	local := nowSec + int64(offset)
	rem := local % intervalSec
	if rem < 0 {
		rem += intervalSec
	}
	return nowSec + intervalSec - rem
}

// untilNextSecond is the delay to the next whole-second boundary after now.
func untilNextSecond(now time.Time) time.Duration {
	return time.Second - time.Duration(now.Nanosecond())
}

func formatSec(sec int64, loc *time.Location) string {
	if sec == Unscheduled {
		return "never"
	}
	return SecToTime(sec, loc).Format("2006-01-02 15:04:05")
}
