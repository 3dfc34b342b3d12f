package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type SpecKind uint8

const (
	SpecTick SpecKind = iota
	SpecEvery
	SpecCron
)

var kindNames = [...]string{SpecTick: "tick", SpecEvery: "every", SpecCron: "cron"}

func (k SpecKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "spec(" + strconv.Itoa(int(k)) + ")"
}

// Spec is a schedule string from config, resolved to one of three kinds.
//
//	tick | 0 | 0s                 every tick
//	55m | 2h30m | 02:30           fixed whole-second interval
//	*/5 * * * * | @hourly         cron, 5 or 6 fields or a descriptor
//
// "cron:" forces cron; "every:" and "interval:" force an interval.
type Spec struct {
	Kind  SpecKind
	Expr  string        // cron expression when Kind is SpecCron
	Every time.Duration // interval when Kind is SpecEvery
	Form  string        // how the value was written: tick, cron, duration or clock
}

var errSpecEmpty = errors.New("schedule is empty")

// ParseSpec resolves raw without touching any scheduler.
func ParseSpec(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, errSpecEmpty
	}
	head, rest, prefixed := strings.Cut(s, ":")
	if prefixed {
		switch strings.ToLower(head) {
		case "cron":
			if rest = strings.TrimSpace(rest); rest == "" {
				return Spec{}, fmt.Errorf("cron: %w", errSpecEmpty)
			}
			return Spec{Kind: SpecCron, Expr: rest, Form: "cron"}, nil
		case "every", "interval":
			return parseEvery(rest)
		}
	}
	switch {
	case strings.EqualFold(s, "tick"):
		return Spec{Kind: SpecTick, Form: "tick"}, nil
	case s[0] == '@' || strings.ContainsAny(s, " \t"):
		return Spec{Kind: SpecCron, Expr: s, Form: "cron"}, nil
	}
	return parseEvery(s)
}

func parseEvery(v string) (Spec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Spec{}, errSpecEmpty
	}
	form := "duration"
	d, err := clockDuration(v)
	switch {
	case err == nil:
		form = "clock"
	case !errors.Is(err, errNotClock):
		return Spec{}, err
	case v == "0":
		d = 0
	default:
		if d, err = time.ParseDuration(v); err != nil {
			return Spec{}, fmt.Errorf("schedule %q is not a cron line, HH:MM, duration or tick", v)
		}
	}
	if d < 0 {
		return Spec{}, fmt.Errorf("schedule %q is negative", v)
	}
	if d == 0 {
		return Spec{Kind: SpecTick, Form: "tick"}, nil
	}
	if d%time.Second != 0 {
		return Spec{}, fmt.Errorf("schedule %q is not whole seconds", v)
	}
	return Spec{Kind: SpecEvery, Every: d, Form: form}, nil
}

var errNotClock = errors.New("not HH:MM")

// clockDuration reads "H:MM" up to "HHH:MM" as hours and minutes.
func clockDuration(v string) (time.Duration, error) {
	h, m, ok := strings.Cut(v, ":")
	if !ok || len(h) == 0 || len(h) > 3 || len(m) != 2 || !digits(h) || !digits(m) {
		return 0, errNotClock
	}
	hours, _ := strconv.Atoi(h)
	mins, _ := strconv.Atoi(m)
	if mins > 59 {
		return 0, fmt.Errorf("schedule %q: minutes out of range", v)
	}
	return time.Duration(hours)*time.Hour + time.Duration(mins)*time.Minute, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// AddSchedule registers work under id from a config schedule string.
func (s *Scheduler) AddSchedule(id, schedule string, work Work) error {
	sp, err := ParseSpec(schedule)
	if err != nil {
		return err
	}
	switch sp.Kind {
	case SpecTick:
		return s.Repeat(id, work, 0)
	case SpecEvery:
		return s.Repeat(id, work, sp.Every)
	default:
		return s.Cron(id, sp.Expr, work)
	}
}
