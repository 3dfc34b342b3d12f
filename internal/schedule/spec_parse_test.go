package schedule

import (
	"testing"
	"time"
)

func TestParseSpec(t *testing.T) {
	t.Parallel()
	cases := map[string]Spec{
		"tick":           {Kind: SpecTick, Form: "tick"},
		"TICK":           {Kind: SpecTick, Form: "tick"},
		"0":              {Kind: SpecTick, Form: "tick"},
		"0s":             {Kind: SpecTick, Form: "tick"},
		"*/5 * * * *":    {Kind: SpecCron, Expr: "*/5 * * * *", Form: "cron"},
		"@hourly":        {Kind: SpecCron, Expr: "@hourly", Form: "cron"},
		"cron:0 0 * * *": {Kind: SpecCron, Expr: "0 0 * * *", Form: "cron"},
		"10m":            {Kind: SpecEvery, Every: 10 * time.Minute, Form: "duration"},
		"interval:45s":   {Kind: SpecEvery, Every: 45 * time.Second, Form: "duration"},
		"every: 4m":      {Kind: SpecEvery, Every: 4 * time.Minute, Form: "duration"},
		"01:30":          {Kind: SpecEvery, Every: 90 * time.Minute, Form: "clock"},
		"every:00:05":    {Kind: SpecEvery, Every: 5 * time.Minute, Form: "clock"},
	}
	for raw, want := range cases {
		got, err := ParseSpec(raw)
		if err != nil {
			t.Errorf("ParseSpec(%q): %v", raw, err)
			continue
		}
		if got != want {
			t.Errorf("ParseSpec(%q) = %+v, want %+v", raw, got, want)
		}
	}
}

func TestParseSpecRejects(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "  ", "soon", "-5s", "1500ms", "01:75", "cron:", "every:"} {
		if sp, err := ParseSpec(raw); err == nil {
			t.Errorf("ParseSpec(%q) = %+v, want error", raw, sp)
		}
	}
}

func TestSpecKindString(t *testing.T) {
	t.Parallel()
	if SpecEvery.String() != "every" || SpecKind(9).String() != "spec(9)" {
		t.Fatalf("unexpected names %q %q", SpecEvery, SpecKind(9))
	}
}
