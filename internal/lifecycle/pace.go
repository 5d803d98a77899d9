package lifecycle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Pace decides how long a worker sleeps between cycles. A nil Pace means the
// worker never sleeps and is expected to pace itself.
type Pace interface {
	Delay(now time.Time) time.Duration
	String() string
}

type everyPace time.Duration

// Every returns a fixed-interval pace. d must be positive.
func Every(d time.Duration) Pace {
	if d <= 0 {
		return nil
	}
	return everyPace(d)
}

func (p everyPace) Delay(time.Time) time.Duration { return time.Duration(p) }
func (p everyPace) String() string                { return "every " + time.Duration(p).String() }

type cronPace struct {
	expr  string
	sched cron.Schedule
}

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Cron returns a pace that sleeps until the next fire time of expr.
func Cron(expr string) (Pace, error) {
	expr = strings.TrimSpace(expr)
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return cronPace{expr: expr, sched: sched}, nil
}

func (p cronPace) Delay(now time.Time) time.Duration {
	next := p.sched.Next(now)
	if next.IsZero() {
		// Schedule never fires again; park for a long time rather than spin.
		return 24 * time.Hour
	}
	d := next.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (p cronPace) String() string { return "cron " + p.expr }

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParsePace parses a schedule string. An empty string yields a nil Pace.
//
// Supported forms:
//   - Go duration: "90s", "2h30m"
//   - HH:MM interval: "02:30" (2 hours 30 minutes)
//   - Cron: "*/5 * * * *", "@hourly", "@every 55m"
//
// Prefixes "cron:" and "every:" force the kind.
func ParsePace(raw string) (Pace, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return Cron(s[len("cron:"):])
	case strings.HasPrefix(low, "every:"):
		return parseInterval(s[len("every:"):])
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return Cron(s)
	}
	return parseInterval(s)
}

func parseInterval(v string) (Pace, error) {
	v = strings.TrimSpace(v)
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return nil, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		d, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q (use HH:MM, a duration like '55m', or a cron expression)", v)
		}
	}
	if d <= 0 {
		return nil, fmt.Errorf("interval must be > 0")
	}
	return everyPace(d), nil
}
