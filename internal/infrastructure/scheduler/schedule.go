package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULES
// ══════════════════════════════════════════════════════════════════════════════

// ParseSchedule accepts a 5-field cron expression ("0 3 * * *"), "@every <duration>",
// "@hourly" or "@daily".
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "@hourly":
		return ParseCronExpression("0 * * * *")
	case spec == "@daily":
		return ParseCronExpression("0 0 * * *")
	case strings.HasPrefix(spec, "@every "):
		d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every ")))
		if err != nil {
			return nil, fmt.Errorf("invalid @every duration: %w", err)
		}
		if d < time.Second {
			return nil, fmt.Errorf("@every interval must be at least 1s, got %s", d)
		}
		return NewIntervalSchedule(d), nil
	default:
		return ParseCronExpression(spec)
	}
}

// IntervalSchedule runs a job at a fixed interval after the previous start.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns t plus the interval.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON EXPRESSION
// ══════════════════════════════════════════════════════════════════════════════

// CronExpression is a parsed 5-field expression: minute hour day-of-month
// month day-of-week. Each field accepts *, n, a-b, */s, a-b/s and comma lists.
// Each field is stored as a bitset.
type CronExpression struct {
	raw      string
	minutes  uint64
	hours    uint64
	days     uint64
	months   uint64
	weekdays uint64
}

type fieldBounds struct {
	name     string
	min, max int
}

var cronFields = [5]fieldBounds{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// ParseCronExpression parses a cron expression.
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	var sets [5]uint64
	for i, f := range fields {
		set, err := parseCronField(f, cronFields[i])
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		sets[i] = set
	}

	return &CronExpression{
		raw:      expr,
		minutes:  sets[0],
		hours:    sets[1],
		days:     sets[2],
		months:   sets[3],
		weekdays: sets[4],
	}, nil
}

// MustParseCronExpression parses a constant expression or panics.
func MustParseCronExpression(expr string) *CronExpression {
	ce, err := ParseCronExpression(expr)
	if err != nil {
		panic(err)
	}
	return ce
}

func parseCronField(field string, b fieldBounds) (uint64, error) {
	var set uint64
	for _, item := range strings.Split(field, ",") {
		rng, step := item, 1
		if i := strings.IndexByte(item, '/'); i >= 0 {
			s, err := strconv.Atoi(item[i+1:])
			if err != nil || s <= 0 {
				return 0, fmt.Errorf("%s: invalid step in %q", b.name, item)
			}
			rng, step = item[:i], s
		}

		lo, hi := b.min, b.max
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			parts := strings.SplitN(rng, "-", 2)
			var err1, err2 error
			lo, err1 = strconv.Atoi(parts[0])
			hi, err2 = strconv.Atoi(parts[1])
			if err1 != nil || err2 != nil || lo > hi {
				return 0, fmt.Errorf("%s: invalid range %q", b.name, rng)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return 0, fmt.Errorf("%s: invalid value %q", b.name, rng)
			}
			lo = v
			if step == 1 {
				hi = v
			}
		}
		if lo < b.min || hi > b.max {
			return 0, fmt.Errorf("%s: %q out of range [%d-%d]", b.name, item, b.min, b.max)
		}

		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	if set == 0 {
		return 0, fmt.Errorf("%s: empty field", b.name)
	}
	return set, nil
}

func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching minute strictly after t, in t's location.
// A zero time means nothing matches within five years.
func (ce *CronExpression) Next(t time.Time) time.Time {
	t = t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !has(ce.months, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !has(ce.days, t.Day()) || !has(ce.weekdays, int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !has(ce.hours, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
			continue
		}
		if !has(ce.minutes, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

func has(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}
