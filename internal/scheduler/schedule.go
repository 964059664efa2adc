// Package scheduler runs persisted jobs on a 1-second tick, recovering
// missed runs across restarts and dispatching fired jobs to channel senders.
package scheduler

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/skynet-run/skynet/internal/store"
)

// NextFire computes the next fire time for a job variant from the given
// time; the engine and the reminder tool pass the current time, both at
// creation and after a recurring job fires. Once jobs ignore from and
// return their own timestamp; Cron jobs ignore from and compute from the
// current wall-clock time.
func NextFire(kind store.ScheduleKind, expr string, from time.Time) (time.Time, error) {
	switch kind {
	case store.ScheduleOnce:
		return parseOnce(expr)
	case store.ScheduleInterval:
		d, err := time.ParseDuration(expr)
		if err != nil {
			return time.Time{}, fmt.Errorf("scheduler: invalid interval %q: %w", expr, err)
		}
		return from.Add(d), nil
	case store.ScheduleDaily:
		return nextDaily(expr, from)
	case store.ScheduleWeekly:
		return nextWeekly(expr, from)
	case store.ScheduleCron:
		t, err := gronx.NextTick(expr, true)
		if err != nil {
			return time.Time{}, fmt.Errorf("scheduler: invalid cron expression %q: %w", expr, err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("scheduler: unknown schedule kind %q", kind)
	}
}

// parseOnce parses an RFC3339 timestamp for a one-off job.
func parseOnce(expr string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: invalid once timestamp %q: %w", expr, err)
	}
	return t, nil
}

// nextDaily parses expr as "HH:MM" and returns the next occurrence of that
// wall-clock time strictly after from.
func nextDaily(expr string, from time.Time) (time.Time, error) {
	hh, mm, err := parseClock(expr)
	if err != nil {
		return time.Time{}, err
	}
	candidate := time.Date(from.Year(), from.Month(), from.Day(), hh, mm, 0, 0, from.Location())
	if !candidate.After(from) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, nil
}

// nextWeekly parses expr as "Mon 15:04" and returns the next occurrence of
// that weekday+time strictly after from.
func nextWeekly(expr string, from time.Time) (time.Time, error) {
	var dayStr, clockStr string
	if _, err := fmt.Sscanf(expr, "%s %s", &dayStr, &clockStr); err != nil {
		return time.Time{}, fmt.Errorf("scheduler: invalid weekly expr %q: %w", expr, err)
	}
	day, err := parseWeekday(dayStr)
	if err != nil {
		return time.Time{}, err
	}
	hh, mm, err := parseClock(clockStr)
	if err != nil {
		return time.Time{}, err
	}

	candidate := time.Date(from.Year(), from.Month(), from.Day(), hh, mm, 0, 0, from.Location())
	for candidate.Weekday() != day || !candidate.After(from) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, nil
}

func parseClock(s string) (hh, mm int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, 0, fmt.Errorf("scheduler: invalid clock time %q: %w", s, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("scheduler: clock time %q out of range", s)
	}
	return hh, mm, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	names := map[string]time.Weekday{
		"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
		"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
	}
	if len(s) < 3 {
		return 0, fmt.Errorf("scheduler: invalid weekday %q", s)
	}
	d, ok := names[lower3(s)]
	if !ok {
		return 0, fmt.Errorf("scheduler: invalid weekday %q", s)
	}
	return d, nil
}

func lower3(s string) string {
	b := []byte(s[:3])
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
