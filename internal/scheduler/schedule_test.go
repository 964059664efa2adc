package scheduler

import (
	"testing"
	"time"

	"github.com/skynet-run/skynet/internal/store"
)

// TestNextFireOnce verifies a one-off job fires at its parsed RFC3339
// timestamp, independent of the "from" reference time.
func TestNextFireOnce(t *testing.T) {
	want := "2026-08-01T09:00:00Z"
	got, err := NextFire(store.ScheduleOnce, want, time.Now())
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	wantTime, _ := time.Parse(time.RFC3339, want)
	if !got.Equal(wantTime) {
		t.Errorf("got %v, want %v", got, wantTime)
	}
}

// TestNextFireOnceInvalid verifies a malformed timestamp is rejected.
func TestNextFireOnceInvalid(t *testing.T) {
	if _, err := NextFire(store.ScheduleOnce, "not-a-time", time.Now()); err == nil {
		t.Fatal("expected error for malformed once timestamp")
	}
}

// TestNextFireInterval verifies an interval job fires "from" + the parsed
// duration.
func TestNextFireInterval(t *testing.T) {
	from := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	got, err := NextFire(store.ScheduleInterval, "1h30m", from)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	want := from.Add(90 * time.Minute)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestNextFireDailyFutureTimeToday verifies a daily job whose clock time is
// still ahead today fires later today, not tomorrow.
func TestNextFireDailyFutureTimeToday(t *testing.T) {
	from := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	got, err := NextFire(store.ScheduleDaily, "09:00", from)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	want := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestNextFireDailyPastTimeRollsToTomorrow verifies a daily job whose clock
// time has already passed today rolls to the same time tomorrow.
func TestNextFireDailyPastTimeRollsToTomorrow(t *testing.T) {
	from := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	got, err := NextFire(store.ScheduleDaily, "09:00", from)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	want := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestNextFireWeekly verifies a weekly job fires on the next matching
// weekday+time strictly after from, rolling a full week if that weekday+time
// already passed this week.
func TestNextFireWeekly(t *testing.T) {
	// Jan 1 2026 is a Thursday.
	from := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	got, err := NextFire(store.ScheduleWeekly, "Fri 09:00", from)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	want := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// A weekday+time already past this week rolls to next week.
	got2, err := NextFire(store.ScheduleWeekly, "Thu 09:00", from)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	want2 := time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)
	if !got2.Equal(want2) {
		t.Errorf("got %v, want %v", got2, want2)
	}
}

// TestNextFireCron verifies a cron expression resolves to some time after
// "from" via gronx — exact timing is gronx's concern, this just checks
// wiring and ordering.
func TestNextFireCron(t *testing.T) {
	from := time.Now()
	got, err := NextFire(store.ScheduleCron, "0 9 * * *", from)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	if !got.After(from) {
		t.Errorf("expected next cron fire to be after %v, got %v", from, got)
	}
}

// TestNextFireCronInvalid verifies a malformed cron expression is rejected.
func TestNextFireCronInvalid(t *testing.T) {
	if _, err := NextFire(store.ScheduleCron, "not a cron expr", time.Now()); err == nil {
		t.Fatal("expected error for malformed cron expression")
	}
}

// TestNextFireUnknownKind verifies an unrecognized schedule kind errors
// rather than silently defaulting to some arbitrary behavior.
func TestNextFireUnknownKind(t *testing.T) {
	if _, err := NextFire(store.ScheduleKind("bogus"), "x", time.Now()); err == nil {
		t.Fatal("expected error for unknown schedule kind")
	}
}
