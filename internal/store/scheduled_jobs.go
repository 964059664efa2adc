package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScheduleKind names the four schedule variants spec.md's scheduler
// supports: a one-off fire, a fixed interval, a daily/weekly wall-clock
// time, or a cron expression.
type ScheduleKind string

const (
	ScheduleOnce     ScheduleKind = "once"
	ScheduleInterval ScheduleKind = "interval"
	ScheduleDaily    ScheduleKind = "daily"
	ScheduleWeekly   ScheduleKind = "weekly"
	ScheduleCron     ScheduleKind = "cron"
)

// ScheduledJob is one row of the scheduled_jobs table.
type ScheduledJob struct {
	ID                string
	UserID            string
	Name              string
	ScheduleKind       ScheduleKind
	ScheduleExpr       string
	ActionMessage      string
	ActionChannel      string
	ActionRecipient    string
	ActionPriority     string
	Enabled            bool
	NextFire           time.Time
	LastFire           *time.Time
	LastStatus         string
	ConsecutiveErrors  int
	TotalRuns          int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ScheduledJobs owns the scheduled_jobs table.
type ScheduledJobs struct {
	db *sql.DB
}

func NewScheduledJobs(db *sql.DB) *ScheduledJobs { return &ScheduledJobs{db: db} }

// Create inserts a new job (cron.add), computing its own initial next-fire
// time is the caller's responsibility (internal/scheduler owns schedule
// arithmetic; this package only persists).
func (s *ScheduledJobs) Create(ctx context.Context, j ScheduledJob) (*ScheduledJob, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (id, user_id, name, schedule_kind, schedule_expr,
			action_message, action_channel, action_recipient, action_priority,
			enabled, next_fire, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.UserID, j.Name, j.ScheduleKind, j.ScheduleExpr, j.ActionMessage,
		j.ActionChannel, j.ActionRecipient, j.ActionPriority, j.Enabled,
		j.NextFire.Unix(), now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: create scheduled job: %w", err)
	}
	return s.Get(ctx, j.ID)
}

// Get fetches one job by id.
func (s *ScheduledJobs) Get(ctx context.Context, id string) (*ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, schedule_kind, schedule_expr, action_message,
			action_channel, action_recipient, action_priority, enabled, next_fire,
			last_fire, last_status, consecutive_errors, total_runs, created_at, updated_at
		FROM scheduled_jobs WHERE id = ?
	`, id)
	return scanJob(row)
}

func scanJob(row *sql.Row) (*ScheduledJob, error) {
	var j ScheduledJob
	var nextFire int64
	var lastFire sql.NullInt64
	var created, updated int64
	err := row.Scan(&j.ID, &j.UserID, &j.Name, &j.ScheduleKind, &j.ScheduleExpr,
		&j.ActionMessage, &j.ActionChannel, &j.ActionRecipient, &j.ActionPriority,
		&j.Enabled, &nextFire, &lastFire, &j.LastStatus, &j.ConsecutiveErrors,
		&j.TotalRuns, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan scheduled job: %w", err)
	}
	j.NextFire = time.Unix(nextFire, 0)
	if lastFire.Valid {
		t := time.Unix(lastFire.Int64, 0)
		j.LastFire = &t
	}
	j.CreatedAt = time.Unix(created, 0)
	j.UpdatedAt = time.Unix(updated, 0)
	return &j, nil
}

// Remove deletes a job (cron.remove).
func (s *ScheduledJobs) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: remove scheduled job %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForUser returns every job owned by userID (cron.list), newest first.
func (s *ScheduledJobs) ListForUser(ctx context.Context, userID string) ([]ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, schedule_kind, schedule_expr, action_message,
			action_channel, action_recipient, action_priority, enabled, next_fire,
			last_fire, last_status, consecutive_errors, total_runs, created_at, updated_at
		FROM scheduled_jobs WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list scheduled jobs for %s: %w", userID, err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// DueJobs returns every enabled job whose next_fire is at or before asOf,
// used by the scheduler's 1s tick loop.
func (s *ScheduledJobs) DueJobs(ctx context.Context, asOf time.Time) ([]ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, schedule_kind, schedule_expr, action_message,
			action_channel, action_recipient, action_priority, enabled, next_fire,
			last_fire, last_status, consecutive_errors, total_runs, created_at, updated_at
		FROM scheduled_jobs WHERE enabled = 1 AND next_fire <= ?
	`, asOf.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: due jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]ScheduledJob, error) {
	var out []ScheduledJob
	for rows.Next() {
		var j ScheduledJob
		var nextFire int64
		var lastFire sql.NullInt64
		var created, updated int64
		if err := rows.Scan(&j.ID, &j.UserID, &j.Name, &j.ScheduleKind, &j.ScheduleExpr,
			&j.ActionMessage, &j.ActionChannel, &j.ActionRecipient, &j.ActionPriority,
			&j.Enabled, &nextFire, &lastFire, &j.LastStatus, &j.ConsecutiveErrors,
			&j.TotalRuns, &created, &updated); err != nil {
			return nil, fmt.Errorf("store: scan scheduled job row: %w", err)
		}
		j.NextFire = time.Unix(nextFire, 0)
		if lastFire.Valid {
			t := time.Unix(lastFire.Int64, 0)
			j.LastFire = &t
		}
		j.CreatedAt = time.Unix(created, 0)
		j.UpdatedAt = time.Unix(updated, 0)
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkFired updates a job after a firing attempt: bumps total_runs, resets
// or increments consecutive_errors, records last_status, and sets the next
// next_fire (computed by the caller, since only internal/scheduler knows
// the schedule arithmetic).
func (s *ScheduledJobs) MarkFired(ctx context.Context, id string, firedAt, nextFire time.Time, status string, ok bool) error {
	var errExpr string
	if ok {
		errExpr = "0"
	} else {
		errExpr = "consecutive_errors + 1"
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE scheduled_jobs SET last_fire = ?, next_fire = ?, last_status = ?,
			total_runs = total_runs + 1, consecutive_errors = %s, updated_at = ?
		WHERE id = ?
	`, errExpr), firedAt.Unix(), nextFire.Unix(), status, firedAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("store: mark job %s fired: %w", id, err)
	}
	return nil
}

// SetEnabled toggles a job's enabled flag.
func (s *ScheduledJobs) SetEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_jobs SET enabled = ?, updated_at = ? WHERE id = ?
	`, enabled, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("store: set enabled for job %s: %w", id, err)
	}
	return nil
}
