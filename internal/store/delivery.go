package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Delivery outcomes recorded by delivery_attempts.
const (
	DeliveryOK       = "ok"
	DeliveryFailed   = "failed"
	DeliverySkipped  = "skipped"
)

// Delivery owns the delivery_attempts and reminder_acks tables: a log of
// delivery attempts and a record of each recipient acknowledging a reminder
// exactly once. The scheduler does not call it.
type Delivery struct {
	db *sql.DB
}

func NewDelivery(db *sql.DB) *Delivery { return &Delivery{db: db} }

// RecordAttempt logs one delivery attempt for a scheduled job firing or an
// ad-hoc send_message call.
func (d *Delivery) RecordAttempt(ctx context.Context, jobID, sessionKey, channel, recipient, outcome, reason string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO delivery_attempts (job_id, session_key, channel, recipient, outcome, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, nullableString(jobID), nullableString(sessionKey), channel, recipient, outcome, reason, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: record delivery attempt: %w", err)
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Ack records that userID acknowledged jobID's reminder. Idempotent: a
// repeat ack for the same pair is a no-op, not an error.
func (d *Delivery) Ack(ctx context.Context, jobID, userID string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO reminder_acks (job_id, user_id, acked_at) VALUES (?, ?, ?)
		ON CONFLICT(job_id, user_id) DO NOTHING
	`, jobID, userID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: ack reminder %s/%s: %w", jobID, userID, err)
	}
	return nil
}

// Acked reports whether userID has already acknowledged jobID.
func (d *Delivery) Acked(ctx context.Context, jobID, userID string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reminder_acks WHERE job_id = ? AND user_id = ?
	`, jobID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: check ack %s/%s: %w", jobID, userID, err)
	}
	return n > 0, nil
}

// RecentFailures returns the count of failed delivery attempts for channel
// since `since`.
func (d *Delivery) RecentFailures(ctx context.Context, channel string, since time.Time) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM delivery_attempts
		WHERE channel = ? AND outcome = 'failed' AND created_at >= ?
	`, channel, since.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: recent failures for %s: %w", channel, err)
	}
	return n, nil
}
