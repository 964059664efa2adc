package store

import (
	"context"
	"testing"
	"time"
)

// TestDeliveryRecordAttemptThenRecentFailures verifies a failed attempt for
// a channel is counted within the lookback window and excluded from the
// count once the window starts after it.
func TestDeliveryRecordAttemptThenRecentFailures(t *testing.T) {
	db := newTestDB(t)
	d := NewDelivery(db)
	ctx := context.Background()

	if err := d.RecordAttempt(ctx, "job-1", "s1", "slack", "u1", DeliveryFailed, "webhook 500"); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if err := d.RecordAttempt(ctx, "job-2", "s1", "slack", "u1", DeliveryOK, ""); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	n, err := d.RecentFailures(ctx, "slack", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("RecentFailures: %v", err)
	}
	if n != 1 {
		t.Errorf("RecentFailures = %d, want 1 (only the failed attempt)", n)
	}

	n, err = d.RecentFailures(ctx, "slack", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("RecentFailures (future window): %v", err)
	}
	if n != 0 {
		t.Errorf("RecentFailures with a future since = %d, want 0", n)
	}
}

// TestDeliveryRecentFailuresScopedToChannel verifies failures on one
// channel don't bleed into another channel's count.
func TestDeliveryRecentFailuresScopedToChannel(t *testing.T) {
	db := newTestDB(t)
	d := NewDelivery(db)
	ctx := context.Background()

	if err := d.RecordAttempt(ctx, "", "s1", "slack", "u1", DeliveryFailed, "down"); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if err := d.RecordAttempt(ctx, "", "s1", "telegram", "u1", DeliveryFailed, "down"); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	n, err := d.RecentFailures(ctx, "slack", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("RecentFailures: %v", err)
	}
	if n != 1 {
		t.Errorf("RecentFailures(slack) = %d, want 1", n)
	}
}

// TestDeliveryAckIsIdempotent verifies a repeat ack for the same
// (job, user) pair doesn't error and Acked still reports true.
func TestDeliveryAckIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	d := NewDelivery(db)
	ctx := context.Background()

	acked, err := d.Acked(ctx, "job-1", "user-1")
	if err != nil {
		t.Fatalf("Acked before ack: %v", err)
	}
	if acked {
		t.Error("expected Acked to be false before any ack")
	}

	if err := d.Ack(ctx, "job-1", "user-1"); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if err := d.Ack(ctx, "job-1", "user-1"); err != nil {
		t.Fatalf("repeat Ack: %v", err)
	}

	acked, err = d.Acked(ctx, "job-1", "user-1")
	if err != nil {
		t.Fatalf("Acked after ack: %v", err)
	}
	if !acked {
		t.Error("expected Acked to be true after acking")
	}
}

// TestDeliveryAckedScopedToJobAndUser verifies one user's ack doesn't mark
// another user's ack for the same job as acknowledged.
func TestDeliveryAckedScopedToJobAndUser(t *testing.T) {
	db := newTestDB(t)
	d := NewDelivery(db)
	ctx := context.Background()

	if err := d.Ack(ctx, "job-1", "user-1"); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	acked, err := d.Acked(ctx, "job-1", "user-2")
	if err != nil {
		t.Fatalf("Acked: %v", err)
	}
	if acked {
		t.Error("expected user-2's ack to still be false")
	}
}
