package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus values for the approval_queue table.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalDenied   = "denied"
)

// ApprovalRequest is one row of the approval_queue table, used to gate
// actions a user's RequiresAdminApproval flag blocks (e.g. install_software
// invocations from a constrained user).
type ApprovalRequest struct {
	ID          string
	UserID      string
	Description string
	Status      string
	RequestedAt time.Time
	ResolvedAt  *time.Time
	ResolvedBy  string
}

// Approvals owns the approval_queue table.
type Approvals struct {
	db *sql.DB
}

func NewApprovals(db *sql.DB) *Approvals { return &Approvals{db: db} }

// Request enqueues a new pending approval.
func (a *Approvals) Request(ctx context.Context, userID, description string) (*ApprovalRequest, error) {
	id := uuid.NewString()
	now := time.Now()
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO approval_queue (id, user_id, description, status, requested_at)
		VALUES (?, ?, ?, 'pending', ?)
	`, id, userID, description, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: request approval: %w", err)
	}
	return &ApprovalRequest{ID: id, UserID: userID, Description: description,
		Status: ApprovalPending, RequestedAt: now}, nil
}

// Resolve marks a pending approval as approved or denied by resolvedBy.
func (a *Approvals) Resolve(ctx context.Context, id, status, resolvedBy string) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE approval_queue SET status = ?, resolved_at = ?, resolved_by = ?
		WHERE id = ? AND status = 'pending'
	`, status, time.Now().Unix(), resolvedBy, id)
	if err != nil {
		return fmt.Errorf("store: resolve approval %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Pending returns every pending approval for userID.
func (a *Approvals) Pending(ctx context.Context, userID string) ([]ApprovalRequest, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, user_id, description, status, requested_at FROM approval_queue
		WHERE user_id = ? AND status = 'pending' ORDER BY requested_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: pending approvals for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []ApprovalRequest
	for rows.Next() {
		var r ApprovalRequest
		var requested int64
		if err := rows.Scan(&r.ID, &r.UserID, &r.Description, &r.Status, &requested); err != nil {
			return nil, fmt.Errorf("store: scan approval: %w", err)
		}
		r.RequestedAt = time.Unix(requested, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}
