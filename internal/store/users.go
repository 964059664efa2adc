package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// User is a resolved identity-bearing account, independent of the channel
// it was first seen on.
type User struct {
	ID                    string
	DisplayName           string
	Role                  string
	CanInstallSoftware    bool
	CanExecuteCommands    bool
	CanUseBrowser         bool
	RequiresAdminApproval bool
	DailyTokenBudget      int64
	TokensConsumedToday   int64
	BudgetResetDate       string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Users owns the users table.
type Users struct {
	db *sql.DB
}

func NewUsers(db *sql.DB) *Users { return &Users{db: db} }

// Create inserts a new user with the given id, defaulting to the "User" role
// and no elevated capabilities. Grounded on the teacher's plain INSERT +
// scan-back pattern for its users table.
func (u *Users) Create(ctx context.Context, id, displayName string) (*User, error) {
	now := time.Now().Unix()
	_, err := u.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, role, created_at, updated_at)
		VALUES (?, ?, 'User', ?, ?)
	`, id, displayName, now, now)
	if err != nil {
		return nil, fmt.Errorf("store: create user %s: %w", id, err)
	}
	return u.Get(ctx, id)
}

// Get fetches a user by id, returning ErrNotFound if absent.
func (u *Users) Get(ctx context.Context, id string) (*User, error) {
	row := u.db.QueryRowContext(ctx, `
		SELECT id, display_name, role, can_install_software, can_execute_commands,
		       can_use_browser, requires_admin_approval, daily_token_budget,
		       tokens_consumed_today, budget_reset_date, created_at, updated_at
		FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var out User
	var created, updated int64
	err := row.Scan(&out.ID, &out.DisplayName, &out.Role, &out.CanInstallSoftware,
		&out.CanExecuteCommands, &out.CanUseBrowser, &out.RequiresAdminApproval,
		&out.DailyTokenBudget, &out.TokensConsumedToday, &out.BudgetResetDate,
		&created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan user: %w", err)
	}
	out.CreatedAt = time.Unix(created, 0)
	out.UpdatedAt = time.Unix(updated, 0)
	return &out, nil
}

// RecordTokenUsage adds tokens to today's consumption counter, resetting it
// first if BudgetResetDate has rolled over to a new UTC day.
func (u *Users) RecordTokenUsage(ctx context.Context, id string, tokens int64, today string) error {
	_, err := u.db.ExecContext(ctx, `
		UPDATE users SET
			tokens_consumed_today = CASE WHEN budget_reset_date = ? THEN tokens_consumed_today + ? ELSE ? END,
			budget_reset_date = ?,
			updated_at = ?
		WHERE id = ?
	`, today, tokens, tokens, today, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("store: record token usage for %s: %w", id, err)
	}
	return nil
}

// SetCapabilities updates a user's permission flags, used by admin-facing
// tooling outside the scope of the wire protocol proper.
func (u *Users) SetCapabilities(ctx context.Context, id string, install, exec, browser, requiresApproval bool) error {
	_, err := u.db.ExecContext(ctx, `
		UPDATE users SET can_install_software = ?, can_execute_commands = ?,
			can_use_browser = ?, requires_admin_approval = ?, updated_at = ?
		WHERE id = ?
	`, install, exec, browser, requiresApproval, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("store: set capabilities for %s: %w", id, err)
	}
	return nil
}
