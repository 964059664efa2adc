package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Identities owns the user_identities table: the mapping from a
// (channel, external_id) pair to a resolved internal user id.
type Identities struct {
	db *sql.DB
}

func NewIdentities(db *sql.DB) *Identities { return &Identities{db: db} }

// Lookup returns the user id linked to (channel, externalID), or
// ErrNotFound if no identity has been linked yet.
func (i *Identities) Lookup(ctx context.Context, channel, externalID string) (string, error) {
	var userID string
	err := i.db.QueryRowContext(ctx, `
		SELECT user_id FROM user_identities WHERE channel = ? AND external_id = ?
	`, channel, externalID).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: lookup identity %s/%s: %w", channel, externalID, err)
	}
	return userID, nil
}

// Link associates (channel, externalID) with userID. Re-linking the same
// pair to a different user is an explicit self_link operation, not an
// accidental overwrite, so callers must delete the prior row first if they
// intend to move an identity between users.
func (i *Identities) Link(ctx context.Context, channel, externalID, userID string) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO user_identities (channel, external_id, user_id, created_at)
		VALUES (?, ?, ?, ?)
	`, channel, externalID, userID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: link identity %s/%s -> %s: %w", channel, externalID, userID, err)
	}
	return nil
}

// Unlink removes a (channel, externalID) mapping, e.g. after a self_link
// re-points the identity elsewhere.
func (i *Identities) Unlink(ctx context.Context, channel, externalID string) error {
	_, err := i.db.ExecContext(ctx, `
		DELETE FROM user_identities WHERE channel = ? AND external_id = ?
	`, channel, externalID)
	if err != nil {
		return fmt.Errorf("store: unlink identity %s/%s: %w", channel, externalID, err)
	}
	return nil
}

// ListForUser returns every (channel, external_id) pair linked to userID.
type Identity struct {
	Channel    string
	ExternalID string
	UserID     string
	CreatedAt  time.Time
}

func (i *Identities) ListForUser(ctx context.Context, userID string) ([]Identity, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT channel, external_id, user_id, created_at FROM user_identities WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list identities for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		var id Identity
		var created int64
		if err := rows.Scan(&id.Channel, &id.ExternalID, &id.UserID, &created); err != nil {
			return nil, fmt.Errorf("store: scan identity: %w", err)
		}
		id.CreatedAt = time.Unix(created, 0)
		out = append(out, id)
	}
	return out, rows.Err()
}
