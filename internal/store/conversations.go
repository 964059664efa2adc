package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Turn is one stored conversation message.
type Turn struct {
	ID           int64
	SessionKey   string
	Role         string // "user" or "assistant"
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	CreatedAt    time.Time
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversations owns the conversations and sessions tables.
type Conversations struct {
	db *sql.DB
}

func NewConversations(db *sql.DB) *Conversations { return &Conversations{db: db} }

// AppendTurn writes one turn, enforcing the role-alternation invariant: a
// session's roles must strictly alternate user/assistant starting from
// whichever role wrote first. Violating it returns ErrOrderViolation and
// writes nothing, per spec.md's universal invariant 3.
func (c *Conversations) AppendTurn(ctx context.Context, sessionKey, role, content, model string, inputTokens, outputTokens int) (*Turn, error) {
	if role != RoleUser && role != RoleAssistant {
		return nil, fmt.Errorf("store: invalid role %q", role)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin append turn: %w", err)
	}
	defer tx.Rollback()

	var lastRole string
	err = tx.QueryRowContext(ctx, `
		SELECT role FROM conversations WHERE session_key = ? ORDER BY id DESC LIMIT 1
	`, sessionKey).Scan(&lastRole)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("store: read last turn role: %w", err)
	}
	if err == nil && lastRole == role {
		return nil, ErrOrderViolation
	}

	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (session_key, role, content, model, input_tokens, output_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sessionKey, role, content, model, inputTokens, outputTokens, now)
	if err != nil {
		return nil, fmt.Errorf("store: insert turn: %w", err)
	}
	id, _ := res.LastInsertId()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (session_key, turn_count, created_at, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET turn_count = turn_count + 1, updated_at = excluded.updated_at
	`, sessionKey, now, now)
	if err != nil {
		return nil, fmt.Errorf("store: bump session turn_count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit append turn: %w", err)
	}

	return &Turn{ID: id, SessionKey: sessionKey, Role: role, Content: content,
		Model: model, InputTokens: inputTokens, OutputTokens: outputTokens, CreatedAt: time.Unix(now, 0)}, nil
}

// History returns the last limit turns for sessionKey, oldest first.
func (c *Conversations) History(ctx context.Context, sessionKey string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, session_key, role, content, model, input_tokens, output_tokens, created_at
		FROM conversations WHERE session_key = ? ORDER BY id DESC LIMIT ?
	`, sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("store: history for %s: %w", sessionKey, err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var created int64
		if err := rows.Scan(&t.ID, &t.SessionKey, &t.Role, &t.Content, &t.Model,
			&t.InputTokens, &t.OutputTokens, &created); err != nil {
			return nil, fmt.Errorf("store: scan turn: %w", err)
		}
		t.CreatedAt = time.Unix(created, 0)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// TurnCount reports the current stored turn count for a session, used by
// the compaction trigger (fires at 40).
func (c *Conversations) TurnCount(ctx context.Context, sessionKey string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT turn_count FROM sessions WHERE session_key = ?`, sessionKey).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: turn count for %s: %w", sessionKey, err)
	}
	return n, nil
}

// CompactOldest deletes the oldest `count` turns for sessionKey atomically
// and records the compaction timestamp. Deleting an even-length prefix of a
// strictly-alternating turn sequence already preserves role alternation for
// whatever remains, so no synthetic turn is inserted in their place —
// extracted facts live in user_memory instead.
func (c *Conversations) CompactOldest(ctx context.Context, sessionKey string, count int) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin compaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM conversations WHERE session_key = ? ORDER BY id ASC LIMIT ?
	`, sessionKey, count)
	if err != nil {
		return fmt.Errorf("store: select oldest turns: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("store: scan oldest turn id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]interface{}, len(ids))
	query := "DELETE FROM conversations WHERE id IN ("
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = id
	}
	query += ")"
	if _, err := tx.ExecContext(ctx, query, placeholders...); err != nil {
		return fmt.Errorf("store: delete compacted turns: %w", err)
	}

	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET turn_count = turn_count - ?, last_compaction_at = ?, updated_at = ?
		WHERE session_key = ?
	`, len(ids), now, now, sessionKey); err != nil {
		return fmt.Errorf("store: update session after compaction: %w", err)
	}

	return tx.Commit()
}
