package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SessionSummary is a row of the sessions table, backing sessions.list and
// sessions.get. Conversations owns the actual turn_count bookkeeping;
// Sessions just exposes read access under its own handle for subsystems
// that don't otherwise need a Conversations instance.
type SessionSummary struct {
	SessionKey       string
	TurnCount        int
	LastCompactionAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Sessions owns read access to the sessions table.
type Sessions struct {
	db *sql.DB
}

func NewSessions(db *sql.DB) *Sessions { return &Sessions{db: db} }

// Get fetches one session summary by key.
func (s *Sessions) Get(ctx context.Context, sessionKey string) (*SessionSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_key, turn_count, last_compaction_at, created_at, updated_at
		FROM sessions WHERE session_key = ?
	`, sessionKey)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*SessionSummary, error) {
	var s SessionSummary
	var lastCompaction sql.NullInt64
	var created, updated int64
	err := row.Scan(&s.SessionKey, &s.TurnCount, &lastCompaction, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan session: %w", err)
	}
	if lastCompaction.Valid {
		t := time.Unix(lastCompaction.Int64, 0)
		s.LastCompactionAt = &t
	}
	s.CreatedAt = time.Unix(created, 0)
	s.UpdatedAt = time.Unix(updated, 0)
	return &s, nil
}

// ListByPrefix returns every session whose key starts with prefix (e.g.
// "user:alice:" to list all of one user's sessions across channels),
// newest-updated first, capped at limit.
func (s *Sessions) ListByPrefix(ctx context.Context, prefix string, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_key, turn_count, last_compaction_at, created_at, updated_at
		FROM sessions WHERE session_key LIKE ? ESCAPE '\' ORDER BY updated_at DESC LIMIT ?
	`, escapeLikePrefix(prefix)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions by prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var lastCompaction sql.NullInt64
		var created, updated int64
		if err := rows.Scan(&sum.SessionKey, &sum.TurnCount, &lastCompaction, &created, &updated); err != nil {
			return nil, fmt.Errorf("store: scan session row: %w", err)
		}
		if lastCompaction.Valid {
			t := time.Unix(lastCompaction.Int64, 0)
			sum.LastCompactionAt = &t
		}
		sum.CreatedAt = time.Unix(created, 0)
		sum.UpdatedAt = time.Unix(updated, 0)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func escapeLikePrefix(s string) string {
	r := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '%' || c == '_' || c == '\\' {
			r = append(r, '\\')
		}
		r = append(r, c)
	}
	return string(r)
}
