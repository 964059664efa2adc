package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ToolCalls owns the tool_calls usage log and its per-tool aggregate counts.
// The prompt assembler does not read these counts; no knowledge hot-index is
// built from them.
type ToolCalls struct {
	db *sql.DB
}

func NewToolCalls(db *sql.DB) *ToolCalls { return &ToolCalls{db: db} }

// Record logs one tool invocation.
func (t *ToolCalls) Record(ctx context.Context, sessionKey, toolName string) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO tool_calls (session_key, tool_name, created_at) VALUES (?, ?, ?)
	`, sessionKey, toolName, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: record tool call %s: %w", toolName, err)
	}
	return nil
}

// ToolUsage is an aggregate call count for one tool name over a window.
type ToolUsage struct {
	ToolName string
	Count    int
}

// TopTools returns the most-called tool names since `since`, descending by
// count, capped at limit.
func (t *ToolCalls) TopTools(ctx context.Context, since time.Time, limit int) ([]ToolUsage, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := t.db.QueryContext(ctx, `
		SELECT tool_name, COUNT(*) AS n FROM tool_calls
		WHERE created_at >= ? GROUP BY tool_name ORDER BY n DESC LIMIT ?
	`, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("store: top tools: %w", err)
	}
	defer rows.Close()

	var out []ToolUsage
	for rows.Next() {
		var u ToolUsage
		if err := rows.Scan(&u.ToolName, &u.Count); err != nil {
			return nil, fmt.Errorf("store: scan tool usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
