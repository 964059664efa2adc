package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory categories, in the priority order the Tier-2 prompt assembler uses
// when trimming to its 6000-char cap: Instruction first, Context last.
const (
	CategoryInstruction = "Instruction"
	CategoryPreference  = "Preference"
	CategoryFact        = "Fact"
	CategoryContext     = "Context"
)

var categoryRank = map[string]int{
	CategoryInstruction: 0,
	CategoryPreference:  1,
	CategoryFact:        2,
	CategoryContext:     3,
}

// Fact is one atomic piece of per-user memory.
type Fact struct {
	ID         string
	UserID     string
	Category   string
	Key        string
	Value      string
	Confidence float64
	Source     string
	ExpiresAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Memory owns the user_memory table and its FTS index, plus a small
// in-process cache over the assembled per-user fact set so repeated prompt
// assembly within the same session doesn't re-hit SQLite every turn.
type Memory struct {
	db    *sql.DB
	cache *userContextCache
}

func NewMemory(db *sql.DB) *Memory {
	return &Memory{db: db, cache: newUserContextCache(256, 5*time.Minute)}
}

// Learn upserts a fact by (user_id, category, key). Per spec.md's conflict
// rule, the higher-confidence value wins; on an exact confidence tie the
// newer write wins. expiresAt is optional (nil means the fact never
// expires).
func (m *Memory) Learn(ctx context.Context, userID, category, key, value string, confidence float64, source string, expiresAt *time.Time) (*Fact, error) {
	now := time.Now()
	id := uuid.NewString()
	var expires interface{}
	if expiresAt != nil {
		expires = expiresAt.Unix()
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO user_memory (id, user_id, category, key, value, confidence, source, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, category, key) DO UPDATE SET
			value = excluded.value, confidence = excluded.confidence,
			source = excluded.source, expires_at = excluded.expires_at, updated_at = excluded.updated_at
		WHERE excluded.confidence > user_memory.confidence OR excluded.confidence = user_memory.confidence
	`, id, userID, category, key, value, confidence, source, expires, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: learn fact %s/%s/%s: %w", userID, category, key, err)
	}
	m.cache.invalidate(userID)

	var out Fact
	row := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, category, key, value, confidence, source, expires_at, created_at, updated_at
		FROM user_memory WHERE user_id = ? AND category = ? AND key = ?
	`, userID, category, key)
	var created, updated int64
	var expiresAtOut sql.NullInt64
	if err := row.Scan(&out.ID, &out.UserID, &out.Category, &out.Key, &out.Value,
		&out.Confidence, &out.Source, &expiresAtOut, &created, &updated); err != nil {
		return nil, fmt.Errorf("store: read back learned fact: %w", err)
	}
	if expiresAtOut.Valid {
		t := time.Unix(expiresAtOut.Int64, 0)
		out.ExpiresAt = &t
	}
	out.CreatedAt = time.Unix(created, 0)
	out.UpdatedAt = time.Unix(updated, 0)
	return &out, nil
}

// Forget deletes a fact by (user_id, category, key). Returns ErrNotFound if
// no such fact exists.
func (m *Memory) Forget(ctx context.Context, userID, category, key string) error {
	res, err := m.db.ExecContext(ctx, `
		DELETE FROM user_memory WHERE user_id = ? AND category = ? AND key = ?
	`, userID, category, key)
	if err != nil {
		return fmt.Errorf("store: forget fact %s/%s/%s: %w", userID, category, key, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	m.cache.invalidate(userID)
	return nil
}

// Search runs an FTS5 match over a user's facts (memory.search), ranked by
// bm25 relevance only.
func (m *Memory) Search(ctx context.Context, userID, query string, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT m.id, m.user_id, m.category, m.key, m.value, m.confidence, m.source, m.expires_at, m.created_at, m.updated_at
		FROM user_memory_fts f
		JOIN user_memory m ON m.rowid = f.rowid
		WHERE f MATCH ? AND m.user_id = ?
		ORDER BY bm25(f) LIMIT ?
	`, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search memory for %s: %w", userID, err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// AllForUser returns every non-expired fact for userID, sorted by category
// priority then confidence descending — the ordering the Tier-2 prompt
// assembler truncates from the bottom when trimming to its char cap.
func (m *Memory) AllForUser(ctx context.Context, userID string) ([]Fact, error) {
	if facts, ok := m.cache.get(userID); ok {
		return facts, nil
	}

	now := time.Now().Unix()
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, user_id, category, key, value, confidence, source, expires_at, created_at, updated_at
		FROM user_memory
		WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)
	`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("store: load facts for %s: %w", userID, err)
	}
	defer rows.Close()

	facts, err := scanFacts(rows)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(facts, func(i, j int) bool {
		ri, rj := categoryRank[facts[i].Category], categoryRank[facts[j].Category]
		if ri != rj {
			return ri < rj
		}
		return facts[i].Confidence > facts[j].Confidence
	})
	m.cache.put(userID, facts)
	return facts, nil
}

func scanFacts(rows *sql.Rows) ([]Fact, error) {
	var out []Fact
	for rows.Next() {
		var f Fact
		var created, updated int64
		var expiresAt sql.NullInt64
		if err := rows.Scan(&f.ID, &f.UserID, &f.Category, &f.Key, &f.Value,
			&f.Confidence, &f.Source, &expiresAt, &created, &updated); err != nil {
			return nil, fmt.Errorf("store: scan fact: %w", err)
		}
		if expiresAt.Valid {
			t := time.Unix(expiresAt.Int64, 0)
			f.ExpiresAt = &t
		}
		f.CreatedAt = time.Unix(created, 0)
		f.UpdatedAt = time.Unix(updated, 0)
		out = append(out, f)
	}
	return out, rows.Err()
}

// userContextCache is a tiny LRU-ish cache keyed by user id, capped at
// maxEntries with a per-entry TTL. Grounded on the teacher's LRU pattern
// used for its user resolver, reused here for assembled fact sets.
type userContextCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]cacheEntry
	order   []string
}

type cacheEntry struct {
	facts   []Fact
	expires time.Time
}

func newUserContextCache(max int, ttl time.Duration) *userContextCache {
	return &userContextCache{ttl: ttl, max: max, entries: make(map[string]cacheEntry)}
}

func (c *userContextCache) get(userID string) ([]Fact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.facts, true
}

func (c *userContextCache) put(userID string, facts []Fact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[userID]; !exists {
		if len(c.order) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, userID)
	}
	c.entries[userID] = cacheEntry{facts: facts, expires: time.Now().Add(c.ttl)}
}

func (c *userContextCache) invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
