package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// KnowledgeEntry is one topic in the shared knowledge base.
type KnowledgeEntry struct {
	Topic     string
	Content   string
	Tags      []string
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Knowledge owns the knowledge table and its FTS index.
type Knowledge struct {
	db *sql.DB
}

func NewKnowledge(db *sql.DB) *Knowledge { return &Knowledge{db: db} }

// Write upserts a knowledge entry by topic (knowledge_search/write tool
// backing store).
func (k *Knowledge) Write(ctx context.Context, topic, content string, tags []string, source string) (*KnowledgeEntry, error) {
	now := time.Now()
	tagStr := strings.Join(tags, ",")
	_, err := k.db.ExecContext(ctx, `
		INSERT INTO knowledge (topic, content, tags, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(topic) DO UPDATE SET content = excluded.content, tags = excluded.tags,
			source = excluded.source, updated_at = excluded.updated_at
	`, topic, content, tagStr, source, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: write knowledge %q: %w", topic, err)
	}
	return k.Get(ctx, topic)
}

// Get fetches one entry by topic.
func (k *Knowledge) Get(ctx context.Context, topic string) (*KnowledgeEntry, error) {
	row := k.db.QueryRowContext(ctx, `
		SELECT topic, content, tags, source, created_at, updated_at FROM knowledge WHERE topic = ?
	`, topic)
	return scanKnowledge(row)
}

func scanKnowledge(row *sql.Row) (*KnowledgeEntry, error) {
	var e KnowledgeEntry
	var tagStr string
	var created, updated int64
	err := row.Scan(&e.Topic, &e.Content, &tagStr, &e.Source, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan knowledge: %w", err)
	}
	if tagStr != "" {
		e.Tags = strings.Split(tagStr, ",")
	}
	e.CreatedAt = time.Unix(created, 0)
	e.UpdatedAt = time.Unix(updated, 0)
	return &e, nil
}

// Delete removes an entry by topic.
func (k *Knowledge) Delete(ctx context.Context, topic string) error {
	res, err := k.db.ExecContext(ctx, `DELETE FROM knowledge WHERE topic = ?`, topic)
	if err != nil {
		return fmt.Errorf("store: delete knowledge %q: %w", topic, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every topic, sorted alphabetically (knowledge_list tool).
func (k *Knowledge) List(ctx context.Context) ([]string, error) {
	rows, err := k.db.QueryContext(ctx, `SELECT topic FROM knowledge ORDER BY topic ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list knowledge: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("store: scan knowledge topic: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Search runs an FTS5 match across topic/content/tags, ranked by bm25.
func (k *Knowledge) Search(ctx context.Context, query string, limit int) ([]KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := k.db.QueryContext(ctx, `
		SELECT k.topic, k.content, k.tags, k.source, k.created_at, k.updated_at
		FROM knowledge_fts f
		JOIN knowledge k ON k.rowid = f.rowid
		WHERE f MATCH ? ORDER BY bm25(f) LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search knowledge: %w", err)
	}
	defer rows.Close()

	var out []KnowledgeEntry
	for rows.Next() {
		var e KnowledgeEntry
		var tagStr string
		var created, updated int64
		if err := rows.Scan(&e.Topic, &e.Content, &tagStr, &e.Source, &created, &updated); err != nil {
			return nil, fmt.Errorf("store: scan knowledge search row: %w", err)
		}
		if tagStr != "" {
			e.Tags = strings.Split(tagStr, ",")
		}
		e.CreatedAt = time.Unix(created, 0)
		e.UpdatedAt = time.Unix(updated, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SeedFromDir loads every *.md file under dir as a knowledge entry, using
// the file's base name (without extension) as the topic. Entries already
// present in the database are left untouched — this only seeds topics that
// don't yet exist, so operator edits to the live DB survive a restart.
func (k *Knowledge) SeedFromDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("store: read knowledge seed dir %s: %w", dir, err)
	}

	seeded := 0
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".md") {
			continue
		}
		topic := strings.TrimSuffix(ent.Name(), ".md")
		if _, err := k.Get(ctx, topic); err == nil {
			continue // already present, don't clobber operator edits
		}
		raw, err := os.ReadFile(filepath.Join(dir, ent.Name()))
		if err != nil {
			return seeded, fmt.Errorf("store: read seed file %s: %w", ent.Name(), err)
		}
		content, tags := splitSeedTags(string(raw))
		if _, err := k.Write(ctx, topic, content, tags, "seed"); err != nil {
			return seeded, fmt.Errorf("store: seed topic %q: %w", topic, err)
		}
		seeded++
	}
	return seeded, nil
}

// splitSeedTags parses an optional leading "tags: a,b,c" line off of a seed
// file's content, returning the remaining body and the parsed tag list.
func splitSeedTags(raw string) (content string, tags []string) {
	first, rest, found := strings.Cut(raw, "\n")
	if !found {
		first, rest = raw, ""
	}
	trimmed := strings.TrimSpace(first)
	if !strings.HasPrefix(strings.ToLower(trimmed), "tags:") {
		return raw, nil
	}
	tagPart := strings.TrimSpace(trimmed[len("tags:"):])
	for _, t := range strings.Split(tagPart, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return strings.TrimPrefix(rest, "\n"), tags
}
