package store

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// newTestDB opens a fresh on-disk SQLite database under a temp directory and
// applies the schema, closing it automatically when the test ends.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := EnsureSchema(db); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return db
}
