package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestFilesystem(t *testing.T) (*Filesystem, string) {
	t.Helper()
	dir := t.TempDir()
	return NewFilesystem(dir, true), dir
}

// TestFilesystemWriteThenReadFile verifies a round trip through write_file
// then read_file returns the same content.
func TestFilesystemWriteThenReadFile(t *testing.T) {
	fs, _ := newTestFilesystem(t)
	ctx := context.Background()

	res := fs.writeFile(ctx, map[string]interface{}{"path": "note.txt", "content": "hello world"})
	if res.IsError {
		t.Fatalf("writeFile: %s", res.ForLLM)
	}

	res = fs.readFile(ctx, map[string]interface{}{"path": "note.txt"})
	if res.IsError {
		t.Fatalf("readFile: %s", res.ForLLM)
	}
	if res.ForLLM != "hello world" {
		t.Errorf("content = %q, want %q", res.ForLLM, "hello world")
	}
}

// TestFilesystemReadFileNotFound verifies reading a missing file returns a
// NOT_FOUND error result rather than a Go error.
func TestFilesystemReadFileNotFound(t *testing.T) {
	fs, _ := newTestFilesystem(t)
	res := fs.readFile(context.Background(), map[string]interface{}{"path": "missing.txt"})
	if !res.IsError {
		t.Fatal("expected an error result for a missing file")
	}
	if !strings.HasPrefix(res.ForLLM, "NOT_FOUND") {
		t.Errorf("ForLLM = %q, want NOT_FOUND prefix", res.ForLLM)
	}
}

// TestFilesystemReadFileOffsetAndLimit verifies the offset/limit line window
// works as a 0-indexed slice of lines.
func TestFilesystemReadFileOffsetAndLimit(t *testing.T) {
	fs, dir := newTestFilesystem(t)
	content := "line0\nline1\nline2\nline3\nline4"
	if err := os.WriteFile(filepath.Join(dir, "multi.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	res := fs.readFile(context.Background(), map[string]interface{}{"path": "multi.txt", "offset": float64(1), "limit": float64(2)})
	if res.IsError {
		t.Fatalf("readFile: %s", res.ForLLM)
	}
	if res.ForLLM != "line1\nline2" {
		t.Errorf("ForLLM = %q, want %q", res.ForLLM, "line1\nline2")
	}
}

// TestFilesystemWriteFileCreatesParentDirs verifies write_file makes any
// missing parent directories.
func TestFilesystemWriteFileCreatesParentDirs(t *testing.T) {
	fs, dir := newTestFilesystem(t)
	res := fs.writeFile(context.Background(), map[string]interface{}{"path": "a/b/c.txt", "content": "nested"})
	if res.IsError {
		t.Fatalf("writeFile: %s", res.ForLLM)
	}
	data, err := os.ReadFile(filepath.Join(dir, "a", "b", "c.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "nested" {
		t.Errorf("content = %q, want %q", data, "nested")
	}
}

// TestFilesystemListFilesSortedByName verifies list_files returns entries
// sorted alphabetically with kind and size columns.
func TestFilesystemListFilesSortedByName(t *testing.T) {
	fs, dir := newTestFilesystem(t)
	if err := os.WriteFile(filepath.Join(dir, "zeta.txt"), []byte("z"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "alpha.txt"), []byte("ab"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	res := fs.listFiles(context.Background(), map[string]interface{}{})
	if res.IsError {
		t.Fatalf("listFiles: %s", res.ForLLM)
	}
	alphaIdx := strings.Index(res.ForLLM, "alpha.txt")
	subIdx := strings.Index(res.ForLLM, "sub")
	zetaIdx := strings.Index(res.ForLLM, "zeta.txt")
	if !(alphaIdx < subIdx && subIdx < zetaIdx) {
		t.Errorf("expected alphabetical order, got:\n%s", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "dir\tsub") {
		t.Errorf("expected sub to be tagged as dir, got:\n%s", res.ForLLM)
	}
}

// TestFilesystemSearchFilesFindsSubstring verifies search_files reports the
// file, line number, and matching line for a substring match.
func TestFilesystemSearchFilesFindsSubstring(t *testing.T) {
	fs, dir := newTestFilesystem(t)
	if err := os.WriteFile(filepath.Join(dir, "code.go"), []byte("package main\n\nfunc needle() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := fs.searchFiles(context.Background(), map[string]interface{}{"query": "needle"})
	if res.IsError {
		t.Fatalf("searchFiles: %s", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "code.go:3:") {
		t.Errorf("expected a code.go:3: match, got:\n%s", res.ForLLM)
	}
}

// TestFilesystemSearchFilesNoMatches verifies a query with no hits reports
// "no matches" rather than an empty or error result.
func TestFilesystemSearchFilesNoMatches(t *testing.T) {
	fs, dir := newTestFilesystem(t)
	if err := os.WriteFile(filepath.Join(dir, "code.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := fs.searchFiles(context.Background(), map[string]interface{}{"query": "nonexistent-token"})
	if res.IsError {
		t.Fatalf("searchFiles: %s", res.ForLLM)
	}
	if res.ForLLM != "no matches" {
		t.Errorf("ForLLM = %q, want %q", res.ForLLM, "no matches")
	}
}

// TestFilesystemPatchFileSingleMatch verifies patch_file replaces a unique
// substring and reports a diff.
func TestFilesystemPatchFileSingleMatch(t *testing.T) {
	fs, dir := newTestFilesystem(t)
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("before value here"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := fs.patchFile(context.Background(), map[string]interface{}{"path": "f.txt", "old_str": "value", "new_str": "VALUE"})
	if res.IsError {
		t.Fatalf("patchFile: %s", res.ForLLM)
	}
	data, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "before VALUE here" {
		t.Errorf("content = %q, want %q", data, "before VALUE here")
	}
}

// TestFilesystemPatchFileAmbiguousMatchRequiresReplaceAll verifies a
// multiply-occurring old_str is rejected unless replace_all is set.
func TestFilesystemPatchFileAmbiguousMatchRequiresReplaceAll(t *testing.T) {
	fs, dir := newTestFilesystem(t)
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("dup dup dup"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := fs.patchFile(context.Background(), map[string]interface{}{"path": "f.txt", "old_str": "dup", "new_str": "X"})
	if !res.IsError {
		t.Fatal("expected an error for an ambiguous old_str without replace_all")
	}

	res = fs.patchFile(context.Background(), map[string]interface{}{"path": "f.txt", "old_str": "dup", "new_str": "X", "replace_all": true})
	if res.IsError {
		t.Fatalf("patchFile with replace_all: %s", res.ForLLM)
	}
	data, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "X X X" {
		t.Errorf("content = %q, want %q", data, "X X X")
	}
}

// TestFilesystemPatchFileNoMatch verifies patch_file errors when old_str
// doesn't occur in the file at all.
func TestFilesystemPatchFileNoMatch(t *testing.T) {
	fs, dir := newTestFilesystem(t)
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := fs.patchFile(context.Background(), map[string]interface{}{"path": "f.txt", "old_str": "nonexistent", "new_str": "X"})
	if !res.IsError {
		t.Fatal("expected an error when old_str isn't found")
	}
}

// TestFilesystemResolvePathRejectsEscapeViaAbsolutePath verifies that with
// restriction enabled, an absolute path outside the workspace is rejected.
func TestFilesystemResolvePathRejectsEscapeViaAbsolutePath(t *testing.T) {
	fs, _ := newTestFilesystem(t)
	res := fs.readFile(context.Background(), map[string]interface{}{"path": "/etc/passwd"})
	if !res.IsError {
		t.Fatal("expected an error reading an absolute path outside the workspace")
	}
	if !strings.HasPrefix(res.ForLLM, "PERMISSION") {
		t.Errorf("ForLLM = %q, want PERMISSION prefix", res.ForLLM)
	}
}

// TestFilesystemResolvePathRejectsDotDotEscape verifies a relative path that
// walks above the workspace root via ".." is rejected.
func TestFilesystemResolvePathRejectsDotDotEscape(t *testing.T) {
	fs, _ := newTestFilesystem(t)
	res := fs.readFile(context.Background(), map[string]interface{}{"path": "../../../../etc/passwd"})
	if !res.IsError {
		t.Fatal("expected an error for a path escaping the workspace via ..")
	}
}

// TestFilesystemUnrestrictedAllowsAbsolutePath verifies that with
// restriction disabled, an absolute path resolves without error.
func TestFilesystemUnrestrictedAllowsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	fs := NewFilesystem(dir, false)
	outside := filepath.Join(t.TempDir(), "elsewhere.txt")
	if err := os.WriteFile(outside, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := fs.readFile(context.Background(), map[string]interface{}{"path": outside})
	if res.IsError {
		t.Fatalf("readFile: %s", res.ForLLM)
	}
	if res.ForLLM != "data" {
		t.Errorf("ForLLM = %q, want %q", res.ForLLM, "data")
	}
}
