package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestSkillReadFindsDocInFirstDirectory verifies a skill present only in the
// first search directory is returned.
func TestSkillReadFindsDocInFirstDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "deploy.md"), []byte("# Deploy\nrun the pipeline"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sr := NewSkillRead(dir)
	res := sr.read(context.Background(), map[string]interface{}{"name": "deploy"})
	if res.IsError {
		t.Fatalf("read: %s", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "run the pipeline") {
		t.Errorf("ForLLM = %q, want it to contain the skill body", res.ForLLM)
	}
}

// TestSkillReadEarlierDirectoryShadowsLater verifies that when the same
// skill name exists in two directories, the first one searched wins.
func TestSkillReadEarlierDirectoryShadowsLater(t *testing.T) {
	override := t.TempDir()
	shared := t.TempDir()
	if err := os.WriteFile(filepath.Join(override, "deploy.md"), []byte("override body"), 0o644); err != nil {
		t.Fatalf("WriteFile override: %v", err)
	}
	if err := os.WriteFile(filepath.Join(shared, "deploy.md"), []byte("shared body"), 0o644); err != nil {
		t.Fatalf("WriteFile shared: %v", err)
	}

	sr := NewSkillRead(override, shared)
	res := sr.read(context.Background(), map[string]interface{}{"name": "deploy"})
	if res.IsError {
		t.Fatalf("read: %s", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "override body") || strings.Contains(res.ForLLM, "shared body") {
		t.Errorf("ForLLM = %q, want only the override directory's body", res.ForLLM)
	}
}

// TestSkillReadFallsThroughToLaterDirectory verifies a skill missing from
// the first directory is still found in a later one.
func TestSkillReadFallsThroughToLaterDirectory(t *testing.T) {
	override := t.TempDir()
	shared := t.TempDir()
	if err := os.WriteFile(filepath.Join(shared, "onboarding.md"), []byte("welcome aboard"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sr := NewSkillRead(override, shared)
	res := sr.read(context.Background(), map[string]interface{}{"name": "onboarding"})
	if res.IsError {
		t.Fatalf("read: %s", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "welcome aboard") {
		t.Errorf("ForLLM = %q, want the shared directory's body", res.ForLLM)
	}
}

// TestSkillReadUnknownNameReportsNotFound verifies a name absent from every
// directory returns a NOT_FOUND error.
func TestSkillReadUnknownNameReportsNotFound(t *testing.T) {
	sr := NewSkillRead(t.TempDir())
	res := sr.read(context.Background(), map[string]interface{}{"name": "does-not-exist"})
	if !res.IsError {
		t.Fatal("expected an error for an unknown skill name")
	}
	if !strings.Contains(res.ForLLM, "NOT_FOUND") {
		t.Errorf("ForLLM = %q, want it to mention NOT_FOUND", res.ForLLM)
	}
}

// TestSkillReadRejectsPathSeparatorInName verifies a name containing a path
// separator is rejected before any filesystem access.
func TestSkillReadRejectsPathSeparatorInName(t *testing.T) {
	sr := NewSkillRead(t.TempDir())
	res := sr.read(context.Background(), map[string]interface{}{"name": "../etc/passwd"})
	if !res.IsError {
		t.Fatal("expected an error for a name containing a path separator")
	}
}

// TestSkillReadMissingNameErrors verifies an empty name is rejected.
func TestSkillReadMissingNameErrors(t *testing.T) {
	sr := NewSkillRead(t.TempDir())
	res := sr.read(context.Background(), map[string]interface{}{})
	if !res.IsError {
		t.Fatal("expected an error for a missing name")
	}
}
