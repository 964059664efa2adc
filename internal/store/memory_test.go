package store

import (
	"context"
	"testing"
	"time"
)

// TestMemoryLearnForget verifies a fact can be learned and then forgotten,
// with Forget on a nonexistent fact reporting ErrNotFound.
func TestMemoryLearnForget(t *testing.T) {
	db := newTestDB(t)
	m := NewMemory(db)
	ctx := context.Background()

	fact, err := m.Learn(ctx, "u1", CategoryFact, "favorite_color", "blue", 0.9, "chat", nil)
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if fact.Value != "blue" || fact.Category != CategoryFact {
		t.Errorf("unexpected fact: %+v", fact)
	}

	if err := m.Forget(ctx, "u1", CategoryFact, "favorite_color"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if err := m.Forget(ctx, "u1", CategoryFact, "favorite_color"); err != ErrNotFound {
		t.Errorf("second Forget error = %v, want ErrNotFound", err)
	}
}

// TestMemoryLearnUpsertHigherConfidenceWins verifies that learning the same
// (user, category, key) twice keeps the higher-confidence value rather than
// the most recent one: learn(u,c,k,v1,0.9) then learn(u,c,k,v2,0.7) must
// leave v1 in place.
func TestMemoryLearnUpsertHigherConfidenceWins(t *testing.T) {
	db := newTestDB(t)
	m := NewMemory(db)
	ctx := context.Background()

	if _, err := m.Learn(ctx, "u1", CategoryFact, "k", "v1", 0.9, "src", nil); err != nil {
		t.Fatalf("first Learn: %v", err)
	}
	fact, err := m.Learn(ctx, "u1", CategoryFact, "k", "v2", 0.7, "src2", nil)
	if err != nil {
		t.Fatalf("second Learn: %v", err)
	}
	if fact.Value != "v1" || fact.Confidence != 0.9 {
		t.Errorf("expected the higher-confidence write to survive, got %+v", fact)
	}

	all, err := m.AllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("AllForUser: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single fact after upsert, got %d", len(all))
	}
}

// TestMemoryLearnUpsertTieBreaksToNewer verifies that on an exact confidence
// tie, the newer write wins.
func TestMemoryLearnUpsertTieBreaksToNewer(t *testing.T) {
	db := newTestDB(t)
	m := NewMemory(db)
	ctx := context.Background()

	if _, err := m.Learn(ctx, "u1", CategoryFact, "k", "v1", 0.8, "src", nil); err != nil {
		t.Fatalf("first Learn: %v", err)
	}
	fact, err := m.Learn(ctx, "u1", CategoryFact, "k", "v2", 0.8, "src2", nil)
	if err != nil {
		t.Fatalf("second Learn: %v", err)
	}
	if fact.Value != "v2" || fact.Confidence != 0.8 {
		t.Errorf("expected the newer write to win on a confidence tie, got %+v", fact)
	}
}

// TestMemoryLearnUpsertLowerConfidenceLoses verifies a strictly lower
// confidence write never overwrites the stored value.
func TestMemoryLearnUpsertLowerConfidenceLoses(t *testing.T) {
	db := newTestDB(t)
	m := NewMemory(db)
	ctx := context.Background()

	if _, err := m.Learn(ctx, "u1", CategoryFact, "k", "v1", 0.5, "src", nil); err != nil {
		t.Fatalf("first Learn: %v", err)
	}
	if _, err := m.Learn(ctx, "u1", CategoryFact, "k", "v2", 0.3, "src2", nil); err != nil {
		t.Fatalf("second Learn: %v", err)
	}

	all, err := m.AllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("AllForUser: %v", err)
	}
	if len(all) != 1 || all[0].Value != "v1" || all[0].Confidence != 0.5 {
		t.Errorf("expected the lower-confidence write to be rejected, got %+v", all)
	}
}

// TestMemoryLearnExpiresAtIsPersistedAndFiltered verifies an expiry can be
// attached at learn time, is readable back off the returned Fact, and an
// already-expired fact is excluded from AllForUser.
func TestMemoryLearnExpiresAtIsPersistedAndFiltered(t *testing.T) {
	db := newTestDB(t)
	m := NewMemory(db)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	fact, err := m.Learn(ctx, "u1", CategoryFact, "future", "v", 1.0, "src", &future)
	if err != nil {
		t.Fatalf("Learn with future expiry: %v", err)
	}
	if fact.ExpiresAt == nil || fact.ExpiresAt.Unix() != future.Unix() {
		t.Errorf("ExpiresAt = %v, want %v", fact.ExpiresAt, future)
	}

	past := time.Now().Add(-time.Hour)
	if _, err := m.Learn(ctx, "u1", CategoryFact, "past", "v", 1.0, "src", &past); err != nil {
		t.Fatalf("Learn with past expiry: %v", err)
	}

	all, err := m.AllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("AllForUser: %v", err)
	}
	if len(all) != 1 || all[0].Key != "future" {
		t.Errorf("expected only the unexpired fact to remain, got %+v", all)
	}
}

// TestMemorySearch verifies the FTS5 index scopes results to the requesting
// user and matches on value content.
func TestMemorySearch(t *testing.T) {
	db := newTestDB(t)
	m := NewMemory(db)
	ctx := context.Background()

	if _, err := m.Learn(ctx, "u1", CategoryFact, "pet", "has a golden retriever", 1.0, "chat", nil); err != nil {
		t.Fatalf("Learn u1: %v", err)
	}
	if _, err := m.Learn(ctx, "u2", CategoryFact, "pet", "has a golden retriever too", 1.0, "chat", nil); err != nil {
		t.Fatalf("Learn u2: %v", err)
	}

	results, err := m.Search(ctx, "u1", "retriever", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].UserID != "u1" {
		t.Errorf("expected search scoped to u1 only, got %+v", results)
	}
}

// TestMemoryAllForUserOrdering verifies the category-priority-then-confidence
// ordering AllForUser promises for the prompt assembler's truncation pass.
func TestMemoryAllForUserOrdering(t *testing.T) {
	db := newTestDB(t)
	m := NewMemory(db)
	ctx := context.Background()

	if _, err := m.Learn(ctx, "u1", CategoryContext, "c1", "low priority", 1.0, "s", nil); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if _, err := m.Learn(ctx, "u1", CategoryInstruction, "i1", "high priority", 1.0, "s", nil); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if _, err := m.Learn(ctx, "u1", CategoryFact, "f1", "mid, low conf", 0.2, "s", nil); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if _, err := m.Learn(ctx, "u1", CategoryFact, "f2", "mid, high conf", 0.9, "s", nil); err != nil {
		t.Fatalf("Learn: %v", err)
	}

	all, err := m.AllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("AllForUser: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 facts, got %d", len(all))
	}
	if all[0].Category != CategoryInstruction {
		t.Errorf("expected Instruction first, got %+v", all[0])
	}
	if all[1].Key != "f2" || all[2].Key != "f1" {
		t.Errorf("expected Fact entries ordered by confidence descending, got order: %s, %s", all[1].Key, all[2].Key)
	}
	if all[3].Category != CategoryContext {
		t.Errorf("expected Context last, got %+v", all[3])
	}
}

// TestMemoryAllForUserCacheInvalidation verifies that Learn/Forget
// invalidate the per-user cache so a stale fact set isn't served afterward.
func TestMemoryAllForUserCacheInvalidation(t *testing.T) {
	db := newTestDB(t)
	m := NewMemory(db)
	ctx := context.Background()

	if _, err := m.Learn(ctx, "u1", CategoryFact, "k1", "v1", 1.0, "s", nil); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if _, err := m.AllForUser(ctx, "u1"); err != nil {
		t.Fatalf("AllForUser (populate cache): %v", err)
	}

	if _, err := m.Learn(ctx, "u1", CategoryFact, "k2", "v2", 1.0, "s", nil); err != nil {
		t.Fatalf("second Learn: %v", err)
	}
	all, err := m.AllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("AllForUser (after invalidation): %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected cache to reflect the new fact, got %d facts", len(all))
	}
}
