package users

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/skynet-run/skynet/internal/store"
)

func newTestResolver(t *testing.T, capacity int) *Resolver {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.EnsureSchema(db); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return New(store.NewIdentities(db), store.NewUsers(db), capacity)
}

// TestResolveCreatesOnFirstContact verifies that resolving an unseen
// (channel, external_id) pair creates a new user and reports NewlyCreated.
func TestResolveCreatesOnFirstContact(t *testing.T) {
	r := newTestResolver(t, 256)
	ctx := context.Background()

	res, err := r.Resolve(ctx, "telegram", "ext-1", "Ada")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.NewlyCreated {
		t.Error("expected NewlyCreated true on first contact")
	}
	if res.User.DisplayName != "Ada" {
		t.Errorf("DisplayName = %q, want %q", res.User.DisplayName, "Ada")
	}
}

// TestResolveReturnsSameUserOnRepeat verifies that resolving the same
// identity twice returns the same user id and NewlyCreated false the second
// time.
func TestResolveReturnsSameUserOnRepeat(t *testing.T) {
	r := newTestResolver(t, 256)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "telegram", "ext-1", "Ada")
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	second, err := r.Resolve(ctx, "telegram", "ext-1", "ignored hint")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if second.NewlyCreated {
		t.Error("expected NewlyCreated false on repeat resolve")
	}
	if second.User.ID != first.User.ID {
		t.Errorf("expected the same user id, got %s vs %s", first.User.ID, second.User.ID)
	}
}

// TestResolveDistinctChannelsDistinctUsers verifies that the same external
// id on two different channels, absent a self-link, resolves to two
// different users.
func TestResolveDistinctChannelsDistinctUsers(t *testing.T) {
	r := newTestResolver(t, 256)
	ctx := context.Background()

	a, err := r.Resolve(ctx, "telegram", "shared-id", "A")
	if err != nil {
		t.Fatalf("Resolve telegram: %v", err)
	}
	b, err := r.Resolve(ctx, "discord", "shared-id", "B")
	if err != nil {
		t.Fatalf("Resolve discord: %v", err)
	}
	if a.User.ID == b.User.ID {
		t.Error("expected distinct users for the same external id on different channels")
	}
}

// TestSelfLinkMergesIdentityOntoTargetUser verifies that SelfLink moves a
// (channel, external_id) mapping onto a different target user, and that the
// LRU cache is invalidated so a subsequent Resolve doesn't serve the stale
// mapping.
func TestSelfLinkMergesIdentityOntoTargetUser(t *testing.T) {
	r := newTestResolver(t, 256)
	ctx := context.Background()

	source, err := r.Resolve(ctx, "telegram", "src", "Source User")
	if err != nil {
		t.Fatalf("Resolve source: %v", err)
	}
	target, err := r.Resolve(ctx, "discord", "tgt", "Target User")
	if err != nil {
		t.Fatalf("Resolve target: %v", err)
	}

	if err := r.SelfLink(ctx, "telegram", "src", target.User.ID); err != nil {
		t.Fatalf("SelfLink: %v", err)
	}

	merged, err := r.Resolve(ctx, "telegram", "src", "ignored")
	if err != nil {
		t.Fatalf("Resolve after SelfLink: %v", err)
	}
	if merged.User.ID != target.User.ID {
		t.Errorf("expected telegram/src to resolve to target user %s, got %s", target.User.ID, merged.User.ID)
	}
	if merged.User.ID == source.User.ID {
		t.Error("expected telegram/src no longer resolves to the original source user")
	}
}

// TestResolverCacheEviction verifies the LRU cache evicts the least recently
// used entry once capacity is exceeded, without affecting correctness (the
// evicted identity still resolves correctly via a DB fallback).
func TestResolverCacheEviction(t *testing.T) {
	r := newTestResolver(t, 2)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "c", "1", "u1")
	if err != nil {
		t.Fatalf("Resolve 1: %v", err)
	}
	if _, err := r.Resolve(ctx, "c", "2", "u2"); err != nil {
		t.Fatalf("Resolve 2: %v", err)
	}
	if _, err := r.Resolve(ctx, "c", "3", "u3"); err != nil {
		t.Fatalf("Resolve 3: %v", err)
	}

	// Cache capacity is 2; identity "1" should have been evicted, but
	// resolving it again must still work (falls through to the DB) and
	// return the same user id as before.
	again, err := r.Resolve(ctx, "c", "1", "ignored")
	if err != nil {
		t.Fatalf("Resolve 1 again: %v", err)
	}
	if again.User.ID != first.User.ID {
		t.Errorf("expected evicted identity to still resolve to the same user, got %s vs %s", again.User.ID, first.User.ID)
	}
}
