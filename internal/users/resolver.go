// Package users resolves a (channel, external_id) pair to an internal user,
// creating one on first contact, and supports linking multiple channel
// identities to a single user.
package users

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/skynet-run/skynet/internal/store"
)

// Resolution is the result of resolving a channel identity.
type Resolution struct {
	User         *store.User
	NewlyCreated bool
}

// Resolver wraps store.Identities/store.Users with a bounded LRU cache over
// recently resolved identities, so a hot channel doesn't hit SQLite on
// every inbound message.
type Resolver struct {
	identities *store.Identities
	users      *store.Users

	mu    sync.Mutex
	cap   int
	ll    *list.List
	index map[string]*list.Element
}

type lruEntry struct {
	key    string
	userID string
}

// New constructs a Resolver with the given cache capacity (spec.md calls
// for 256 entries).
func New(identities *store.Identities, users *store.Users, capacity int) *Resolver {
	if capacity <= 0 {
		capacity = 256
	}
	return &Resolver{
		identities: identities,
		users:      users,
		cap:        capacity,
		ll:         list.New(),
		index:      make(map[string]*list.Element),
	}
}

func cacheKey(channel, externalID string) string { return channel + "\x00" + externalID }

// Resolve looks up (channel, externalID), creating both the identity link
// and a new user row on first contact.
func (r *Resolver) Resolve(ctx context.Context, channel, externalID, displayNameHint string) (*Resolution, error) {
	if userID, ok := r.cacheGet(channel, externalID); ok {
		u, err := r.users.Get(ctx, userID)
		if err == nil {
			return &Resolution{User: u}, nil
		}
		// stale cache entry pointing at a deleted user; fall through to DB lookup
	}

	userID, err := r.identities.Lookup(ctx, channel, externalID)
	switch err {
	case nil:
		u, err := r.users.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("users: resolve %s/%s: load user %s: %w", channel, externalID, userID, err)
		}
		r.cachePut(channel, externalID, userID)
		return &Resolution{User: u}, nil
	case store.ErrNotFound:
		newID := uuid.NewString()
		u, err := r.users.Create(ctx, newID, displayNameHint)
		if err != nil {
			return nil, fmt.Errorf("users: create user for %s/%s: %w", channel, externalID, err)
		}
		if err := r.identities.Link(ctx, channel, externalID, newID); err != nil {
			return nil, fmt.Errorf("users: link new identity %s/%s: %w", channel, externalID, err)
		}
		r.cachePut(channel, externalID, newID)
		return &Resolution{User: u, NewlyCreated: true}, nil
	default:
		return nil, fmt.Errorf("users: lookup identity %s/%s: %w", channel, externalID, err)
	}
}

// SelfLink associates an additional (channel, external_id) with an existing
// target user, e.g. after a user proves ownership of a second channel
// identity via a link code. If the identity was already linked to a
// different user, it is first unlinked.
func (r *Resolver) SelfLink(ctx context.Context, sourceChannel, sourceExternalID, targetUserID string) error {
	if existing, err := r.identities.Lookup(ctx, sourceChannel, sourceExternalID); err == nil {
		if existing == targetUserID {
			return nil
		}
		if err := r.identities.Unlink(ctx, sourceChannel, sourceExternalID); err != nil {
			return fmt.Errorf("users: unlink prior identity %s/%s: %w", sourceChannel, sourceExternalID, err)
		}
		r.cacheInvalidate(sourceChannel, sourceExternalID)
	}
	if err := r.identities.Link(ctx, sourceChannel, sourceExternalID, targetUserID); err != nil {
		return fmt.Errorf("users: self-link %s/%s -> %s: %w", sourceChannel, sourceExternalID, targetUserID, err)
	}
	r.cachePut(sourceChannel, sourceExternalID, targetUserID)
	return nil
}

func (r *Resolver) cacheGet(channel, externalID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := cacheKey(channel, externalID)
	el, ok := r.index[key]
	if !ok {
		return "", false
	}
	r.ll.MoveToFront(el)
	return el.Value.(*lruEntry).userID, true
}

func (r *Resolver) cachePut(channel, externalID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := cacheKey(channel, externalID)
	if el, ok := r.index[key]; ok {
		el.Value.(*lruEntry).userID = userID
		r.ll.MoveToFront(el)
		return
	}
	el := r.ll.PushFront(&lruEntry{key: key, userID: userID})
	r.index[key] = el
	if r.ll.Len() > r.cap {
		oldest := r.ll.Back()
		if oldest != nil {
			r.ll.Remove(oldest)
			delete(r.index, oldest.Value.(*lruEntry).key)
		}
	}
}

func (r *Resolver) cacheInvalidate(channel, externalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := cacheKey(channel, externalID)
	if el, ok := r.index[key]; ok {
		r.ll.Remove(el)
		delete(r.index, key)
	}
}
