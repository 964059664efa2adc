package tools

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/skynet-run/skynet/internal/store"
	"github.com/skynet-run/skynet/internal/users"
)

const linkCodeTTL = 10 * time.Minute

// CallerIdentity is the (channel, external_id, user_id) of whoever is
// invoking a tool call, threaded in through ctx by the agent loop.
type CallerIdentity struct {
	Channel    string
	ExternalID string
	UserID     string
}

type callerIdentityKey struct{}

// ContextWithCaller attaches ci to ctx for link_identity and similar tools
// that need to know who's calling, not just which session is active.
func ContextWithCaller(ctx context.Context, ci CallerIdentity) context.Context {
	return context.WithValue(ctx, callerIdentityKey{}, ci)
}

func callerFromContext(ctx context.Context) (CallerIdentity, bool) {
	ci, ok := ctx.Value(callerIdentityKey{}).(CallerIdentity)
	return ci, ok
}

// CallerFromContext exposes the calling identity to tools/handlers outside
// this package (e.g. the reminder tool's userID callback), matching what
// ContextWithCaller attached.
func CallerFromContext(ctx context.Context) (CallerIdentity, bool) {
	return callerFromContext(ctx)
}

// pendingLink is a verification code waiting to be redeemed from a second
// channel, generated by "generate" and consumed by "verify".
type pendingLink struct {
	targetUserID string
	expiresAt    time.Time
}

// LinkIdentity registers link_identity: generate/verify/list/unlink
// cross-channel identity bindings, backed by the user resolver's
// identity table plus a short-lived in-process verification-code store.
type LinkIdentity struct {
	identities *store.Identities
	resolver   *users.Resolver

	mu      sync.Mutex
	pending map[string]pendingLink
}

func NewLinkIdentity(identities *store.Identities, resolver *users.Resolver) *LinkIdentity {
	return &LinkIdentity{identities: identities, resolver: resolver, pending: make(map[string]pendingLink)}
}

func (li *LinkIdentity) Register(r *Registry) {
	r.Register("link_identity", "Generate, verify, list, or unlink cross-channel identity bindings", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action":  map[string]interface{}{"type": "string", "enum": []string{"generate", "verify", "list", "unlink"}},
			"code":    map[string]interface{}{"type": "string", "description": "Verification code, for verify"},
			"channel": map[string]interface{}{"type": "string", "description": "Channel to unlink, for unlink"},
		},
		"required": []string{"action"},
	}, li.run)
}

func (li *LinkIdentity) run(ctx context.Context, args map[string]interface{}) *Result {
	caller, ok := callerFromContext(ctx)
	if !ok {
		return ErrorResult("link_identity requires caller identity, which is unavailable in this context")
	}
	action, _ := args["action"].(string)

	switch action {
	case "generate":
		return li.generate(caller)
	case "verify":
		code, _ := args["code"].(string)
		if code == "" {
			return ErrorResult("code is required to verify")
		}
		return li.verify(ctx, caller, code)
	case "list":
		return li.list(ctx, caller)
	case "unlink":
		channel, _ := args["channel"].(string)
		if channel == "" {
			return ErrorResult("channel is required to unlink")
		}
		return li.unlink(ctx, caller, channel)
	default:
		return ErrorResult(fmt.Sprintf("unknown action %q", action))
	}
}

func (li *LinkIdentity) generate(caller CallerIdentity) *Result {
	code := randomCode()
	li.mu.Lock()
	li.pending[code] = pendingLink{targetUserID: caller.UserID, expiresAt: time.Now().Add(linkCodeTTL)}
	li.mu.Unlock()
	return SilentResult(fmt.Sprintf("verification code: %s (expires in %s; enter it from the other channel to link it to this account)", code, linkCodeTTL))
}

func (li *LinkIdentity) verify(ctx context.Context, caller CallerIdentity, code string) *Result {
	li.mu.Lock()
	pl, ok := li.pending[code]
	if ok {
		delete(li.pending, code)
	}
	li.mu.Unlock()

	if !ok {
		return ErrorResult("unknown or already-used verification code")
	}
	if time.Now().After(pl.expiresAt) {
		return ErrorResult("verification code has expired")
	}

	if err := li.resolver.SelfLink(ctx, caller.Channel, caller.ExternalID, pl.targetUserID); err != nil {
		return ErrorResult(fmt.Sprintf("failed to link identity: %v", err))
	}
	return SilentResult(fmt.Sprintf("linked %s on this account", caller.Channel))
}

func (li *LinkIdentity) list(ctx context.Context, caller CallerIdentity) *Result {
	ids, err := li.identities.ListForUser(ctx, caller.UserID)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to list identities: %v", err))
	}
	if len(ids) == 0 {
		return SilentResult("no linked identities")
	}
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "%s: %s\n", id.Channel, id.ExternalID)
	}
	return SilentResult(b.String())
}

func (li *LinkIdentity) unlink(ctx context.Context, caller CallerIdentity, channel string) *Result {
	if channel == caller.Channel {
		return ErrorResult("cannot unlink the channel you're currently using")
	}
	ids, err := li.identities.ListForUser(ctx, caller.UserID)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to list identities: %v", err))
	}
	for _, id := range ids {
		if id.Channel == channel {
			if err := li.identities.Unlink(ctx, channel, id.ExternalID); err != nil {
				return ErrorResult(fmt.Sprintf("failed to unlink: %v", err))
			}
			return SilentResult(fmt.Sprintf("unlinked %s", channel))
		}
	}
	return ErrorResult(fmt.Sprintf("no linked identity for channel %q", channel))
}

func randomCode() string {
	buf := make([]byte, 5)
	_, _ = rand.Read(buf)
	return strings.ToUpper(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf))
}
