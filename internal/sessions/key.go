// Package sessions builds and parses the gateway's session key format:
// user:{user_id}:{channel}:{context_suffix}.
package sessions

import (
	"fmt"
	"strings"
)

// Well-known context suffixes. A thread or group suffix carries its own id
// appended after an underscore (e.g. "group_g123", "thread_t456").
const (
	SuffixDM      = "dm"
	SuffixDefault = "default"
	groupPrefix   = "group_"
	threadPrefix  = "thread_"
)

// Key is a parsed session key.
type Key struct {
	UserID        string
	Channel       string
	ContextSuffix string
}

// GroupSuffix returns the context suffix for a group conversation with id.
func GroupSuffix(id string) string { return groupPrefix + id }

// ThreadSuffix returns the context suffix for a threaded conversation with id.
func ThreadSuffix(id string) string { return threadPrefix + id }

// String renders k back into the wire format user:{user_id}:{channel}:{context_suffix}.
func (k Key) String() string {
	return fmt.Sprintf("user:%s:%s:%s", k.UserID, k.Channel, k.ContextSuffix)
}

// Build constructs a session key string directly.
func Build(userID, channel, contextSuffix string) string {
	return Key{UserID: userID, Channel: channel, ContextSuffix: contextSuffix}.String()
}

// Parse splits a session key back into its parts. The context suffix may
// itself contain colons (e.g. a thread id copied from an upstream system),
// so Parse only splits on the first three colons and takes everything after
// as the suffix.
func Parse(key string) (Key, error) {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 || parts[0] != "user" {
		return Key{}, fmt.Errorf("sessions: malformed session key %q", key)
	}
	if parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return Key{}, fmt.Errorf("sessions: session key %q has an empty component", key)
	}
	return Key{UserID: parts[1], Channel: parts[2], ContextSuffix: parts[3]}, nil
}

// IsGroup reports whether the context suffix names a group conversation.
func (k Key) IsGroup() bool { return strings.HasPrefix(k.ContextSuffix, groupPrefix) }

// IsThread reports whether the context suffix names a threaded conversation.
func (k Key) IsThread() bool { return strings.HasPrefix(k.ContextSuffix, threadPrefix) }
