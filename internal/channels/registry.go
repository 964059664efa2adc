package channels

import (
	"context"
	"errors"
	"sync"
)

// ErrChannelOffline is returned when a name isn't registered — the sentinel
// the scheduler records as a job's CHANNEL_OFFLINE failure reason.
var ErrChannelOffline = errors.New("channel offline")

// Registry is the process-global map of connected channel senders, keyed by
// channel name ("slack", "discord", "gateway", …). Concurrent map with
// atomic insert/remove, per spec.md §5's shared-resource table.
type Registry struct {
	mu       sync.RWMutex
	senders  map[string]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

// Register installs (or replaces) the sender for channel, called by an
// adapter when it comes online.
func (r *Registry) Register(channel string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[channel] = s
}

// Unregister removes channel, called by an adapter when it disconnects.
func (r *Registry) Unregister(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.senders, channel)
}

// Send looks up channel and posts message to recipient, returning
// ErrChannelOffline if no adapter is currently registered for it.
func (r *Registry) Send(ctx context.Context, channel, recipient, message, priority string) error {
	r.mu.RLock()
	s, ok := r.senders[channel]
	r.mu.RUnlock()
	if !ok {
		return ErrChannelOffline
	}
	return s.Send(ctx, recipient, message, priority)
}

// Connected reports whether channel currently has a registered sender.
func (r *Registry) Connected(channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.senders[channel]
	return ok
}

// Names lists every currently registered channel.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.senders))
	for name := range r.senders {
		out = append(out, name)
	}
	return out
}
