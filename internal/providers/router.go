package providers

import (
	"context"
	"errors"
	"fmt"
)

// Router dispatches a chat request to registered providers in priority
// order, falling over to the next one on a retriable failure. A terminal
// failure (bad request, auth rejected outright) is returned immediately
// without trying the rest of the list. Every attempt is recorded in the
// health tracker, but health is not consulted when choosing the order. Chat
// and ChatStream return the name of the provider that served the call; the
// Router itself keeps no record of it.
type Router struct {
	order   []string
	entries map[string]Provider
	health  *HealthTracker
}

func NewRouter(health *HealthTracker) *Router {
	return &Router{entries: make(map[string]Provider), health: health}
}

// Register adds a provider under name at the end of the priority order.
func (r *Router) Register(name string, p Provider) {
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = p
}

// SetPriority overrides the dispatch order explicitly (config's
// providers.priority list).
func (r *Router) SetPriority(order []string) {
	r.order = order
}

var ErrNoProvidersAvailable = errors.New("providers: no provider in the priority list succeeded")

// Chat dispatches req to providers in priority order, recording each
// attempt's outcome in the health tracker and failing over only on a
// retriable classification (RetryDo already exhausted each provider's own
// attempt budget, so failover here is across distinct providers, not a
// retry of the same one).
func (r *Router) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, string, error) {
	if len(r.order) == 0 {
		return nil, "", ErrNoProvidersAvailable
	}

	var lastErr error
	for _, name := range r.order {
		p, ok := r.entries[name]
		if !ok {
			continue
		}
		resp, err := p.Chat(ctx, req)
		if err == nil {
			r.health.Record(name, true, 0)
			return resp, name, nil
		}
		r.health.Record(name, false, httpStatusOf(err))
		lastErr = err
		if !Retriable(err) {
			return nil, name, fmt.Errorf("providers: %s returned a terminal error: %w", name, err)
		}
	}
	return nil, "", fmt.Errorf("%w: last error: %v", ErrNoProvidersAvailable, lastErr)
}

// ChatStream dispatches a streaming request the same way Chat does.
func (r *Router) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, string, error) {
	if len(r.order) == 0 {
		return nil, "", ErrNoProvidersAvailable
	}

	var lastErr error
	for _, name := range r.order {
		p, ok := r.entries[name]
		if !ok {
			continue
		}
		resp, err := p.ChatStream(ctx, req, onChunk)
		if err == nil {
			r.health.Record(name, true, 0)
			return resp, name, nil
		}
		r.health.Record(name, false, httpStatusOf(err))
		lastErr = err
		if !Retriable(err) {
			return nil, name, fmt.Errorf("providers: %s returned a terminal error: %w", name, err)
		}
	}
	return nil, "", fmt.Errorf("%w: last error: %v", ErrNoProvidersAvailable, lastErr)
}

func httpStatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// Status reports the health of every provider in the priority list, keyed
// by provider name.
func (r *Router) Status() map[string]HealthStatus {
	out := make(map[string]HealthStatus, len(r.order))
	for _, name := range r.order {
		out[name] = r.health.Status(name)
	}
	return out
}

// DefaultModel returns the first registered provider in priority order and
// that provider's default model.
func (r *Router) DefaultModel() (provider, model string, err error) {
	for _, name := range r.order {
		if p, ok := r.entries[name]; ok {
			return name, p.DefaultModel(), nil
		}
	}
	return "", "", ErrNoProvidersAvailable
}
