package providers

import (
	"context"
	"testing"
)

type fakeProvider struct {
	name         string
	defaultModel string
	err          error
	calls        int
}

func (f *fakeProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ChatResponse{Content: "reply from " + f.name, FinishReason: "stop"}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	return f.Chat(ctx, req)
}

func (f *fakeProvider) DefaultModel() string { return f.defaultModel }
func (f *fakeProvider) Name() string         { return f.name }

// TestRouterChatUsesHighestPriorityProvider verifies that with multiple
// healthy providers registered, Chat dispatches to the first in priority
// order.
func TestRouterChatUsesHighestPriorityProvider(t *testing.T) {
	r := NewRouter(NewHealthTracker())
	primary := &fakeProvider{name: "primary"}
	secondary := &fakeProvider{name: "secondary"}
	r.Register("primary", primary)
	r.Register("secondary", secondary)

	resp, used, err := r.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if used != "primary" {
		t.Errorf("used provider = %q, want %q", used, "primary")
	}
	if resp.Content != "reply from primary" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if secondary.calls != 0 {
		t.Error("expected secondary provider not to be called when primary succeeds")
	}
}

// TestRouterChatFailsOverOnRetriableError verifies that a retriable failure
// from the priority provider causes failover to the next one in order.
func TestRouterChatFailsOverOnRetriableError(t *testing.T) {
	r := NewRouter(NewHealthTracker())
	primary := &fakeProvider{name: "primary", err: &HTTPError{Status: 500}}
	secondary := &fakeProvider{name: "secondary"}
	r.Register("primary", primary)
	r.Register("secondary", secondary)

	resp, used, err := r.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if used != "secondary" {
		t.Errorf("used provider = %q, want %q", used, "secondary")
	}
	if resp.Content != "reply from secondary" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

// TestRouterChatStopsOnTerminalError verifies that a terminal (non-retriable)
// failure from the priority provider does NOT fail over to the next one.
func TestRouterChatStopsOnTerminalError(t *testing.T) {
	r := NewRouter(NewHealthTracker())
	primary := &fakeProvider{name: "primary", err: &HTTPError{Status: 400}}
	secondary := &fakeProvider{name: "secondary"}
	r.Register("primary", primary)
	r.Register("secondary", secondary)

	_, _, err := r.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected an error for a terminal primary failure")
	}
	if secondary.calls != 0 {
		t.Error("expected no failover to secondary on a terminal error")
	}
}

// TestRouterChatAllProvidersFail verifies that when every registered
// provider fails retriably, Chat returns ErrNoProvidersAvailable.
func TestRouterChatAllProvidersFail(t *testing.T) {
	r := NewRouter(NewHealthTracker())
	r.Register("a", &fakeProvider{name: "a", err: &HTTPError{Status: 500}})
	r.Register("b", &fakeProvider{name: "b", err: &HTTPError{Status: 503}})

	_, _, err := r.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected an error when all providers fail")
	}
}

// TestRouterChatNoProvidersRegistered verifies Chat on an empty router
// returns ErrNoProvidersAvailable immediately.
func TestRouterChatNoProvidersRegistered(t *testing.T) {
	r := NewRouter(NewHealthTracker())
	_, _, err := r.Chat(context.Background(), ChatRequest{})
	if err != ErrNoProvidersAvailable {
		t.Errorf("error = %v, want %v", err, ErrNoProvidersAvailable)
	}
}

// TestRouterSetPriorityOverridesOrder verifies SetPriority changes dispatch
// order independent of registration order.
func TestRouterSetPriorityOverridesOrder(t *testing.T) {
	r := NewRouter(NewHealthTracker())
	r.Register("a", &fakeProvider{name: "a"})
	r.Register("b", &fakeProvider{name: "b"})
	r.SetPriority([]string{"b", "a"})

	_, used, err := r.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if used != "b" {
		t.Errorf("used provider = %q, want %q (priority override)", used, "b")
	}
}

// TestRouterDefaultModel verifies DefaultModel reflects the priority
// provider's own default model.
func TestRouterDefaultModel(t *testing.T) {
	r := NewRouter(NewHealthTracker())
	r.Register("a", &fakeProvider{name: "a", defaultModel: "model-a"})
	r.Register("b", &fakeProvider{name: "b", defaultModel: "model-b"})

	name, model, err := r.DefaultModel()
	if err != nil {
		t.Fatalf("DefaultModel: %v", err)
	}
	if name != "a" || model != "model-a" {
		t.Errorf("DefaultModel = (%q, %q), want (%q, %q)", name, model, "a", "model-a")
	}
}

// TestRouterStatusReflectsHealthTracker verifies Status surfaces the health
// tracker's classification after a recorded success.
func TestRouterStatusReflectsHealthTracker(t *testing.T) {
	r := NewRouter(NewHealthTracker())
	r.Register("a", &fakeProvider{name: "a"})

	if _, _, err := r.Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	status := r.Status()
	if status["a"] != HealthOk {
		t.Errorf("Status[a] = %q, want %q", status["a"], HealthOk)
	}
}
