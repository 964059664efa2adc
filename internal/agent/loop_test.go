package agent

import (
	"context"
	"testing"
	"time"

	"github.com/skynet-run/skynet/internal/channels"
	"github.com/skynet-run/skynet/internal/providers"
	"github.com/skynet-run/skynet/internal/store"
	"github.com/skynet-run/skynet/internal/tools"
)

// scriptedProvider replays a fixed sequence of responses, one per Chat call,
// repeating the last one if Chat is called more times than the script has
// entries — useful for driving the bounded tool loop past its limit.
type scriptedProvider struct {
	responses []*providers.ChatResponse
	calls     int
}

func (p *scriptedProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	return p.responses[idx], nil
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return p.Chat(ctx, req)
}

func (p *scriptedProvider) DefaultModel() string { return "scripted-model" }
func (p *scriptedProvider) Name() string         { return "scripted" }

func newTestLoop(t *testing.T, script []*providers.ChatResponse, reg *tools.Registry) (*Loop, *store.Conversations) {
	t.Helper()
	db := newTestDB(t)
	conv := store.NewConversations(db)
	mem := store.NewMemory(db)
	kb := store.NewKnowledge(db)
	ids := store.NewIdentities(db)
	router := providers.NewRouter(providers.NewHealthTracker())
	router.Register("scripted", &scriptedProvider{responses: script})
	if reg == nil {
		reg = tools.NewRegistry()
	}
	chReg := channels.NewRegistry()
	l := NewLoop(router, reg, conv, mem, kb, ids, chReg, nil, t.TempDir(), "scripted-model")
	l.now = func() time.Time { return time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC) }
	return l, conv
}

// TestLoopRunSimpleReplyPersistsAlternatingTurns verifies a single-shot
// reply (no tool calls) persists exactly one user turn and one assistant
// turn, preserving role alternation.
func TestLoopRunSimpleReplyPersistsAlternatingTurns(t *testing.T) {
	script := []*providers.ChatResponse{
		{Content: "Hello there!", FinishReason: "stop"},
	}
	l, conv := newTestLoop(t, script, nil)

	req := RunRequest{SessionKey: "user:u1:telegram:main", Channel: "telegram", UserID: "u1", Message: "hi"}
	res, err := l.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Content != "Hello there!" {
		t.Errorf("Content = %q, want %q", res.Content, "Hello there!")
	}
	if res.StopReason != "stop" {
		t.Errorf("StopReason = %q, want stop", res.StopReason)
	}
	if res.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", res.Iterations)
	}

	history, err := conv.History(context.Background(), req.SessionKey, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != store.RoleUser || history[1].Role != store.RoleAssistant {
		t.Errorf("unexpected role sequence: %s, %s", history[0].Role, history[1].Role)
	}
}

// TestLoopRunExecutesToolThenFinalAnswer verifies a tool-call response is
// executed against the registry and the loop continues to a final answer.
func TestLoopRunExecutesToolThenFinalAnswer(t *testing.T) {
	reg := tools.NewRegistry()
	var gotArgs map[string]interface{}
	reg.Register("echo", "echoes its input", map[string]interface{}{}, func(ctx context.Context, args map[string]interface{}) *tools.Result {
		gotArgs = args
		return tools.NewResult("echoed")
	})

	script := []*providers.ChatResponse{
		{
			Content:      "",
			FinishReason: "tool_calls",
			ToolCalls:    []providers.ToolCall{{ID: "call-1", Name: "echo", Arguments: map[string]interface{}{"text": "hi"}}},
		},
		{Content: "Done.", FinishReason: "stop"},
	}
	l, _ := newTestLoop(t, script, reg)

	req := RunRequest{SessionKey: "user:u2:telegram:main", Channel: "telegram", UserID: "u2", Message: "echo hi"}
	res, err := l.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Content != "Done." {
		t.Errorf("Content = %q, want %q", res.Content, "Done.")
	}
	if res.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", res.Iterations)
	}
	if gotArgs["text"] != "hi" {
		t.Errorf("tool did not receive expected args: %+v", gotArgs)
	}
}

// TestLoopRunDetectsStuckToolLoop verifies that a provider which keeps
// calling the same tool with the same arguments and gets the same result
// back trips the critical loop detector and stops with StopReason
// "tool_loop_stuck" rather than running forever.
func TestLoopRunDetectsStuckToolLoop(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register("stuck", "always returns the same thing", map[string]interface{}{}, func(ctx context.Context, args map[string]interface{}) *tools.Result {
		return tools.NewResult("same result every time")
	})

	toolCallResp := &providers.ChatResponse{
		FinishReason: "tool_calls",
		ToolCalls:    []providers.ToolCall{{ID: "call-x", Name: "stuck", Arguments: map[string]interface{}{"k": "v"}}},
	}
	// Script more tool-call responses than loopCriticalThreshold needs, since
	// the loop should stop itself once the detector trips rather than
	// exhausting the script.
	script := make([]*providers.ChatResponse, 0, maxIterations)
	for i := 0; i < maxIterations; i++ {
		script = append(script, toolCallResp)
	}
	l, _ := newTestLoop(t, script, reg)

	req := RunRequest{SessionKey: "user:u3:telegram:main", Channel: "telegram", UserID: "u3", Message: "loop please"}
	res, err := l.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.StopReason != "tool_loop_stuck" {
		t.Errorf("StopReason = %q, want tool_loop_stuck", res.StopReason)
	}
	if res.Iterations > loopCriticalThreshold+1 {
		t.Errorf("Iterations = %d, expected the loop to stop at or near loopCriticalThreshold (%d)", res.Iterations, loopCriticalThreshold)
	}
}

// TestLoopRunExceedsMaxIterations verifies a provider that never stops
// calling distinct tools (so the loop detector never trips) fails the
// request with ErrIterationLimit once maxIterations is exceeded.
func TestLoopRunExceedsMaxIterations(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register("vary", "returns a different result each call", map[string]interface{}{}, func(ctx context.Context, args map[string]interface{}) *tools.Result {
		return tools.NewResult("ok")
	})

	script := make([]*providers.ChatResponse, 0, maxIterations+2)
	for i := 0; i < maxIterations+2; i++ {
		script = append(script, &providers.ChatResponse{
			FinishReason: "tool_calls",
			ToolCalls: []providers.ToolCall{{
				ID: "call", Name: "vary",
				Arguments: map[string]interface{}{"i": i}, // distinct args every call, never trips the detector
			}},
		})
	}
	l, _ := newTestLoop(t, script, reg)

	req := RunRequest{SessionKey: "user:u4:telegram:main", Channel: "telegram", UserID: "u4", Message: "never stop"}
	_, err := l.Run(context.Background(), req)
	if err != ErrIterationLimit {
		t.Errorf("err = %v, want %v", err, ErrIterationLimit)
	}
}

// TestLoopRunNoReplySuppressesContent verifies a NO_REPLY response persists
// to conversation history but returns empty deliverable content.
func TestLoopRunNoReplySuppressesContent(t *testing.T) {
	script := []*providers.ChatResponse{
		{Content: "NO_REPLY", FinishReason: "stop"},
	}
	l, conv := newTestLoop(t, script, nil)

	req := RunRequest{SessionKey: "user:u5:telegram:main", Channel: "telegram", UserID: "u5", Message: "noise"}
	res, err := l.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Content != "" {
		t.Errorf("deliverable Content = %q, want empty for a silent reply", res.Content)
	}

	history, err := conv.History(context.Background(), req.SessionKey, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[1].Content != "NO_REPLY" {
		t.Errorf("expected NO_REPLY to still be persisted to history, got %+v", history)
	}
}
