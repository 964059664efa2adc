package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skynet-run/skynet/internal/providers"
)

// Handler executes one tool call. ctx carries session/channel/user scoping
// set up by the caller (agent.Loop) before dispatch.
type Handler func(ctx context.Context, args map[string]interface{}) *Result

// Definition pairs a tool's wire schema with its handler.
type Definition struct {
	Schema  providers.ToolDefinition
	Handler Handler
}

// Registry holds every tool the agent loop can offer to a provider, keyed
// by name, with thread-safe registration (tools normally register once at
// startup, but tests and the skill system may add more later).
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Definition)}
}

// Register adds or replaces a tool definition.
func (r *Registry) Register(name, description string, parameters map[string]interface{}, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = Definition{
		Schema: providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name: name, Description: description, Parameters: parameters,
			},
		},
		Handler: handler,
	}
}

// ProviderDefs returns every registered tool's schema, for inclusion in a
// ChatRequest.Tools list.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	for _, d := range r.tools {
		defs = append(defs, d.Schema)
	}
	return defs
}

// Execute runs the named tool, returning an error Result (not a Go error)
// for an unknown tool name, a nil-pointer handler, or a handler panic — the
// agent loop always gets a well-formed Result to feed back to the LLM.
func (r *Registry) Execute(ctx context.Context, name string, rawArgs json.RawMessage) (result *Result) {
	r.mu.RLock()
	def, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool: %s", name))
	}

	args := make(map[string]interface{})
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return ErrorResult(fmt.Sprintf("invalid arguments for %s: %v", name, err))
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool panic", "tool", name, "panic", rec)
			result = ErrorResult(fmt.Sprintf("tool %s panicked: %v", name, rec))
		}
	}()

	return def.Handler(ctx, args)
}

// ExecuteArgs is a convenience wrapper for callers that already have args
// as a map (e.g. decoded from a ToolCall) rather than raw JSON.
func (r *Registry) ExecuteArgs(ctx context.Context, name string, args map[string]interface{}) *Result {
	raw, _ := json.Marshal(args)
	return r.Execute(ctx, name, raw)
}

// Names returns every registered tool name, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}
