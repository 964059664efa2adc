package tools

import (
	"context"
	"encoding/json"
	"testing"
)

// TestRegistryExecuteUnknownTool verifies that calling an unregistered tool
// name returns an error Result rather than a panic or a nil pointer.
func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	result := r.Execute(context.Background(), "nonexistent", nil)
	if result == nil || !result.IsError {
		t.Fatalf("expected an error Result for unknown tool, got %+v", result)
	}
}

// TestRegistryExecuteInvalidArgs verifies that malformed JSON args produce
// an error Result instead of propagating the unmarshal error.
func TestRegistryExecuteInvalidArgs(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", "echoes", nil, func(ctx context.Context, args map[string]interface{}) *Result {
		return NewResult("ok")
	})
	result := r.Execute(context.Background(), "echo", json.RawMessage(`not-json`))
	if result == nil || !result.IsError {
		t.Fatalf("expected an error Result for invalid args, got %+v", result)
	}
}

// TestRegistryExecutePanicRecovery verifies that a handler panic is
// recovered into an error Result rather than crashing the caller.
func TestRegistryExecutePanicRecovery(t *testing.T) {
	r := NewRegistry()
	r.Register("boom", "panics", nil, func(ctx context.Context, args map[string]interface{}) *Result {
		panic("kaboom")
	})
	result := r.Execute(context.Background(), "boom", nil)
	if result == nil || !result.IsError {
		t.Fatalf("expected an error Result after handler panic, got %+v", result)
	}
}

// TestRegistryExecuteHappyPath verifies that a registered handler receives
// its decoded args and its Result passes through unchanged.
func TestRegistryExecuteHappyPath(t *testing.T) {
	r := NewRegistry()
	var gotArgs map[string]interface{}
	r.Register("greet", "greets", nil, func(ctx context.Context, args map[string]interface{}) *Result {
		gotArgs = args
		return NewResult("hi " + args["name"].(string))
	})
	result := r.Execute(context.Background(), "greet", json.RawMessage(`{"name":"ada"}`))
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if result.ForLLM != "hi ada" {
		t.Errorf("ForLLM = %q, want %q", result.ForLLM, "hi ada")
	}
	if gotArgs["name"] != "ada" {
		t.Errorf("handler args = %+v, want name=ada", gotArgs)
	}
}

// TestRegistryProviderDefsAndNames verifies registered tools surface in both
// ProviderDefs (wire schema) and Names (diagnostics).
func TestRegistryProviderDefsAndNames(t *testing.T) {
	r := NewRegistry()
	r.Register("a", "tool a", nil, func(ctx context.Context, args map[string]interface{}) *Result { return NewResult("") })
	r.Register("b", "tool b", nil, func(ctx context.Context, args map[string]interface{}) *Result { return NewResult("") })

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %d: %v", len(names), names)
	}
	defs := r.ProviderDefs()
	if len(defs) != 2 {
		t.Fatalf("expected 2 provider defs, got %d", len(defs))
	}
}

// TestRegistryExecuteArgs verifies the map-based convenience wrapper
// round-trips through JSON correctly.
func TestRegistryExecuteArgs(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", "echoes", nil, func(ctx context.Context, args map[string]interface{}) *Result {
		return NewResult(args["x"].(string))
	})
	result := r.ExecuteArgs(context.Background(), "echo", map[string]interface{}{"x": "y"})
	if result.ForLLM != "y" {
		t.Errorf("ForLLM = %q, want %q", result.ForLLM, "y")
	}
}

// TestRegistryRegisterReplace verifies that re-registering a name replaces
// the previous handler rather than erroring or duplicating entries.
func TestRegistryRegisterReplace(t *testing.T) {
	r := NewRegistry()
	r.Register("x", "first", nil, func(ctx context.Context, args map[string]interface{}) *Result {
		return NewResult("first")
	})
	r.Register("x", "second", nil, func(ctx context.Context, args map[string]interface{}) *Result {
		return NewResult("second")
	})
	if len(r.Names()) != 1 {
		t.Fatalf("expected a single name after replace, got %v", r.Names())
	}
	result := r.Execute(context.Background(), "x", nil)
	if result.ForLLM != "second" {
		t.Errorf("ForLLM = %q, want %q", result.ForLLM, "second")
	}
}
