// Package providers implements the polymorphic LLM vendor abstraction: a
// common Provider interface, concrete providers (Anthropic, OpenAI-compatible,
// SigV4-signed), standalone token sources for the JWT service-account, OAuth
// refresh and token-exchange lifecycles (they do not wrap a Provider), a
// priority router with failover, and a rolling health tracker.
package providers

import "context"

// Provider is the interface every LLM vendor integration implements.
type Provider interface {
	// Chat sends messages to the LLM and returns the complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream sends messages and streams response chunks via onChunk,
	// returning the final accumulated response once the stream ends.
	ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error)

	// DefaultModel returns the provider's default model name.
	DefaultModel() string

	// Name returns the provider identifier (e.g. "anthropic", "bedrock").
	Name() string
}

// Option keys recognized in ChatRequest.Options.
const (
	OptMaxTokens     = "max_tokens"
	OptTemperature   = "temperature"
	OptThinkingLevel = "thinking_level" // "off" | "low" | "medium" | "high"
)

// ChatRequest is the input to a Chat/ChatStream call.
type ChatRequest struct {
	Messages []Message              `json:"messages"`
	Tools    []ToolDefinition       `json:"tools,omitempty"`
	Model    string                 `json:"model,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// ChatResponse is the result of an LLM call.
type ChatResponse struct {
	Content             string     `json:"content"`
	Thinking            string     `json:"thinking,omitempty"`
	ToolCalls           []ToolCall `json:"tool_calls,omitempty"`
	FinishReason        string     `json:"finish_reason"` // "stop", "tool_calls", "length"
	Usage               *Usage     `json:"usage,omitempty"`
	RawAssistantContent []byte     `json:"-"` // vendor-native content blocks, for tool-use passback
}

// StreamChunk is one piece of a streaming response.
type StreamChunk struct {
	Content  string `json:"content,omitempty"`
	Thinking string `json:"thinking,omitempty"`
	Done     bool   `json:"done,omitempty"`
}

// Message is one turn of a conversation handed to a provider.
type Message struct {
	Role                string     `json:"role"` // "system", "user", "assistant", "tool"
	Content             string     `json:"content"`
	ToolCalls           []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID          string     `json:"tool_call_id,omitempty"`
	RawAssistantContent []byte     `json:"-"`
}

// ToolCall is a tool invocation requested by the LLM.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolDefinition describes a tool available to the LLM.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function ToolFunctionSchema `json:"function"`
}

// ToolFunctionSchema is a function tool's JSON schema.
type ToolFunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Usage tracks token consumption for one call, including the locally
// estimated thinking-token count (never authoritative; providers that don't
// report it leave it zero and callers should prefer the vendor total).
type Usage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	ThinkingTokens       int `json:"thinking_tokens,omitempty"`
	TotalTokens          int `json:"total_tokens"`
	CacheCreationTokens  int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadTokens      int `json:"cache_read_input_tokens,omitempty"`
}
