package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/skynet-run/skynet/internal/channels"
	"github.com/skynet-run/skynet/internal/providers"
	"github.com/skynet-run/skynet/internal/store"
	"github.com/skynet-run/skynet/internal/tools"
)

// historyLimit is the max persisted turns loaded per request (20 exchanges).
const historyLimit = 40

// maxIterations bounds the tool loop; exceeding it fails the request with
// ErrIterationLimit rather than returning a partial answer.
const maxIterations = 25

// ErrIterationLimit is returned when a request's tool loop exceeds
// maxIterations without the provider settling on a final answer.
var ErrIterationLimit = errors.New("agent: tool loop exceeded MAX_ITERATIONS")

// EventSink receives live events from an in-flight run so a channel adapter
// or the gateway's WS layer can forward them to the client as they happen.
// A nil EventSink is valid — Loop simply runs non-streaming in that case.
type EventSink interface {
	Delta(reqID, text, thinking string)
	ToolUse(reqID, name, input string)
}

// RunRequest is one inbound message to run through the pipeline.
type RunRequest struct {
	ReqID      string
	SessionKey string
	Channel    string
	UserID     string
	Caller     tools.CallerIdentity
	Message    string
	Model      string // optional per-request override
	Stream     bool
	Sink       EventSink // per-request event sink; nil runs non-streaming
}

// RunResult is the pipeline's output for one request.
type RunResult struct {
	Content    string
	Model      string
	Provider   string
	TokensIn   int
	TokensOut  int
	StopReason string // "stop" | "tool_loop_stuck"
	Iterations int
}

// Loop is the agentic pipeline: prompt assembly, the bounded tool loop
// against the provider router, and post-loop persistence + compaction
// trigger. One Loop instance serves every session in the process.
type Loop struct {
	Router        *providers.Router
	Tools         *tools.Registry
	Conversations *store.Conversations
	Memory        *store.Memory
	Knowledge     *store.Knowledge
	Identities    *store.Identities
	Channels      *channels.Registry
	Compactor     *Compactor

	Workspace    string // directory of Tier-1 *.md docs
	DefaultModel string

	now func() time.Time // overridable for tests; defaults to time.Now
}

func NewLoop(router *providers.Router, reg *tools.Registry,
	conv *store.Conversations, mem *store.Memory, kb *store.Knowledge, ids *store.Identities,
	chReg *channels.Registry, compactor *Compactor, workspace, defaultModel string) *Loop {
	return &Loop{
		Router: router, Tools: reg,
		Conversations: conv, Memory: mem, Knowledge: kb, Identities: ids,
		Channels: chReg, Compactor: compactor,
		Workspace: workspace, DefaultModel: defaultModel,
		now: time.Now,
	}
}

func (l *Loop) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

// Run executes the full pipeline for one request: load history, assemble
// the three-tier prompt, run the bounded tool loop, persist the two new
// turns, and fire the compaction trigger. It blocks until the run
// completes (streaming deltas, if any, are forwarded live via req.Sink as
// they arrive).
func (l *Loop) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	ctx = tools.ContextWithCaller(ctx, req.Caller)

	model := req.Model
	if model == "" {
		model = l.DefaultModel
	}

	history, err := l.Conversations.History(ctx, req.SessionKey, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("agent: load history: %w", err)
	}

	docs, err := LoadWorkspaceDocs(l.Workspace)
	if err != nil {
		slog.Warn("agent: failed to load workspace docs", "error", err)
	}

	var facts []store.Fact
	if req.UserID != "" && l.Memory != nil {
		facts, err = l.Memory.AllForUser(ctx, req.UserID)
		if err != nil {
			slog.Warn("agent: failed to load user memory", "user", req.UserID, "error", err)
		}
	}

	var linked []store.Identity
	if req.UserID != "" && l.Identities != nil {
		linked, err = l.Identities.ListForUser(ctx, req.UserID)
		if err != nil {
			slog.Warn("agent: failed to load linked identities", "user", req.UserID, "error", err)
		}
	}

	var connected []string
	if l.Channels != nil {
		connected = l.Channels.Names()
	}

	sessionIdentity := fmt.Sprintf("channel=%s user=%s", req.Channel, req.UserID)

	turnCount, _ := l.Conversations.TurnCount(ctx, req.SessionKey)

	providerHealth := ""
	if l.Router != nil {
		var parts []string
		for name, status := range l.Router.Status() {
			parts = append(parts, fmt.Sprintf("%s=%s", name, status))
		}
		sort.Strings(parts)
		providerHealth = strings.Join(parts, " ")
	}

	prompt := Assemble(ctx, docs, facts,
		Tier2Input{ConnectedChannels: connected, SessionIdentity: sessionIdentity, LinkedIdentities: linked},
		l.clock().Format(time.RFC3339), req.Channel, req.SessionKey, turnCount, providerHealth,
	)

	messages := make([]providers.Message, 0, len(history)+2)
	messages = append(messages, providers.Message{Role: "system", Content: prompt.String()})
	for _, t := range history {
		messages = append(messages, providers.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, providers.Message{Role: "user", Content: req.Message})

	var loopDetector toolLoopState
	var totalUsage providers.Usage
	var finalContent, stopReason, providerName string
	iteration := 0

	for {
		iteration++
		if iteration > maxIterations {
			return nil, ErrIterationLimit
		}

		chatReq := providers.ChatRequest{
			Messages: messages,
			Tools:    l.Tools.ProviderDefs(),
			Model:    model,
			Options: map[string]interface{}{
				providers.OptMaxTokens:   8192,
				providers.OptTemperature: 0.7,
			},
		}

		var resp *providers.ChatResponse
		var perr error
		if req.Stream && req.Sink != nil {
			resp, providerName, perr = l.Router.ChatStream(ctx, chatReq, func(chunk providers.StreamChunk) {
				if chunk.Content != "" || chunk.Thinking != "" {
					req.Sink.Delta(req.ReqID, chunk.Content, chunk.Thinking)
				}
			})
		} else {
			resp, providerName, perr = l.Router.Chat(ctx, chatReq)
		}
		if perr != nil {
			return nil, fmt.Errorf("agent: LLM call failed (iteration %d): %w", iteration, perr)
		}

		if resp.Usage != nil {
			totalUsage.PromptTokens += resp.Usage.PromptTokens
			totalUsage.CompletionTokens += resp.Usage.CompletionTokens
			totalUsage.TotalTokens += resp.Usage.TotalTokens
			totalUsage.ThinkingTokens += resp.Usage.ThinkingTokens
		} else {
			totalUsage.PromptTokens += EstimateTokens(chatReq.Messages[len(chatReq.Messages)-1].Content)
			totalUsage.CompletionTokens += EstimateTokens(resp.Content)
		}

		if len(resp.ToolCalls) == 0 {
			finalContent = resp.Content
			stopReason = "stop"
			break
		}

		assistantMsg := providers.Message{
			Role:                "assistant",
			Content:             resp.Content,
			ToolCalls:           resp.ToolCalls,
			RawAssistantContent: resp.RawAssistantContent,
		}
		messages = append(messages, assistantMsg)

		toolMsgs, stuckContent, stuck := l.runToolCalls(ctx, req, resp.ToolCalls, &loopDetector)
		messages = append(messages, toolMsgs...)
		if stuck {
			finalContent = stuckContent
			stopReason = "tool_loop_stuck"
			break
		}
	}

	finalContent = SanitizeAssistantContent(finalContent)
	isSilent := IsSilentReply(finalContent)
	if finalContent == "" {
		finalContent = "..."
	}

	if _, err := l.Conversations.AppendTurn(ctx, req.SessionKey, store.RoleUser, req.Message, "", 0, 0); err != nil && !errors.Is(err, store.ErrOrderViolation) {
		return nil, fmt.Errorf("agent: persist user turn: %w", err)
	}
	if _, err := l.Conversations.AppendTurn(ctx, req.SessionKey, store.RoleAssistant, finalContent, model, totalUsage.PromptTokens, totalUsage.CompletionTokens); err != nil && !errors.Is(err, store.ErrOrderViolation) {
		return nil, fmt.Errorf("agent: persist assistant turn: %w", err)
	}

	if l.Compactor != nil {
		go l.Compactor.MaybeCompact(context.Background(), req.SessionKey)
	}

	deliverable := finalContent
	if isSilent {
		deliverable = ""
	}

	return &RunResult{
		Content:    deliverable,
		Model:      model,
		Provider:   providerName,
		TokensIn:   totalUsage.PromptTokens,
		TokensOut:  totalUsage.CompletionTokens,
		StopReason: stopReason,
		Iterations: iteration,
	}, nil
}

// runToolCalls executes one iteration's tool calls — sequentially for a
// single call, in parallel (goroutine per call, results re-sorted by
// original index) for multiple — and returns the tool-result messages to
// append plus whether the loop detector declared the run stuck.
func (l *Loop) runToolCalls(ctx context.Context, req RunRequest, calls []providers.ToolCall, loopDetector *toolLoopState) (msgs []providers.Message, stuckContent string, stuck bool) {
	if req.Sink != nil {
		for _, tc := range calls {
			argsJSON, _ := json.Marshal(tc.Arguments)
			req.Sink.ToolUse(req.ReqID, tc.Name, string(argsJSON))
		}
	}

	type indexed struct {
		idx    int
		tc     providers.ToolCall
		result *tools.Result
	}

	run := func(idx int, tc providers.ToolCall) indexed {
		result := l.Tools.ExecuteArgs(ctx, tc.Name, tc.Arguments)
		return indexed{idx: idx, tc: tc, result: result}
	}

	var collected []indexed
	if len(calls) == 1 {
		collected = append(collected, run(0, calls[0]))
	} else {
		resultCh := make(chan indexed, len(calls))
		var wg sync.WaitGroup
		for i, tc := range calls {
			wg.Add(1)
			go func(idx int, tc providers.ToolCall) {
				defer wg.Done()
				resultCh <- run(idx, tc)
			}(i, tc)
		}
		go func() { wg.Wait(); close(resultCh) }()
		for r := range resultCh {
			collected = append(collected, r)
		}
		sort.Slice(collected, func(i, j int) bool { return collected[i].idx < collected[j].idx })
	}

	for _, r := range collected {
		if r.result.IsError {
			slog.Warn("agent: tool error", "tool", r.tc.Name, "error", r.result.ForLLM)
		}

		argsHash := loopDetector.record(r.tc.Name, r.tc.Arguments)
		loopDetector.recordResult(argsHash, r.result.ForLLM)

		msgs = append(msgs, providers.Message{Role: "tool", Content: r.result.ForLLM, ToolCallID: r.tc.ID})

		if level, msg := loopDetector.detect(r.tc.Name, argsHash); level != "" {
			if level == "critical" {
				slog.Warn("agent: tool loop critical", "tool", r.tc.Name, "message", msg)
				return msgs, "I got stuck repeatedly calling " + r.tc.Name + " without making progress. Please try rephrasing your request.", true
			}
			slog.Warn("agent: tool loop warning", "tool", r.tc.Name, "message", msg)
			msgs = append(msgs, providers.Message{Role: "user", Content: msg})
		}
	}
	return msgs, "", false
}
