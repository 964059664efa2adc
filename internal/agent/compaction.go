package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skynet-run/skynet/internal/providers"
	"github.com/skynet-run/skynet/internal/store"
)

// compactionTrigger is the turn count at which a session becomes eligible
// for compaction; compactionBatch is how many of its oldest turns get
// folded into memory facts per run.
const (
	compactionTrigger = 40
	compactionBatch   = 20
	maxExtractedFacts = 10
)

// Compactor extracts atomic facts from a session's oldest turns into
// per-user memory once a session has accumulated enough history, freeing
// the conversation table of turns the prompt assembler would otherwise
// have to truncate anyway.
type Compactor struct {
	Router        *providers.Router
	Conversations *store.Conversations
	Memory        *store.Memory
	Model         string // cheap/fast extraction model, e.g. claude-haiku-4-5

	mu      sync.Map // sessionKey -> *sync.Mutex, one compaction in flight per session
	nowFunc func() time.Time
}

func NewCompactor(router *providers.Router, conv *store.Conversations, mem *store.Memory, model string) *Compactor {
	return &Compactor{Router: router, Conversations: conv, Memory: mem, Model: model, nowFunc: time.Now}
}

type extractedFact struct {
	Category   string  `json:"category"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

type extractionResult struct {
	Summary string          `json:"summary"`
	Facts   []extractedFact `json:"facts"`
}

// MaybeCompact checks whether sessionKey has reached the compaction
// trigger and, if so, extracts facts from its oldest turns and deletes
// them. A failed extraction or deletion logs and leaves the turns in
// place — compaction is best-effort, never a blocking requirement of the
// request that triggered it.
func (c *Compactor) MaybeCompact(ctx context.Context, sessionKey string) {
	turnCount, err := c.Conversations.TurnCount(ctx, sessionKey)
	if err != nil {
		slog.Warn("compaction: failed to read turn count", "session", sessionKey, "error", err)
		return
	}
	if turnCount < compactionTrigger {
		return
	}

	muI, _ := c.mu.LoadOrStore(sessionKey, &sync.Mutex{})
	sessionMu := muI.(*sync.Mutex)
	if !sessionMu.TryLock() {
		slog.Debug("compaction: already in progress, skipping", "session", sessionKey)
		return
	}
	defer sessionMu.Unlock()

	history, err := c.Conversations.History(ctx, sessionKey, turnCount)
	if err != nil {
		slog.Warn("compaction: failed to load full history", "session", sessionKey, "error", err)
		return
	}
	if len(history) < compactionBatch {
		return
	}
	oldest := history[:compactionBatch]

	var transcript strings.Builder
	for _, t := range oldest {
		fmt.Fprintf(&transcript, "%s: %s\n", t.Role, t.Content)
	}

	result, err := c.extract(ctx, transcript.String())
	if err != nil {
		slog.Warn("compaction: extraction failed, leaving turns in place", "session", sessionKey, "error", err)
		return
	}

	userID := userIDFromSessionKey(sessionKey)
	if userID != "" {
		facts := result.Facts
		if len(facts) > maxExtractedFacts {
			facts = facts[:maxExtractedFacts]
		}
		for _, f := range facts {
			if f.Key == "" || f.Value == "" {
				continue
			}
			if f.Confidence <= 0 {
				f.Confidence = 0.6
			}
			if _, err := c.Memory.Learn(ctx, userID, store.CategoryContext, f.Key, f.Value, f.Confidence, "compaction", nil); err != nil {
				slog.Warn("compaction: failed to persist extracted fact", "session", sessionKey, "key", f.Key, "error", err)
			}
		}
	}

	if err := c.Conversations.CompactOldest(ctx, sessionKey, compactionBatch); err != nil {
		slog.Warn("compaction: failed to delete compacted turns", "session", sessionKey, "error", err)
	}
}

func (c *Compactor) extract(ctx context.Context, transcript string) (*extractionResult, error) {
	cctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	prompt := fmt.Sprintf(`Extract up to %d atomic, durable facts about the user from this conversation excerpt, plus a one-paragraph summary. Respond with JSON only, shaped exactly as:
{"summary": "...", "facts": [{"category": "Context", "key": "...", "value": "...", "confidence": 0.0}]}

Transcript:
%s`, maxExtractedFacts, transcript)

	resp, _, err := c.Router.Chat(cctx, providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: prompt}},
		Model:    c.Model,
		Options: map[string]interface{}{
			providers.OptMaxTokens:   1024,
			providers.OptTemperature: 0.2,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("compaction: extraction call: %w", err)
	}

	var out extractionResult
	content := strings.TrimSpace(resp.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return nil, fmt.Errorf("compaction: parse extraction JSON: %w", err)
	}
	return &out, nil
}

// userIDFromSessionKey pulls {user_id} out of a "user:{user_id}:{channel}:{context_suffix}" key.
func userIDFromSessionKey(sessionKey string) string {
	parts := strings.SplitN(sessionKey, ":", 4)
	if len(parts) >= 2 && parts[0] == "user" {
		return parts[1]
	}
	return ""
}
