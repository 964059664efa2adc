package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/skynet-run/skynet/internal/store"
)

// Prompt assembly constants, per spec.md's three-tier system: a static
// workspace tier (cacheable across every session), a per-user memory tier
// (cacheable per user), and a volatile tier that never gets a cache
// breakpoint.
const (
	tier1MaxCharsPerDoc  = 20000
	tier1AggregateCap    = 100000
	tier1HeadFraction    = 0.70
	tier1MiddleFraction  = 0.10
	tier1TailFraction    = 0.20
	tier2MaxChars        = 6000
)

// CacheBreakpoint marks where a vendor-specific prompt-caching boundary
// should be inserted, expressed positionally rather than as a vendor
// directive — callers translate it into whatever their provider's cache
// marker looks like (Anthropic's cache_control, for instance).
type CacheBreakpoint int

const (
	BreakpointAfterTier1 CacheBreakpoint = iota
	BreakpointAfterTier2
)

// AssembledPrompt is the three tiers of a system prompt plus the positions
// at which a cache breakpoint should be inserted.
type AssembledPrompt struct {
	Tier1Static   string // workspace documents, cacheable across all sessions
	Tier2Memory   string // per-user facts, cacheable per user
	Tier3Volatile string // timestamp, live state; never cached
	Breakpoints   []CacheBreakpoint
}

// String concatenates the three tiers in order for providers that don't
// support cache breakpoints at all.
func (p AssembledPrompt) String() string {
	var b strings.Builder
	b.WriteString(p.Tier1Static)
	if p.Tier2Memory != "" {
		b.WriteString("\n\n")
		b.WriteString(p.Tier2Memory)
	}
	if p.Tier3Volatile != "" {
		b.WriteString("\n\n")
		b.WriteString(p.Tier3Volatile)
	}
	return b.String()
}

// WorkspaceDoc is one Tier-1 document loaded from the agent's workspace
// directory (e.g. AGENTS.md, a project README, a persona file).
type WorkspaceDoc struct {
	Name    string
	Content string
}

// LoadWorkspaceDocs reads every *.md file directly under dir, truncating
// any single document over tier1MaxCharsPerDoc using a head/middle/tail
// split so a huge file still contributes its beginning, a middle sample,
// and its end rather than just being cut off.
func LoadWorkspaceDocs(dir string) ([]WorkspaceDoc, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("agent: read workspace dir %s: %w", dir, err)
	}

	var docs []WorkspaceDoc
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".md") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, ent.Name()))
		if err != nil {
			return nil, fmt.Errorf("agent: read workspace doc %s: %w", ent.Name(), err)
		}
		docs = append(docs, WorkspaceDoc{Name: ent.Name(), Content: truncateDoc(string(content))})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

func truncateDoc(content string) string {
	if len(content) <= tier1MaxCharsPerDoc {
		return content
	}
	headLen := int(float64(tier1MaxCharsPerDoc) * tier1HeadFraction)
	midLen := int(float64(tier1MaxCharsPerDoc) * tier1MiddleFraction)
	tailLen := tier1MaxCharsPerDoc - headLen - midLen

	head := content[:headLen]
	midStart := len(content)/2 - midLen/2
	mid := content[midStart : midStart+midLen]
	tail := content[len(content)-tailLen:]

	return head + "\n\n[... truncated ...]\n\n" + mid + "\n\n[... truncated ...]\n\n" + tail
}

// AssembleTier1 concatenates docs under the aggregate cap, dropping the
// lowest-priority (last, alphabetically) documents first if the total would
// exceed tier1AggregateCap.
func AssembleTier1(docs []WorkspaceDoc) string {
	var b strings.Builder
	total := 0
	for _, d := range docs {
		block := fmt.Sprintf("# %s\n\n%s\n\n", d.Name, d.Content)
		if total+len(block) > tier1AggregateCap {
			remaining := tier1AggregateCap - total
			if remaining > 200 {
				b.WriteString(block[:remaining])
			}
			break
		}
		b.WriteString(block)
		total += len(block)
	}
	return b.String()
}

// AssembleTier2 renders a user's fact set, already sorted by category
// priority then confidence (store.Memory.AllForUser's ordering), trimming
// from the bottom once the char cap is hit, followed by the connected-channel
// list, the current session's identity block, and the user's other linked
// identities. An entirely empty Tier 2 (no facts, no channels, no linked
// identities) renders no section at all, rather than an empty header. No
// knowledge hot-index section is rendered here or anywhere else: knowledge
// topics are not injected into the prompt from tool usage.
func AssembleTier2(facts []store.Fact, connectedChannels []string, sessionIdentity string, linkedIdentities []store.Identity) string {
	if len(facts) == 0 && len(connectedChannels) == 0 && sessionIdentity == "" && len(linkedIdentities) == 0 {
		return ""
	}
	var b strings.Builder
	total := 0
	if len(facts) > 0 {
		b.WriteString("# What you know about this user\n\n")
		total = b.Len()
		for _, f := range facts {
			line := fmt.Sprintf("- [%s] %s: %s\n", f.Category, f.Key, f.Value)
			if total+len(line) > tier2MaxChars {
				break
			}
			b.WriteString(line)
			total += len(line)
		}
	}
	if len(connectedChannels) > 0 {
		line := fmt.Sprintf("\n# Connected channels\n\n%s\n", strings.Join(connectedChannels, ", "))
		if total+len(line) <= tier2MaxChars {
			b.WriteString(line)
			total += len(line)
		}
	}
	if sessionIdentity != "" {
		line := fmt.Sprintf("\n# Current session identity\n\n%s\n", sessionIdentity)
		if total+len(line) <= tier2MaxChars {
			b.WriteString(line)
			total += len(line)
		}
	}
	if len(linkedIdentities) > 0 {
		var ids strings.Builder
		ids.WriteString("\n# Linked identities\n\n")
		for _, id := range linkedIdentities {
			fmt.Fprintf(&ids, "- %s: %s\n", id.Channel, id.ExternalID)
		}
		if total+ids.Len() <= tier2MaxChars {
			b.WriteString(ids.String())
			total += ids.Len()
		}
	}
	return b.String()
}

// AssembleTier3 renders the volatile tier: current time, active session
// context, and anything else that must never be cached because it changes
// every turn.
func AssembleTier3(nowRFC3339, channel, sessionKey string, turnCount int, providerHealth string) string {
	s := fmt.Sprintf("# Live context\n\nCurrent time: %s\nChannel: %s\nSession: %s\nTurn count: %d\n", nowRFC3339, channel, sessionKey, turnCount)
	if providerHealth != "" {
		s += fmt.Sprintf("Provider health: %s\n", providerHealth)
	}
	return s
}

// Tier2Input bundles everything AssembleTier2 needs beyond the fact list,
// kept as a struct so Assemble's signature doesn't grow a parameter every
// time Tier 2 picks up another rendered section.
type Tier2Input struct {
	ConnectedChannels []string
	SessionIdentity   string
	LinkedIdentities  []store.Identity
}

// Assemble builds the full three-tier prompt for one turn.
func Assemble(ctx context.Context, docs []WorkspaceDoc, facts []store.Fact, t2 Tier2Input, nowRFC3339, channel, sessionKey string, turnCount int, providerHealth string) AssembledPrompt {
	tier1 := AssembleTier1(docs)
	tier2 := AssembleTier2(facts, t2.ConnectedChannels, t2.SessionIdentity, t2.LinkedIdentities)
	tier3 := AssembleTier3(nowRFC3339, channel, sessionKey, turnCount, providerHealth)

	breakpoints := []CacheBreakpoint{BreakpointAfterTier1}
	if tier2 != "" {
		breakpoints = append(breakpoints, BreakpointAfterTier2)
	}
	return AssembledPrompt{Tier1Static: tier1, Tier2Memory: tier2, Tier3Volatile: tier3, Breakpoints: breakpoints}
}
