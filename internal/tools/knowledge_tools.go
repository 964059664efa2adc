package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/skynet-run/skynet/internal/store"
)

const knowledgeSearchLimit = 5

// Knowledge registers knowledge_search/knowledge_write/knowledge_list/
// knowledge_delete, CRUD over the shared knowledge base.
type Knowledge struct {
	store *store.Knowledge
}

func NewKnowledge(s *store.Knowledge) *Knowledge {
	return &Knowledge{store: s}
}

func (k *Knowledge) Register(r *Registry) {
	r.Register("knowledge_search", "Search the knowledge base by relevance", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
		},
		"required": []string{"query"},
	}, k.search)

	r.Register("knowledge_write", "Create or update a knowledge base topic", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"topic":   map[string]interface{}{"type": "string"},
			"content": map[string]interface{}{"type": "string"},
			"tags":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"source":  map[string]interface{}{"type": "string"},
		},
		"required": []string{"topic", "content"},
	}, k.write)

	r.Register("knowledge_list", "List every knowledge base topic", map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}, k.list)

	r.Register("knowledge_delete", "Delete a knowledge base topic", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"topic": map[string]interface{}{"type": "string"},
		},
		"required": []string{"topic"},
	}, k.delete)
}

func (k *Knowledge) search(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if query == "" {
		return ErrorResult("query is required")
	}
	entries, err := k.store.Search(ctx, query, knowledgeSearchLimit)
	if err != nil {
		return ErrorResult(fmt.Sprintf("search failed: %v", err))
	}
	if len(entries) == 0 {
		return SilentResult("no matching knowledge entries")
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "# %s\n%s\n\n", e.Topic, e.Content)
	}
	return SilentResult(truncateMiddle(b.String()))
}

func (k *Knowledge) write(ctx context.Context, args map[string]interface{}) *Result {
	topic, _ := args["topic"].(string)
	content, _ := args["content"].(string)
	source, _ := args["source"].(string)
	if topic == "" || content == "" {
		return ErrorResult("topic and content are required")
	}
	var tags []string
	if raw, ok := args["tags"].([]interface{}); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	}
	if _, err := k.store.Write(ctx, topic, content, tags, source); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write topic %q: %v", topic, err))
	}
	return SilentResult(fmt.Sprintf("wrote topic %q", topic))
}

func (k *Knowledge) list(ctx context.Context, _ map[string]interface{}) *Result {
	topics, err := k.store.List(ctx)
	if err != nil {
		return ErrorResult(fmt.Sprintf("list failed: %v", err))
	}
	if len(topics) == 0 {
		return SilentResult("no knowledge topics")
	}
	return SilentResult(truncateMiddle(strings.Join(topics, "\n")))
}

func (k *Knowledge) delete(ctx context.Context, args map[string]interface{}) *Result {
	topic, _ := args["topic"].(string)
	if topic == "" {
		return ErrorResult("topic is required")
	}
	if err := k.store.Delete(ctx, topic); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrorResult(fmt.Sprintf("no such topic: %s", topic))
		}
		return ErrorResult(fmt.Sprintf("failed to delete topic %q: %v", topic, err))
	}
	return SilentResult(fmt.Sprintf("deleted topic %q", topic))
}
