package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/skynet-run/skynet/internal/config"
	"github.com/skynet-run/skynet/internal/store"
)

// rpcRequest/rpcResponse are the minimal JSON-RPC 2.0 envelope the bridge
// speaks over stdio — just enough of the Model Context Protocol's wire
// shape to expose four tools as callable methods, not the full
// mark3labs/mcp-go session/capability negotiation surface (see DESIGN.md).
type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func mcpBridgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-bridge",
		Short: "Expose knowledge and memory tools over JSON-RPC on stdin/stdout",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runMCPBridge())
		},
	}
}

func runMCPBridge() int {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, "mcp-bridge: failed to load config:", err)
		return 2
	}
	dbPath := filepath.Join(config.ExpandHome(cfg.Gateway.DataDir), "skynet.db")
	db, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mcp-bridge: failed to open database:", err)
		return 1
	}
	defer db.Close()

	knowledge := store.NewKnowledge(db)
	memory := store.NewMemory(db)

	ctx := context.Background()
	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 1<<20)
	out := json.NewEncoder(os.Stdout)

	for in.Scan() {
		line := in.Bytes()
		if len(line) == 0 {
			continue
		}
		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			out.Encode(rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
			continue
		}
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
		result, rerr := dispatchMCP(ctx, knowledge, memory, req.Method, req.Params)
		if rerr != nil {
			resp.Error = &rpcError{Code: -32000, Message: rerr.Error()}
		} else {
			resp.Result = result
		}
		out.Encode(resp)
	}
	if err := in.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "mcp-bridge: stdin read error:", err)
		return 1
	}
	return 0
}

func dispatchMCP(ctx context.Context, knowledge *store.Knowledge, memory *store.Memory, method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case "knowledge_search":
		var p struct {
			Query string `json:"query"`
			Limit int    `json:"limit"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if p.Limit <= 0 {
			p.Limit = 10
		}
		entries, err := knowledge.Search(ctx, p.Query, p.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"entries": entries}, nil

	case "knowledge_write":
		var p struct {
			Topic   string   `json:"topic"`
			Content string   `json:"content"`
			Tags    []string `json:"tags"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		entry, err := knowledge.Write(ctx, p.Topic, p.Content, p.Tags, "mcp-bridge")
		if err != nil {
			return nil, err
		}
		return entry, nil

	case "memory_search":
		var p struct {
			UserID string `json:"user_id"`
			Query  string `json:"query"`
			Limit  int    `json:"limit"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if p.Limit <= 0 {
			p.Limit = 10
		}
		facts, err := memory.Search(ctx, p.UserID, p.Query, p.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"facts": facts}, nil

	case "memory_learn":
		var p struct {
			UserID     string  `json:"user_id"`
			Category   string  `json:"category"`
			Key        string  `json:"key"`
			Value      string  `json:"value"`
			Confidence float64 `json:"confidence"`
			ExpiresAt  *string `json:"expires_at"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if p.Confidence == 0 {
			p.Confidence = 1.0
		}
		var expiresAt *time.Time
		if p.ExpiresAt != nil && *p.ExpiresAt != "" {
			parsed, err := time.Parse(time.RFC3339, *p.ExpiresAt)
			if err != nil {
				return nil, fmt.Errorf("expires_at must be RFC3339: %w", err)
			}
			expiresAt = &parsed
		}
		fact, err := memory.Learn(ctx, p.UserID, p.Category, p.Key, p.Value, p.Confidence, "mcp-bridge", expiresAt)
		if err != nil {
			return nil, err
		}
		return fact, nil

	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}
