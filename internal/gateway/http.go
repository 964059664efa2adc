package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skynet-run/skynet/internal/agent"
	"github.com/skynet-run/skynet/internal/sessions"
	"github.com/skynet-run/skynet/internal/tools"
)

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header, or "" if absent/malformed.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func (s *Server) checkBearer(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.Gateway.Auth.Mode != "token" {
		return true
	}
	token := bearerToken(r)
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Gateway.Auth.Token)) != 1 {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return false
	}
	return true
}

// openAIChatRequest is the subset of the OpenAI chat completions request
// body this adapter understands: the last user message is what's actually
// run through the pipeline, matching the teacher's single-turn-per-call
// OpenAI-compatible surface.
type openAIChatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	User   string `json:"user"`
	Stream bool   `json:"stream"`
}

// chatCompletionsHandler adapts /v1/chat/completions onto the agent loop,
// running non-streaming regardless of the request's stream flag — true
// token-by-token SSE is left to the WebSocket surface.
func (s *Server) chatCompletionsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.checkBearer(w, r) {
			return
		}
		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"malformed request body"}`, http.StatusBadRequest)
			return
		}
		var message string
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == "user" {
				message = req.Messages[i].Content
				break
			}
		}
		if message == "" {
			http.Error(w, `{"error":"no user message found"}`, http.StatusBadRequest)
			return
		}

		externalID := req.User
		if externalID == "" {
			externalID = "openai-anonymous"
		}
		res, err := s.Resolver.Resolve(r.Context(), "openai", externalID, externalID)
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusInternalServerError)
			return
		}
		sessionKey := sessions.Build(res.User.ID, "openai", sessions.SuffixDM)

		result, err := s.Loop.Run(r.Context(), agent.RunRequest{
			ReqID: fmt.Sprintf("oai_%d", time.Now().UnixNano()), SessionKey: sessionKey,
			Channel: "openai", UserID: res.User.ID,
			Caller:  tools.CallerIdentity{Channel: "openai", ExternalID: externalID, UserID: res.User.ID},
			Message: message, Model: req.Model,
		})
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      result.Provider + "-" + sessionKey,
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   result.Model,
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": result.Content},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{
				"prompt_tokens": result.TokensIn, "completion_tokens": result.TokensOut,
				"total_tokens": result.TokensIn + result.TokensOut,
			},
		})
	})
}

// oneShotChatHandler backs the minimal /chat surface: plain
// {"session_key", "message"} in, {"content", ...} out, bearer-token gated.
func (s *Server) oneShotChatHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.checkBearer(w, r) {
			return
		}
		var body struct {
			SessionKey string `json:"session_key"`
			ExternalID string `json:"external_id"`
			Message    string `json:"message"`
			Model      string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
			http.Error(w, `{"error":"message is required"}`, http.StatusBadRequest)
			return
		}
		externalID := body.ExternalID
		if externalID == "" {
			externalID = "http-anonymous"
		}
		res, err := s.Resolver.Resolve(r.Context(), "http", externalID, externalID)
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusInternalServerError)
			return
		}
		sessionKey := body.SessionKey
		if sessionKey == "" {
			sessionKey = sessions.Build(res.User.ID, "http", sessions.SuffixDM)
		}

		result, err := s.Loop.Run(r.Context(), agent.RunRequest{
			ReqID: fmt.Sprintf("http_%d", time.Now().UnixNano()), SessionKey: sessionKey,
			Channel: "http", UserID: res.User.ID,
			Caller:  tools.CallerIdentity{Channel: "http", ExternalID: externalID, UserID: res.User.ID},
			Message: body.Message, Model: body.Model,
		})
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": result.Content, "model": result.Model, "session_key": sessionKey,
		})
	})
}

// handleWebhook implements /webhooks/{source}: per-source HMAC-SHA256,
// bearer-token, or no auth, followed by immediate injection of the payload
// into the agent pipeline under a synthetic webhook:{source} channel and
// session scope — resolving spec.md's Open Question on webhook handoff in
// favor of running the webhook straight through the same loop a chat
// message would take, rather than queuing it for a separate worker.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	source := strings.TrimPrefix(r.URL.Path, "/webhooks/")
	source = strings.Trim(source, "/")
	if source == "" {
		http.Error(w, `{"error":"missing webhook source"}`, http.StatusNotFound)
		return
	}

	cfg, ok := s.cfg.Webhooks.Sources[source]
	if !ok {
		http.Error(w, `{"error":"unknown webhook source"}`, http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return
	}

	switch cfg.Auth {
	case "hmac-sha256":
		sig := r.Header.Get("X-Signature-256")
		mac := hmac.New(sha256.New, []byte(cfg.Secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))
		if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
			http.Error(w, `{"error":"invalid signature"}`, http.StatusUnauthorized)
			return
		}
	case "bearer-token":
		if subtle.ConstantTimeCompare([]byte(bearerToken(r)), []byte(cfg.Secret)) != 1 {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
	case "none":
	default:
		http.Error(w, `{"error":"webhook source misconfigured"}`, http.StatusInternalServerError)
		return
	}

	channel := "webhook:" + source
	externalID := source
	res, err := s.Resolver.Resolve(r.Context(), channel, externalID, source)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusInternalServerError)
		return
	}
	sessionKey := sessions.Build(res.User.ID, channel, sessions.SuffixDefault)

	message := string(body)
	var asJSON map[string]interface{}
	if json.Unmarshal(body, &asJSON) == nil {
		if text, ok := asJSON["text"].(string); ok {
			message = text
		} else if text, ok := asJSON["message"].(string); ok {
			message = text
		}
	}

	result, err := s.Loop.Run(r.Context(), agent.RunRequest{
		ReqID: fmt.Sprintf("wh_%s_%d", source, time.Now().UnixNano()), SessionKey: sessionKey,
		Channel: channel, UserID: res.User.ID,
		Caller:  tools.CallerIdentity{Channel: channel, ExternalID: externalID, UserID: res.User.ID},
		Message: message,
	})
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"accepted": true, "content": result.Content})
}
