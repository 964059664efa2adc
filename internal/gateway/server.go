// Package gateway implements the WebSocket/HTTP front door: the connect
// handshake and request/response/event framing of pkg/protocol, dispatched
// against the agentic pipeline, persistence, scheduler, and terminal
// subsystems.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skynet-run/skynet/internal/agent"
	"github.com/skynet-run/skynet/internal/channels"
	"github.com/skynet-run/skynet/internal/config"
	"github.com/skynet-run/skynet/internal/providers"
	"github.com/skynet-run/skynet/internal/scheduler"
	"github.com/skynet-run/skynet/internal/store"
	"github.com/skynet-run/skynet/internal/terminal"
	"github.com/skynet-run/skynet/internal/tools"
	"github.com/skynet-run/skynet/internal/users"
	"github.com/skynet-run/skynet/pkg/protocol"
)

// VersionInfo is the static build identity returned by system.version.
type VersionInfo struct {
	Version     string
	Commit      string
	InstallMode string
	DataDir     string
}

// Server is the gateway's WebSocket and HTTP front door. One Server per
// process serves every connected channel and direct client.
type Server struct {
	cfg *config.Config

	Loop       *agent.Loop
	Router     *providers.Router
	Tools      *tools.Registry
	Resolver   *users.Resolver
	Identities *store.Identities
	Sessions   *store.Sessions
	Memory     *store.Memory
	Knowledge  *store.Knowledge
	Jobs       *store.ScheduledJobs
	Scheduler  *scheduler.Engine
	Channels   *channels.Registry
	Version    VersionInfo

	terminals *terminalRegistry
	jobs      *terminal.JobManager

	router      *MethodRouter
	upgrader    websocket.Upgrader
	rateLimiter *RateLimiter

	mu      sync.RWMutex
	clients map[string]*Client

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer builds a gateway server against an already-wired set of
// subsystems; callers (cmd/skynetctl's serve command) are responsible for
// opening the store handles and constructing the agent loop beforehand.
func NewServer(cfg *config.Config) *Server {
	s := &Server{
		cfg:       cfg,
		clients:   make(map[string]*Client),
		terminals: newTerminalRegistry(),
		jobs:      terminal.NewJobManager(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.rateLimiter = NewRateLimiter(cfg.Gateway.RateLimitRPM, 5)
	s.router = NewMethodRouter(s)
	if cfg.Gateway.Auth.Mode == "password" {
		slog.Warn("gateway: password auth mode is not implemented; every connect will fail with AUTH_FAILED")
	}
	return s
}

// checkOrigin validates a WebSocket upgrade's Origin header against the
// configured allowlist. An empty allowlist permits everything (local/dev);
// an empty Origin header is always allowed since non-browser clients (the
// CLI, channel adapters) never send one.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.CORSOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	slog.Warn("gateway: rejected websocket origin", "origin", origin)
	return false
}

// BuildMux assembles the HTTP mux once, registering the WebSocket upgrade
// endpoint and the HTTP surfaces from http.go.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/v1/chat/completions", s.chatCompletionsHandler())
	mux.Handle("/chat", s.oneShotChatHandler())
	mux.HandleFunc("/webhooks/", s.handleWebhook)
	s.mux = mux
	return mux
}

// Start listens on the configured bind address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Bind, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	slog.Info("gateway: starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway: listen %s: %w", addr, err)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.rateLimiter.Allow(remoteKey(r)) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("gateway: websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, s)
	s.registerClient(client)
	defer func() {
		s.unregisterClient(client)
		client.Close()
	}()

	client.Run(r.Context())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","protocol":%d}`, protocol.ProtocolVersion)
}

func remoteKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}

func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
	slog.Info("gateway: client connected", "id", c.id)
}

func (s *Server) unregisterClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
	s.Channels.Unregister("gateway:" + c.id)
	slog.Info("gateway: client disconnected", "id", c.id)
}

// BroadcastEvent sends an event to every connected client, used for
// process-wide notices like provider.health transitions.
func (s *Server) BroadcastEvent(name string, payload interface{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		c.SendEvent(name, payload)
	}
}
