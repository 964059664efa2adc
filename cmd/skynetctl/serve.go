package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skynet-run/skynet/internal/agent"
	"github.com/skynet-run/skynet/internal/channels"
	"github.com/skynet-run/skynet/internal/config"
	"github.com/skynet-run/skynet/internal/gateway"
	"github.com/skynet-run/skynet/internal/providers"
	"github.com/skynet-run/skynet/internal/scheduler"
	"github.com/skynet-run/skynet/internal/store"
	"github.com/skynet-run/skynet/internal/telemetry"
	"github.com/skynet-run/skynet/internal/tools"
	"github.com/skynet-run/skynet/internal/users"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway (also the default action)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

// registerProviders wires every configured provider entry into router,
// in cfg.Providers.Priority order; if Priority is unset the order is Go's
// unspecified map iteration order over the entries. jwt_service_account and oauth-refresh entries need a key file
// or refresh token loaded from disk/env beyond what fits this pass, so a
// configured-but-unwireable entry is logged and skipped rather than
// guessed at.
func registerProviders(router *providers.Router, cfg *config.Config) {
	for name, entry := range cfg.Providers.Entries {
		switch entry.Kind {
		case "anthropic":
			router.Register(name, providers.NewAnthropicProvider(entry.APIKeyFromEnv, entry.APIBase, entry.DefaultModel))
		case "openai_compatible":
			router.Register(name, providers.NewOpenAIProvider(name, entry.APIKeyFromEnv, entry.APIBase, entry.DefaultModel))
		case "sigv4":
			router.Register(name, providers.NewSigV4Provider(entry.Region, entry.APIBase, entry.DefaultModel, "", "", ""))
		case "jwt_service_account", "oauth_refresh":
			slog.Warn("provider kind requires credential loading beyond config; skipping", "name", name, "kind", entry.Kind)
		case "none", "":
		default:
			slog.Warn("unknown provider kind", "name", name, "kind", entry.Kind)
		}
	}
	if len(cfg.Providers.Priority) > 0 {
		router.SetPriority(cfg.Providers.Priority)
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dataDir := config.ExpandHome(cfg.Gateway.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		slog.Error("failed to create data dir", "dir", dataDir, "error", err)
		os.Exit(1)
	}
	workspace := config.ExpandHome(cfg.Agent.WorkspaceDir)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		slog.Error("failed to create workspace dir", "dir", workspace, "error", err)
		os.Exit(1)
	}

	dbPath := filepath.Join(dataDir, "skynet.db")
	db, err := store.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := store.EnsureSchema(db); err != nil {
		slog.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	users_ := store.NewUsers(db)
	identities := store.NewIdentities(db)
	memory := store.NewMemory(db)
	knowledge := store.NewKnowledge(db)
	conversations := store.NewConversations(db)
	sessionsStore := store.NewSessions(db)
	jobs := store.NewScheduledJobs(db)
	_ = store.NewToolCalls(db)
	_ = store.NewApprovals(db)
	_ = store.NewDelivery(db)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := telemetry.Init(ctx, cfg.Telemetry.Enabled, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName); err != nil {
		slog.Warn("telemetry init failed, continuing without tracing", "error", err)
	}
	defer telemetry.Shutdown(context.Background())

	health := providers.NewHealthTracker()
	router := providers.NewRouter(health)
	registerProviders(router, cfg)

	resolver := users.New(identities, users_, 256)
	chReg := channels.NewRegistry()

	toolsReg := tools.NewRegistry()
	tools.NewFilesystem(workspace, true).Register(toolsReg)
	tools.NewExec(workspace).Register(toolsReg)
	tools.NewBash(workspace).Register(toolsReg)
	tools.NewKnowledge(knowledge).Register(toolsReg)
	tools.NewSendMessage(chReg).Register(toolsReg)
	tools.NewLinkIdentity(identities, resolver).Register(toolsReg)
	tools.NewSkillRead(workspace).Register(toolsReg)
	tools.NewReminder(jobs, func(ctx context.Context) string {
		ci, _ := tools.CallerFromContext(ctx)
		return ci.UserID
	}).Register(toolsReg)

	compactor := agent.NewCompactor(router, conversations, memory, cfg.Agent.CompactionModel)
	loop := agent.NewLoop(router, toolsReg, conversations, memory, knowledge, identities, chReg, compactor, workspace, cfg.Agent.Model)

	schedEngine := scheduler.NewEngine(jobs, chReg)
	if err := schedEngine.RecoverMissed(ctx); err != nil {
		slog.Warn("failed to recover missed scheduled jobs", "error", err)
	}
	go schedEngine.Run(ctx)
	defer schedEngine.Stop()

	srv := gateway.NewServer(cfg)
	srv.Loop = loop
	srv.Router = router
	srv.Tools = toolsReg
	srv.Resolver = resolver
	srv.Identities = identities
	srv.Sessions = sessionsStore
	srv.Memory = memory
	srv.Knowledge = knowledge
	srv.Jobs = jobs
	srv.Scheduler = schedEngine
	srv.Channels = chReg
	srv.Version = gateway.VersionInfo{
		Version: Version, Commit: commitHash(), InstallMode: buildInstallMode(), DataDir: dataDir,
	}

	slog.Info("skynet gateway starting", "port", cfg.Gateway.Port, "data_dir", dataDir, "workspace", workspace)
	if err := srv.Start(ctx); err != nil {
		slog.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
}

func commitHash() string {
	if v := os.Getenv("SKYNET_COMMIT"); v != "" {
		return v
	}
	return "unknown"
}
