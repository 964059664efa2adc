package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// EnvPrefix is the prefix every environment-variable override carries.
const EnvPrefix = "SKYNET"

// Load reads a TOML file (if it exists) into Defaults() and applies
// environment-variable overrides using the flat PREFIX_SECTION_KEY
// convention, e.g. SKYNET_GATEWAY_PORT=19000.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	cfg.Gateway.DataDir = ExpandHome(cfg.Gateway.DataDir)
	cfg.Agent.WorkspaceDir = ExpandHome(cfg.Agent.WorkspaceDir)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides walks the small set of env-only or env-overridable keys.
// Secrets (tokens, API keys, webhook secrets) are ALWAYS env-only — they are
// never decoded from the TOML file, matching the teacher's
// "PostgresDSN from env only" convention.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "_GATEWAY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = p
		}
	}
	if v := os.Getenv(EnvPrefix + "_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv(EnvPrefix + "_GATEWAY_AUTH_MODE"); v != "" {
		cfg.Gateway.Auth.Mode = v
	}
	cfg.Gateway.Auth.Token = os.Getenv(EnvPrefix + "_GATEWAY_AUTH_TOKEN")

	if v := os.Getenv(EnvPrefix + "_AGENT_MODEL"); v != "" {
		cfg.Agent.Model = v
	}
	if v := os.Getenv(EnvPrefix + "_AGENT_WORKSPACE_DIR"); v != "" {
		cfg.Agent.WorkspaceDir = v
	}

	for name := range cfg.Providers.Entries {
		key := EnvPrefix + "_PROVIDERS_" + strings.ToUpper(name) + "_API_KEY"
		if v := os.Getenv(key); v != "" {
			entry := cfg.Providers.Entries[name]
			entry.APIKeyFromEnv = v
			cfg.Providers.Entries[name] = entry
		}
	}

	for name, src := range cfg.Webhooks.Sources {
		key := EnvPrefix + "_WEBHOOKS_" + strings.ToUpper(name) + "_SECRET"
		if v := os.Getenv(key); v != "" {
			src.Secret = v
			cfg.Webhooks.Sources[name] = src
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
		return fmt.Errorf("config: gateway.port out of range: %d", cfg.Gateway.Port)
	}
	switch cfg.Gateway.Auth.Mode {
	case "token", "none", "password":
	default:
		return fmt.Errorf("config: gateway.auth.mode must be token/none/password, got %q", cfg.Gateway.Auth.Mode)
	}
	if cfg.Gateway.Auth.Mode == "token" && cfg.Gateway.Auth.Token == "" {
		return fmt.Errorf("config: gateway.auth.mode=token requires %s_GATEWAY_AUTH_TOKEN", EnvPrefix)
	}
	return nil
}

// ExpandHome expands a leading "~" to the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// WatchWorkspace watches workspaceDir for file changes and invokes onChange
// whenever a markdown file is created, written, or removed. Used to pick up
// edits to the Tier-1 prompt documents without a restart.
func WatchWorkspace(workspaceDir string, onChange func()) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create workspace watcher: %w", err)
	}
	if err := watcher.Add(workspaceDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", workspaceDir, err)
	}
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if strings.HasSuffix(ev.Name, ".md") {
					onChange()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return watcher, nil
}
