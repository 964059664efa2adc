package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadNoFileUsesDefaults verifies Load with an empty path (or a path
// that doesn't exist) falls back to Defaults(), as long as auth validates.
func TestLoadNoFileUsesDefaults(t *testing.T) {
	t.Setenv("SKYNET_GATEWAY_AUTH_MODE", "none")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 18789 {
		t.Errorf("Port = %d, want default 18789", cfg.Gateway.Port)
	}
	if cfg.Agent.Model != "claude-sonnet-4-5" {
		t.Errorf("Model = %q, want default", cfg.Agent.Model)
	}
}

// TestLoadMissingFileIsNotAnError verifies a nonexistent path behaves the
// same as an empty path rather than erroring.
func TestLoadMissingFileIsNotAnError(t *testing.T) {
	t.Setenv("SKYNET_GATEWAY_AUTH_MODE", "none")
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 18789 {
		t.Errorf("Port = %d, want default 18789", cfg.Gateway.Port)
	}
}

// TestLoadDecodesTOMLOverrides verifies values present in the TOML file
// override the compiled-in defaults.
func TestLoadDecodesTOMLOverrides(t *testing.T) {
	t.Setenv("SKYNET_GATEWAY_AUTH_MODE", "none")
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[gateway]
port = 19000
bind = "127.0.0.1"

[agent]
model = "custom-model"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 19000 {
		t.Errorf("Port = %d, want 19000", cfg.Gateway.Port)
	}
	if cfg.Gateway.Bind != "127.0.0.1" {
		t.Errorf("Bind = %q, want 127.0.0.1", cfg.Gateway.Bind)
	}
	if cfg.Agent.Model != "custom-model" {
		t.Errorf("Model = %q, want custom-model", cfg.Agent.Model)
	}
}

// TestLoadEnvOverridesTakePrecedenceOverTOML verifies an env var wins over
// a value set in the TOML file, matching the documented override order.
func TestLoadEnvOverridesTakePrecedenceOverTOML(t *testing.T) {
	t.Setenv("SKYNET_GATEWAY_AUTH_MODE", "none")
	t.Setenv("SKYNET_GATEWAY_PORT", "20000")
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[gateway]\nport = 19000\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 20000 {
		t.Errorf("Port = %d, want 20000 (env override)", cfg.Gateway.Port)
	}
}

// TestLoadSecretsNeverDecodedFromTOML verifies that even if a TOML file
// tries to set the auth token or a provider API key directly, the secret
// fields (tagged toml:"-") are left untouched — secrets are env-only.
func TestLoadSecretsNeverDecodedFromTOML(t *testing.T) {
	t.Setenv("SKYNET_GATEWAY_AUTH_MODE", "none")
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[gateway]
port = 18789

[gateway.auth]
token = "leaked-from-toml"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Auth.Token == "leaked-from-toml" {
		t.Error("expected the auth token field to ignore the TOML file entirely")
	}
}

// TestLoadProviderAPIKeyFromEnv verifies a provider entry's API key is
// picked up from its per-provider env var.
func TestLoadProviderAPIKeyFromEnv(t *testing.T) {
	t.Setenv("SKYNET_GATEWAY_AUTH_MODE", "none")
	t.Setenv("SKYNET_PROVIDERS_ANTHROPIC_API_KEY", "sk-test-123")
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[providers.entries.anthropic]
kind = "anthropic"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	entry, ok := cfg.Providers.Entries["anthropic"]
	if !ok {
		t.Fatal("expected the anthropic provider entry to be decoded")
	}
	if entry.APIKeyFromEnv != "sk-test-123" {
		t.Errorf("APIKeyFromEnv = %q, want sk-test-123", entry.APIKeyFromEnv)
	}
}

// TestLoadRejectsPortOutOfRange verifies validate() rejects an invalid port.
func TestLoadRejectsPortOutOfRange(t *testing.T) {
	t.Setenv("SKYNET_GATEWAY_AUTH_MODE", "none")
	t.Setenv("SKYNET_GATEWAY_PORT", "70000")
	if _, err := Load(""); err == nil {
		t.Fatal("expected an error for an out-of-range port")
	}
}

// TestLoadRejectsUnknownAuthMode verifies validate() rejects an auth mode
// outside token/none/password.
func TestLoadRejectsUnknownAuthMode(t *testing.T) {
	t.Setenv("SKYNET_GATEWAY_AUTH_MODE", "carrier-pigeon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected an error for an unrecognized auth mode")
	}
}

// TestLoadRejectsTokenModeWithoutToken verifies auth.mode=token requires a
// non-empty token from the environment.
func TestLoadRejectsTokenModeWithoutToken(t *testing.T) {
	t.Setenv("SKYNET_GATEWAY_AUTH_MODE", "token")
	t.Setenv("SKYNET_GATEWAY_AUTH_TOKEN", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected an error when auth.mode=token but no token is set")
	}
}

// TestLoadAcceptsTokenModeWithToken verifies auth.mode=token succeeds once
// the token env var is set.
func TestLoadAcceptsTokenModeWithToken(t *testing.T) {
	t.Setenv("SKYNET_GATEWAY_AUTH_MODE", "token")
	t.Setenv("SKYNET_GATEWAY_AUTH_TOKEN", "secret-token")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Auth.Token != "secret-token" {
		t.Errorf("Auth.Token = %q, want secret-token", cfg.Gateway.Auth.Token)
	}
}

// TestExpandHomeExpandsTilde verifies a leading ~ expands to the user's
// home directory.
func TestExpandHomeExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available in this environment")
	}
	got := ExpandHome("~/skynet/workspace")
	want := filepath.Join(home, "skynet/workspace")
	if got != want {
		t.Errorf("ExpandHome = %q, want %q", got, want)
	}
}

// TestExpandHomeLeavesOrdinaryPathAlone verifies a path with no leading ~
// passes through unchanged.
func TestExpandHomeLeavesOrdinaryPathAlone(t *testing.T) {
	if got := ExpandHome("/already/absolute"); got != "/already/absolute" {
		t.Errorf("ExpandHome = %q, want unchanged", got)
	}
	if got := ExpandHome(""); got != "" {
		t.Errorf("ExpandHome(\"\") = %q, want empty", got)
	}
}
