// Package config loads the skynet gateway's TOML configuration and applies
// flat environment-variable overrides on top of it.
package config

// Config is the root configuration for the skynet gateway.
type Config struct {
	Gateway   GatewayConfig   `toml:"gateway"`
	Agent     AgentConfig     `toml:"agent"`
	Providers ProvidersConfig `toml:"providers"`
	Update    UpdateConfig    `toml:"update"`
	Webhooks  WebhooksConfig  `toml:"webhooks"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// GatewayConfig configures the wire-protocol gateway and HTTP surface.
type GatewayConfig struct {
	Port        int            `toml:"port"`
	Bind        string         `toml:"bind"`
	Auth        GatewayAuth    `toml:"auth"`
	DataDir     string         `toml:"data_dir"`
	CORSOrigins []string       `toml:"cors_origins"`
	RateLimitRPM int           `toml:"rate_limit_rpm"`
}

// GatewayAuth configures the connect handshake's auth mode.
type GatewayAuth struct {
	Mode  string `toml:"mode"`  // "token" / "none" / "password"
	Token string `toml:"-"`     // secret: env only, never persisted to the TOML file
}

// AgentConfig configures the agentic pipeline.
type AgentConfig struct {
	Model            string `toml:"model"`
	CompactionModel  string `toml:"compaction_model"`
	WorkspaceDir     string `toml:"workspace_dir"`
}

// ProvidersConfig holds per-provider settings keyed by provider name.
// Secrets (api keys, signing credentials) are never read from the TOML
// file — only from environment variables, following the teacher's
// "DatabaseConfig.PostgresDSN" convention of excluding secret fields
// from the decoded struct.
type ProvidersConfig struct {
	Priority []string                  `toml:"priority"`
	Entries  map[string]ProviderEntry  `toml:"entries"`
}

// ProviderEntry configures one provider slot.
type ProviderEntry struct {
	Kind         string `toml:"kind"` // "anthropic", "openai_compatible", "sigv4", "jwt_service_account", "none"
	APIBase      string `toml:"api_base"`
	DefaultModel string `toml:"default_model"`
	Region       string `toml:"region"`       // sigv4
	KeyFile      string `toml:"key_file"`     // jwt_service_account
	TokenAudience string `toml:"token_audience"`
	CredentialsFile string `toml:"credentials_file"` // oauth-with-refresh

	APIKeyFromEnv string `toml:"-"` // secret: env only, never decoded from TOML
}

// UpdateConfig configures the self-update CLI state machine.
type UpdateConfig struct {
	CheckOnStart bool `toml:"check_on_start"`
}

// WebhooksConfig configures the /webhooks/{source} HTTP surface.
type WebhooksConfig struct {
	Sources map[string]WebhookSource `toml:"sources"`
}

// WebhookSource configures one webhook source's auth policy.
type WebhookSource struct {
	Auth   string `toml:"auth"` // "hmac-sha256" / "bearer-token" / "none"
	Secret string `toml:"-"`    // env only
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	Endpoint    string `toml:"endpoint"`
	ServiceName string `toml:"service_name"`
}

// Defaults returns a Config populated with the documented defaults.
func Defaults() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port:         18789,
			Bind:         "0.0.0.0",
			Auth:         GatewayAuth{Mode: "token"},
			DataDir:      "~/.skynet",
			RateLimitRPM: 120,
		},
		Agent: AgentConfig{
			Model:           "claude-sonnet-4-5",
			CompactionModel: "claude-haiku-4-5",
			WorkspaceDir:    "~/.skynet/workspace",
		},
		Providers: ProvidersConfig{
			Entries: map[string]ProviderEntry{},
		},
		Update: UpdateConfig{CheckOnStart: true},
		Webhooks: WebhooksConfig{
			Sources: map[string]WebhookSource{},
		},
		Telemetry: TelemetryConfig{ServiceName: "skynet-gateway"},
	}
}
