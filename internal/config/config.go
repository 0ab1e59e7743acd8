package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort        = 8080
	DefaultDownloadTimeout = 120 * time.Second
	DefaultBinSize         = 0.5
	DefaultStoreRoot       = "results"
	DefaultScratchRoot     = "data"
)

// Config is the top-level configuration for dipscan.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Archive ArchiveConfig `yaml:"archive"`
	Store   StoreConfig   `yaml:"store"`
	Batch   BatchConfig   `yaml:"batch"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, websocket hub and metrics endpoint
	// listen on (default 8080).
	HTTPPort int `yaml:"http_port"`
}

// ArchiveConfig describes the remote light-curve catalogue.
type ArchiveConfig struct {
	// Endpoint is the base URL of the archive, e.g. "https://archive.example.org".
	Endpoint string `yaml:"endpoint"`

	// Auth configures how dipscan authenticates to the archive.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for the archive.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// API key fields — used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// Bearer token fields — used when Mode == "bearer".
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields — used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds archive TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal mirrors in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// StoreConfig holds the filesystem roots used by the service.
type StoreConfig struct {
	// Root is where ResultSets are persisted (default "results").
	Root string `yaml:"root"`

	// ScratchRoot is where raw downloads are staged during a batch run.
	// Contents are removed when the run finishes (default "data").
	ScratchRoot string `yaml:"scratch_root"`
}

// BatchConfig holds per-run defaults; HTTP callers may override them per
// request, the CLI per invocation.
type BatchConfig struct {
	// DownloadTimeout is the per-file download deadline (default 120s).
	DownloadTimeout time.Duration `yaml:"download_timeout"`

	// BinSize is the deviation time-bin width in days (default 0.5).
	BinSize float64 `yaml:"bin_size"`

	// MaxFiles caps how many discovered files one run processes.
	// 0 means no limit.
	MaxFiles int `yaml:"max_files"`
}

// NotifyConfig holds batch-completion notification rules and webhook targets.
type NotifyConfig struct {
	Rules    []Rule          `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// Rule defines one threshold-based notification condition evaluated against
// each finished batch.
type Rule struct {
	// Name is the human-readable rule identifier, used as the dedup key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "skipped_pct > 50", "processed == 0",
	// "status == all_skipped".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires per (rule, target) for this duration.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
		},
		Store: StoreConfig{
			Root:        DefaultStoreRoot,
			ScratchRoot: DefaultScratchRoot,
		},
		Batch: BatchConfig{
			DownloadTimeout: DefaultDownloadTimeout,
			BinSize:         DefaultBinSize,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Archive.Endpoint == "" {
		return fmt.Errorf("archive.endpoint is required")
	}
	switch cfg.Archive.Auth.Mode {
	case "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("archive.auth.mode %q unknown: want apikey|bearer|basic|none", cfg.Archive.Auth.Mode)
	}
	if cfg.Store.Root == "" {
		return fmt.Errorf("store.root must not be empty")
	}
	if cfg.Store.ScratchRoot == "" {
		return fmt.Errorf("store.scratch_root must not be empty")
	}
	if cfg.Batch.DownloadTimeout <= 0 {
		return fmt.Errorf("batch.download_timeout must be positive")
	}
	if cfg.Batch.BinSize <= 0 {
		return fmt.Errorf("batch.bin_size must be positive")
	}
	if cfg.Batch.MaxFiles < 0 {
		return fmt.Errorf("batch.max_files must not be negative")
	}
	for i, r := range cfg.Notify.Rules {
		if r.Name == "" {
			return fmt.Errorf("notify.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("notify.rules[%d] %q: condition is required", i, r.Name)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("notify.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
	}
	for i, w := range cfg.Notify.Webhooks {
		switch w.Type {
		case "slack", "http":
		default:
			return fmt.Errorf("notify.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}
