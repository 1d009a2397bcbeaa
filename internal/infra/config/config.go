package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Router    RouterConfig    `yaml:"router"`
	Agents    []AgentConfig   `yaml:"agents"`
	LLM       LLMConfig       `yaml:"llm"`
	Store     StoreConfig     `yaml:"store"`
	Retention RetentionConfig `yaml:"retention"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// RouterConfig holds goal-pursuit loop settings.
type RouterConfig struct {
	MaxIterations int    `yaml:"max_iterations"`
	SystemPrompt  string `yaml:"system_prompt,omitempty"` // empty = derived from roster
	Model         string `yaml:"model,omitempty"`
	Provider      string `yaml:"provider,omitempty"`
}

// AgentConfig defines a single specialized agent in the roster.
type AgentConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	SystemPrompt string `yaml:"system_prompt"`
	Model        string `yaml:"model,omitempty"`
	Provider     string `yaml:"provider,omitempty"`
}

// LLMConfig holds completion provider settings.
type LLMConfig struct {
	DefaultProvider string           `yaml:"default_provider"`
	Providers       []ProviderConfig `yaml:"providers"`
	CircuitBreaker  BreakerConfig    `yaml:"circuit_breaker"`
	RateLimit       RateLimitConfig  `yaml:"rate_limit"`
}

// ProviderConfig holds settings for a single completion provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // "openai", "bedrock"
	BaseURL     string        `yaml:"base_url,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// PoolConfig holds HTTP connection pool settings for completion providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// BreakerConfig holds circuit breaker settings for provider calls.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig holds provider-call rate limiting settings.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// StoreConfig holds message persistence settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// RetentionConfig holds the scheduled session purge settings.
type RetentionConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Schedule string        `yaml:"schedule"` // cron expression
	MaxAge   time.Duration `yaml:"max_age"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under $HOME/.maestro.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".maestro")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Router: RouterConfig{
			MaxIterations: 10,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Providers: []ProviderConfig{
				{Name: "openai", Type: "openai", Model: "gpt-4o"},
			},
		},
		Store: StoreConfig{
			Path: filepath.Join(dataDir, "messages.db"),
		},
		Retention: RetentionConfig{
			Enabled:  false,
			Schedule: "0 3 * * *",
			MaxAge:   30 * 24 * time.Hour,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	passphrase := os.Getenv("MAESTRO_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps MAESTRO_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MAESTRO_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("MAESTRO_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("MAESTRO_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("MAESTRO_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("MAESTRO_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("MAESTRO_ROUTER_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Router.MaxIterations = n
		}
	}
	// Provider API keys: MAESTRO_API_KEY_<NAME> overrides the key of the
	// provider with the matching (upper-cased) name.
	for i := range cfg.LLM.Providers {
		envName := "MAESTRO_API_KEY_" + strings.ToUpper(cfg.LLM.Providers[i].Name)
		if v := os.Getenv(envName); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}
}

// Validate checks the configuration for consistency.
func Validate(cfg *Config) error {
	if cfg.Router.MaxIterations <= 0 {
		return fmt.Errorf("router.max_iterations must be positive, got %d", cfg.Router.MaxIterations)
	}

	providerNames := make(map[string]bool, len(cfg.LLM.Providers))
	for _, p := range cfg.LLM.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider with empty name")
		}
		if providerNames[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		providerNames[p.Name] = true
		switch p.Type {
		case "openai", "bedrock":
		default:
			return fmt.Errorf("provider %q has unknown type %q", p.Name, p.Type)
		}
	}
	if cfg.LLM.DefaultProvider != "" && !providerNames[cfg.LLM.DefaultProvider] {
		return fmt.Errorf("default provider %q not configured", cfg.LLM.DefaultProvider)
	}

	seen := make(map[string]string, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if a.ID == "" || a.Name == "" {
			return fmt.Errorf("agent entries need both id and name (id=%q name=%q)", a.ID, a.Name)
		}
		lower := strings.ToLower(a.Name)
		if prev, dup := seen[lower]; dup {
			return fmt.Errorf("agent names must be unique case-insensitively: %q vs %q", a.Name, prev)
		}
		seen[lower] = a.Name
		if a.Provider != "" && !providerNames[a.Provider] {
			return fmt.Errorf("agent %q references unknown provider %q", a.Name, a.Provider)
		}
	}

	if cfg.Retention.Enabled && cfg.Retention.MaxAge <= 0 {
		return fmt.Errorf("retention.max_age must be positive when retention is enabled")
	}

	return nil
}
