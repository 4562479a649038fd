// Package config loads and validates service configuration from a YAML
// file plus environment overrides. Provider credentials never live here;
// they are read from the environment by the provider registry.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root service configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" validate:"required"`
	// Storage selects and tunes the document store.
	Storage StorageConfig `yaml:"storage" validate:"required"`
	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`
	// Generation sets defaults applied to requests that omit them.
	Generation GenerationConfig `yaml:"generation"`
	// Providers overrides individual fields of the built-in provider
	// tuning profiles, keyed by provider name.
	Providers map[string]ProviderOverride `yaml:"providers" validate:"dive"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	// Host is the bind address; empty binds all interfaces.
	Host string `yaml:"host"`
	// Port is the listen port.
	Port int `yaml:"port" validate:"required,min=1,max=65535"`
	// ReadTimeoutSeconds and WriteTimeoutSeconds bound each HTTP exchange.
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds" validate:"omitempty,min=1,max=3600"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds" validate:"omitempty,min=1,max=3600"`
	// ShutdownTimeoutSeconds bounds graceful shutdown on termination.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds" validate:"omitempty,min=1,max=600"`
}

// ReadTimeout returns the read timeout as a duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the write timeout as a duration.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget as a duration.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects the document store backend.
type StorageConfig struct {
	// Backend is "filesystem" or "postgres".
	Backend string `yaml:"backend" validate:"required,oneof=filesystem postgres"`
	// Path is the root directory for the filesystem backend.
	Path string `yaml:"path" validate:"required_if=Backend filesystem"`
	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`

	// CacheEnabled wraps the store in an in-memory read cache.
	CacheEnabled bool `yaml:"cache_enabled"`
	// CacheSize caps the number of cached documents.
	CacheSize int `yaml:"cache_size" validate:"omitempty,min=1,max=100000"`
	// CacheTTLSeconds expires cached documents after this many seconds.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" validate:"omitempty,min=1,max=86400"`
}

// CacheTTL returns the cache expiry as a duration.
func (s StorageConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is the minimum level emitted.
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	// Pretty switches from JSON to human-readable console output.
	Pretty bool `yaml:"pretty"`
}

// GenerationConfig sets service-level generation defaults.
type GenerationConfig struct {
	// DefaultMaxCost is the dollar ceiling applied to requests that do
	// not set one.
	DefaultMaxCost float64 `yaml:"default_max_cost" validate:"omitempty,gt=0,lte=10"`
	// MultiPass routes requests through the draft, refine, polish chain
	// instead of a single provider.
	MultiPass bool `yaml:"multi_pass"`
	// BudgetPolicy spreads the cost ceiling across multi-pass phases.
	BudgetPolicy string `yaml:"budget_policy" validate:"omitempty,oneof=unconstrained equal_split"`
}

// ProviderOverride carries optional per-provider tuning. Nil fields leave
// the built-in profile untouched.
type ProviderOverride struct {
	Model             string   `yaml:"model"`
	MaxTokens         *int     `yaml:"max_tokens" validate:"omitempty,gt=0"`
	Temperature       *float64 `yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
	CostPer1KInput    *float64 `yaml:"cost_per_1k_input" validate:"omitempty,gte=0"`
	CostPer1KOutput   *float64 `yaml:"cost_per_1k_output" validate:"omitempty,gte=0"`
	RequestsPerMinute *int     `yaml:"requests_per_minute" validate:"omitempty,gt=0"`
	TokensPerMinute   *int     `yaml:"tokens_per_minute" validate:"omitempty,gt=0"`
	ContextWindow     *int     `yaml:"context_window" validate:"omitempty,gt=0"`
	TimeoutSeconds    *int     `yaml:"timeout_seconds" validate:"omitempty,min=1,max=3600"`
	MaxRetries        *int     `yaml:"max_retries" validate:"omitempty,gte=0"`
}

// Default returns the configuration used when no file is provided:
// filesystem storage under ./data with caching on, JSON logs at info,
// and a $2 default cost ceiling.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:                   8080,
			ReadTimeoutSeconds:     30,
			WriteTimeoutSeconds:    300,
			ShutdownTimeoutSeconds: 15,
		},
		Storage: StorageConfig{
			Backend:         "filesystem",
			Path:            "./data",
			CacheEnabled:    true,
			CacheSize:       1024,
			CacheTTLSeconds: 300,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Generation: GenerationConfig{
			DefaultMaxCost: 2.0,
			BudgetPolicy:   "unconstrained",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides, then validates the result. An empty path skips
// the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := newValidator().Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv layers environment variables over the file values. Only a small
// deploy-time surface is exposed this way; everything else belongs in the
// file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SPECFORGE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SPECFORGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SPECFORGE_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("SPECFORGE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("SPECFORGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SPECFORGE_LOG_PRETTY"); v != "" {
		if pretty, err := strconv.ParseBool(v); err == nil {
			cfg.Logging.Pretty = pretty
		}
	}
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}
