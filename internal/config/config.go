// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (LUMICHAT_* runtime override, DATABASE_URL)
//  2. Config file (~/.lumichat/config.yaml or ./config.yaml)
//  3. Default values
//
// Categories:
//   - Server: listen address, CORS origins
//   - AI: model name, temperature, system prompt, generation rate limit
//   - Storage: PostgreSQL connection and pool sizing (see storage.go)
//   - Tracing: OTLP trace export (disabled by default)
//
// Validation lives in validation.go and uses sentinel errors so callers
// can check categories with errors.Is().
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Defaults applied when neither the config file nor the environment
// provides a value.
const (
	DefaultAddr        = "127.0.0.1:8000"
	DefaultModelName   = "gemini-2.5-flash"
	DefaultTemperature = float32(0)

	DefaultPostgresHost    = "localhost"
	DefaultPostgresPort    = 5432
	DefaultPostgresUser    = "lumichat"
	DefaultPostgresDBName  = "lumichat"
	DefaultPostgresSSLMode = "disable"

	// Pool sizing mirrors the deployment this service replaced
	// (pool_size=20, max_overflow=30 on the old stack).
	DefaultPoolMaxConns = 50
	DefaultPoolMinConns = 2

	// Generation rate limit: sustained requests/sec and burst.
	DefaultRateLimit = 10
	DefaultRateBurst = 30
)

// TracingConfig configures OTLP trace export (see internal/observability).
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"` // OTLP HTTP host:port, default localhost:4318
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
type Config struct {
	// HTTP server
	Addr        string   `mapstructure:"addr" json:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`

	// AI model configuration
	ModelName    string  `mapstructure:"model_name" json:"model_name"`
	Temperature  float32 `mapstructure:"temperature" json:"temperature"`
	SystemPrompt string  `mapstructure:"system_prompt" json:"system_prompt"`
	RateLimit    float64 `mapstructure:"rate_limit" json:"rate_limit"`
	RateBurst    int     `mapstructure:"rate_burst" json:"rate_burst"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
	PoolMaxConns     int    `mapstructure:"pool_max_conns" json:"pool_max_conns"`
	PoolMinConns     int    `mapstructure:"pool_min_conns" json:"pool_min_conns"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug|info|warn|error
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Observability
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// GeminiAPIKey returns the Gemini API key from the environment.
// Deliberately not part of the config file: secrets stay out of YAML.
func (c *Config) GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// Load reads configuration from defaults, an optional config file, and
// the environment. DATABASE_URL, when set, overrides the discrete
// postgres_* settings.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".lumichat"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("LUMICHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine: defaults + env carry a full configuration.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", DefaultAddr)
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("temperature", DefaultTemperature)
	v.SetDefault("system_prompt", "You are a helpful assistant.")
	v.SetDefault("rate_limit", DefaultRateLimit)
	v.SetDefault("rate_burst", DefaultRateBurst)

	v.SetDefault("postgres_host", DefaultPostgresHost)
	v.SetDefault("postgres_port", DefaultPostgresPort)
	v.SetDefault("postgres_user", DefaultPostgresUser)
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db_name", DefaultPostgresDBName)
	v.SetDefault("postgres_ssl_mode", DefaultPostgresSSLMode)
	v.SetDefault("pool_max_conns", DefaultPoolMaxConns)
	v.SetDefault("pool_min_conns", DefaultPoolMinConns)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "lumichat")
	v.SetDefault("tracing.environment", "")
}
