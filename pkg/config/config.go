// Package config loads the deployment configuration: defaults, then an
// optional YAML file, then LSMKV_* environment overrides, validated as a
// whole before anything starts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pmoura/lsmkv/pkg/lsm"
)

// ServerConfig configures the REST listener.
type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port" validate:"min=1,max=65535"`
	MaxBodyBytes        int64  `yaml:"max_body_bytes" validate:"min=1"`
	FeatureCacheTTLSecs int    `yaml:"feature_cache_ttl_secs" validate:"min=0"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs" validate:"min=1"`
}

// FeatureCacheTTL returns the feature flag cache lifetime.
func (s ServerConfig) FeatureCacheTTL() time.Duration {
	return time.Duration(s.FeatureCacheTTLSecs) * time.Second
}

// ShutdownTimeout returns the graceful shutdown bound.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSecs) * time.Second
}

// AuthConfig configures bearer authentication. When disabled every route is
// open; when enabled every route except /health, /metrics and /auth/token
// requires a token issued for the API secret, reads included.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
	// SigningSecret signs bearer tokens; required when enabled.
	SigningSecret string `yaml:"signing_secret" validate:"required_if=Enabled true,omitempty,min=32"`
	// APISecretHash is the bcrypt hash of the secret clients exchange for
	// tokens. Empty means any non-empty secret is accepted (development).
	APISecretHash string `yaml:"api_secret_hash"`
	TokenTTLSecs  int    `yaml:"token_ttl_secs" validate:"min=0"`
}

// TokenTTL returns the bearer token lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLSecs) * time.Second
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
}

// Config is the full deployment configuration.
type Config struct {
	Engine lsm.Config   `yaml:"engine"`
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	Log    LogConfig    `yaml:"log"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		Engine: lsm.DefaultConfig("./.lsmkv-data"),
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			MaxBodyBytes:        50 * 1024 * 1024,
			FeatureCacheTTLSecs: 10,
			ShutdownTimeoutSecs: 15,
		},
		Auth: AuthConfig{
			TokenTTLSecs: 3600,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// path is non-empty the file must exist; otherwise a missing file is fine),
// and environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays LSMKV_* environment variables onto cfg.
func applyEnv(cfg *Config) {
	envString("LSMKV_DATA_DIR", &cfg.Engine.DataDir)
	envInt("LSMKV_MEMTABLE_MAX_SIZE", &cfg.Engine.MemtableMaxSize)
	envInt("LSMKV_BLOCK_SIZE", &cfg.Engine.BlockSize)
	envInt("LSMKV_BLOCK_CACHE_SIZE_MIB", &cfg.Engine.BlockCacheSizeMiB)
	envFloat("LSMKV_BLOOM_FP_RATE", &cfg.Engine.BloomFalsePositiveRate)
	envString("LSMKV_WAL_SYNC_MODE", &cfg.Engine.WALSyncMode)
	envBool("LSMKV_WAL_COMPRESSION", &cfg.Engine.WALCompression)

	envString("LSMKV_HOST", &cfg.Server.Host)
	envInt("LSMKV_PORT", &cfg.Server.Port)
	envInt64("LSMKV_MAX_BODY_BYTES", &cfg.Server.MaxBodyBytes)

	envBool("LSMKV_AUTH_ENABLED", &cfg.Auth.Enabled)
	envString("LSMKV_AUTH_SIGNING_SECRET", &cfg.Auth.SigningSecret)
	envString("LSMKV_AUTH_API_SECRET_HASH", &cfg.Auth.APISecretHash)

	envString("LSMKV_LOG_LEVEL", &cfg.Log.Level)
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func envInt64(name string, dst *int64) {
	if v := os.Getenv(name); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = parsed
		}
	}
}

func envFloat(name string, dst *float64) {
	if v := os.Getenv(name); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

// Validate runs struct-tag validation plus the engine's own checks.
func Validate(cfg Config) error {
	v := validator.New()
	if err := v.Struct(cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := v.Struct(cfg.Auth); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}
	if err := v.Struct(cfg.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if err := cfg.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	return nil
}
