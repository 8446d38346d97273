// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

// Package config loads and validates service configuration via Koanf v2 with
// layered sources (highest priority wins): environment variables, an optional
// YAML config file, built-in defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/bunkr/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Portal   PortalConfig   `koanf:"portal"`
	Breaker  BreakerConfig  `koanf:"breaker"`
	Sync     SyncConfig     `koanf:"sync"`
	Database DatabaseConfig `koanf:"database"`
	Security SecurityConfig `koanf:"security"`
	SMTP     SMTPConfig     `koanf:"smtp"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// PortalConfig configures the external attendance portal client.
type PortalConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout"`
	// RequestsPerSecond paces outbound portal calls across all user
	// pipelines; 0 disables pacing.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// BreakerConfig configures the circuit breaker guarding the portal.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int `koanf:"failure_threshold" validate:"gte=1"`
	// Cooldown is how long the circuit stays open before admitting probes.
	Cooldown time.Duration `koanf:"cooldown"`
	// HalfOpenProbes bounds concurrent probe calls in half-open state and is
	// also the number of consecutive successes required to close.
	HalfOpenProbes int `koanf:"half_open_probes" validate:"gte=1"`
}

// SyncConfig configures the batch sync orchestrator.
type SyncConfig struct {
	// Enabled turns the periodic background sync loop on.
	Enabled bool `koanf:"enabled"`
	// Interval between periodic batch runs.
	Interval time.Duration `koanf:"interval"`
	// BatchSize is the number of oldest-synced users selected per run.
	BatchSize int `koanf:"batch_size" validate:"gte=1"`
	// ChunkSize bounds concurrent user pipelines.
	ChunkSize int `koanf:"chunk_size" validate:"gte=1"`
	// ChunkDelay is the pause between chunks.
	ChunkDelay time.Duration `koanf:"chunk_delay"`
}

// DatabaseConfig configures the DuckDB record store.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// SecurityConfig holds auth material for the HTTP surface.
type SecurityConfig struct {
	// JWTSecret signs end-user session tokens and keys credential
	// encryption and log redaction.
	JWTSecret string `koanf:"jwt_secret" validate:"required,min=32"`
	// CronSecret is the shared secret for the automation caller of the
	// sync trigger.
	CronSecret string `koanf:"cron_secret" validate:"required,min=16"`

	RateLimitReqs   int           `koanf:"rate_limit_requests" validate:"gte=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// SMTPConfig configures best-effort email dispatch.
type SMTPConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// defaultConfig returns the built-in defaults, applied before file and env.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8420,
			Timeout: 30 * time.Second,
		},
		Portal: PortalConfig{
			BaseURL:           "",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			Cooldown:         60 * time.Second,
			HalfOpenProbes:   2,
		},
		Sync: SyncConfig{
			Enabled:    true,
			Interval:   6 * time.Hour,
			BatchSize:  50,
			ChunkSize:  2,
			ChunkDelay: 2 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/bunkr.duckdb",
			MaxMemory: "512MB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Security: SecurityConfig{
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		SMTP: SMTPConfig{
			Enabled: false,
			Port:    587,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, then validates it. Validation failures are fatal to
// the caller by design: a misconfigured batch must abort before any user is
// processed.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings translates flat environment variable names to koanf paths.
// Only listed variables are honored; everything else in the environment is
// ignored rather than guessed at.
var envMappings = map[string]string{
	"server_host":    "server.host",
	"server_port":    "server.port",
	"server_timeout": "server.timeout",

	"portal_base_url":            "portal.base_url",
	"portal_timeout":             "portal.timeout",
	"portal_requests_per_second": "portal.requests_per_second",

	"breaker_failure_threshold": "breaker.failure_threshold",
	"breaker_cooldown":          "breaker.cooldown",
	"breaker_half_open_probes":  "breaker.half_open_probes",

	"sync_enabled":     "sync.enabled",
	"sync_interval":    "sync.interval",
	"sync_batch_size":  "sync.batch_size",
	"sync_chunk_size":  "sync.chunk_size",
	"sync_chunk_delay": "sync.chunk_delay",

	"database_path":       "database.path",
	"database_max_memory": "database.max_memory",
	"database_threads":    "database.threads",

	"jwt_secret":          "security.jwt_secret",
	"cron_secret":         "security.cron_secret",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_window":   "security.rate_limit_window",
	"cors_origins":        "security.cors_origins",

	"smtp_enabled":  "smtp.enabled",
	"smtp_host":     "smtp.host",
	"smtp_port":     "smtp.port",
	"smtp_username": "smtp.username",
	"smtp_password": "smtp.password",
	"smtp_from":     "smtp.from",

	"log_level":  "logging.level",
	"log_format": "logging.format",
}

func envTransform(key string) string {
	if path, ok := envMappings[strings.ToLower(key)]; ok {
		return path
	}
	return "" // unmapped variables are dropped
}
