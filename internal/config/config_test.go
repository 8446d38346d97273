// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns a minimal passing configuration for mutation in tests.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Portal.BaseURL = "https://portal.example.edu/api"
	cfg.Security.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.Security.CronSecret = "cron-secret-0123456789"
	cfg.Database.Path = "/tmp/bunkr-test.duckdb"
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidateRejectsMissingSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Security.JWTSecret = ""
	cfg.Security.CronSecret = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for missing secrets")
	}
	if !strings.Contains(err.Error(), "JWTSecret") {
		t.Errorf("error should name JWTSecret, got: %v", err)
	}
	if !strings.Contains(err.Error(), "CronSecret") {
		t.Errorf("error should name CronSecret, got: %v", err)
	}
}

func TestValidateRejectsShortJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Security.JWTSecret = "short"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for short JWT secret")
	}
}

func TestValidateRejectsInvalidPortalURL(t *testing.T) {
	cfg := validConfig()
	cfg.Portal.BaseURL = "not a url"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for invalid portal URL")
	}
}

func TestValidateChunkSizeBoundedByBatchSize(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.BatchSize = 2
	cfg.Sync.ChunkSize = 5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when chunk_size > batch_size")
	}
	if !strings.Contains(err.Error(), "chunk_size") {
		t.Errorf("error should name chunk_size, got: %v", err)
	}
}

func TestValidateBreakerCooldownPositive(t *testing.T) {
	cfg := validConfig()
	cfg.Breaker.Cooldown = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero cooldown")
	}
}

func TestValidateSMTPRequiresHostWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.SMTP.Enabled = true
	cfg.SMTP.Host = ""
	cfg.SMTP.From = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for enabled SMTP without host")
	}
	if !strings.Contains(err.Error(), "smtp.host") {
		t.Errorf("error should name smtp.host, got: %v", err)
	}
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Breaker.Cooldown = 0
	cfg.Sync.BatchSize = 1
	cfg.Sync.ChunkSize = 4

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"breaker.cooldown", "chunk_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestEnvTransformMapping(t *testing.T) {
	tests := []struct {
		envKey string
		want   string
	}{
		{"JWT_SECRET", "security.jwt_secret"},
		{"jwt_secret", "security.jwt_secret"},
		{"PORTAL_BASE_URL", "portal.base_url"},
		{"SYNC_CHUNK_SIZE", "sync.chunk_size"},
		{"BREAKER_COOLDOWN", "breaker.cooldown"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		if got := envTransform(tt.envKey); got != tt.want {
			t.Errorf("envTransform(%q) = %q, want %q", tt.envKey, got, tt.want)
		}
	}
}

func TestDefaultsAreSane(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Breaker.FailureThreshold != 3 {
		t.Errorf("default failure threshold = %d, want 3", cfg.Breaker.FailureThreshold)
	}
	if cfg.Sync.ChunkSize != 2 {
		t.Errorf("default chunk size = %d, want 2", cfg.Sync.ChunkSize)
	}
	if cfg.Sync.Interval < time.Minute {
		t.Errorf("default sync interval %v suspiciously small", cfg.Sync.Interval)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("default log format = %q, want json", cfg.Logging.Format)
	}
}
