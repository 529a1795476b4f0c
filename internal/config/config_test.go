// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"negative threads", func(c *Config) { c.Database.Threads = -1 }},
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"zero metadata max age", func(c *Config) { c.Metadata.MaxAge = 0 }},
		{"refresh exceeds max age", func(c *Config) {
			c.Metadata.MaxAge = time.Minute
			c.Metadata.RefreshInterval = time.Hour
		}},
		{"zero smoothing window", func(c *Config) { c.Transform.SmoothingWindow = 0 }},
		{"zero repair partitions", func(c *Config) { c.Repair.Partitions = 0 }},
		{"zero repair parallelism", func(c *Config) { c.Repair.MaxParallel = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"DATABASE_PATH", "database.path"},
		{"DATABASE_MAX_MEMORY", "database.max_memory"},
		{"METADATA_MAX_AGE", "metadata.max_age"},
		{"TRANSFORM_SMOOTHING_WINDOW", "transform.smoothing_window"},
		{"REPAIR_MAX_PARALLEL", "repair.max_parallel"},
		{"LOGGING_LEVEL", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
		{"UNRELATED_THING", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.input); got != tt.expected {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_PATH", ":memory:")
	t.Setenv("DATABASE_MAX_MEMORY", "512MB")
	t.Setenv("LOGGING_LEVEL", "debug")
	t.Setenv(ConfigPathEnvVar, "/nonexistent/config.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != ":memory:" {
		t.Errorf("expected env override for path, got %q", cfg.Database.Path)
	}
	if cfg.Database.MaxMemory != "512MB" {
		t.Errorf("expected env override for max memory, got %q", cfg.Database.MaxMemory)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected env override for log level, got %q", cfg.Logging.Level)
	}
	// Untouched values keep their defaults.
	if cfg.Transform.SmoothingWindow != 7 {
		t.Errorf("expected default smoothing window 7, got %d", cfg.Transform.SmoothingWindow)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "database:\n  path: /tmp/from-file.duckdb\nserver:\n  port: 4200\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "/tmp/from-file.duckdb" {
		t.Errorf("expected path from file, got %q", cfg.Database.Path)
	}
	if cfg.Server.Port != 4200 {
		t.Errorf("expected port from file, got %d", cfg.Server.Port)
	}
}
