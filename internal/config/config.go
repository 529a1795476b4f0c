// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

// Package config provides layered configuration for Epivault using Koanf v2.
//
// Precedence (highest wins): environment variables > config file > defaults.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the Epivault server.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Server    ServerConfig    `koanf:"server"`
	Metadata  MetadataConfig  `koanf:"metadata"`
	Transform TransformConfig `koanf:"transform"`
	Repair    RepairConfig    `koanf:"repair"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// DatabaseConfig holds DuckDB connection settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file path, or ":memory:" for tests.
	Path string `koanf:"path"`

	// MaxMemory is the DuckDB memory limit (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`

	// PreserveInsertionOrder mirrors DuckDB's preserve_insertion_order
	// pragma. Disabling it lowers memory usage for bulk loads.
	PreserveInsertionOrder bool `koanf:"preserve_insertion_order"`
}

// ServerConfig holds the ops HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// MetadataConfig controls the metadata summary cache.
type MetadataConfig struct {
	// MaxAge is the freshness window for the cached summary blob.
	// Reads older than this miss the cache and recompute live.
	MaxAge time.Duration `koanf:"max_age"`

	// RefreshInterval is how often the background refresher recomputes
	// the summary. Should be comfortably below MaxAge.
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// TransformConfig controls derived-signal computation.
type TransformConfig struct {
	// SmoothingWindow is the window length in time units for smoothed
	// derived signals (7 reproduces the standard 7-day average).
	SmoothingWindow int `koanf:"smoothing_window"`
}

// RepairConfig controls the partitioned latest-projection repair.
type RepairConfig struct {
	// Partitions is the number of hash partitions for full-table repair.
	Partitions int `koanf:"partitions"`

	// MaxParallel bounds how many partitions repair concurrently.
	MaxParallel int `koanf:"max_parallel"`

	// RetryMaxElapsed caps per-partition retry time before the
	// partition's failure is surfaced.
	RetryMaxElapsed time.Duration `koanf:"retry_max_elapsed"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:                   "/data/epivault.duckdb",
			MaxMemory:              "2GB",
			Threads:                0, // 0 = use runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    4100,
			Timeout: 30 * time.Second,
		},
		Metadata: MetadataConfig{
			MaxAge:          time.Hour,
			RefreshInterval: 15 * time.Minute,
		},
		Transform: TransformConfig{
			SmoothingWindow: 7,
		},
		Repair: RepairConfig{
			Partitions:      16,
			MaxParallel:     4,
			RetryMaxElapsed: 2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateMetadata(); err != nil {
		return err
	}
	if err := c.validateTransform(); err != nil {
		return err
	}
	if err := c.validateRepair(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DATABASE_PATH must not be empty")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DATABASE_THREADS must be >= 0, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("SERVER_TIMEOUT must be positive, got %s", c.Server.Timeout)
	}
	return nil
}

func (c *Config) validateMetadata() error {
	if c.Metadata.MaxAge <= 0 {
		return fmt.Errorf("METADATA_MAX_AGE must be positive, got %s", c.Metadata.MaxAge)
	}
	if c.Metadata.RefreshInterval <= 0 {
		return fmt.Errorf("METADATA_REFRESH_INTERVAL must be positive, got %s", c.Metadata.RefreshInterval)
	}
	if c.Metadata.RefreshInterval > c.Metadata.MaxAge {
		return fmt.Errorf("METADATA_REFRESH_INTERVAL (%s) must not exceed METADATA_MAX_AGE (%s), or the cache can never be fresh",
			c.Metadata.RefreshInterval, c.Metadata.MaxAge)
	}
	return nil
}

func (c *Config) validateTransform() error {
	if c.Transform.SmoothingWindow < 1 {
		return fmt.Errorf("TRANSFORM_SMOOTHING_WINDOW must be >= 1, got %d", c.Transform.SmoothingWindow)
	}
	return nil
}

func (c *Config) validateRepair() error {
	if c.Repair.Partitions < 1 {
		return fmt.Errorf("REPAIR_PARTITIONS must be >= 1, got %d", c.Repair.Partitions)
	}
	if c.Repair.MaxParallel < 1 {
		return fmt.Errorf("REPAIR_MAX_PARALLEL must be >= 1, got %d", c.Repair.MaxParallel)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOGGING_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOGGING_FORMAT %q must be json or console", c.Logging.Format)
	}
	return nil
}
