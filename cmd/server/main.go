// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

// Package main is the entry point for the Epivault server.
//
// Epivault stores versioned epidemiological signal time series in DuckDB
// and serves derived signals computed lazily at read time. The binary
// initializes components in order:
//
//  1. Configuration: koanf v2 layered sources (env > config file > defaults)
//  2. Logging: zerolog, JSON or console format
//  3. Database: DuckDB schema, migrations, metadata cache seed
//  4. Supervision: suture tree running the metadata refresher and the
//     ops HTTP listener (/healthz, /metrics, /api/v1/metadata)
//
// Ingestion, merging, deletion, and series reads are library operations
// on the database package, driven by embedding applications or jobs.
//
// The server shuts down gracefully on SIGINT and SIGTERM: in-flight
// requests drain within the configured timeout, then the database is
// checkpointed and closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/epivault/internal/api"
	"github.com/tomtom215/epivault/internal/config"
	"github.com/tomtom215/epivault/internal/database"
	"github.com/tomtom215/epivault/internal/logging"
	"github.com/tomtom215/epivault/internal/supervisor"
	"github.com/tomtom215/epivault/internal/supervisor/services"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Int("port", cfg.Server.Port).
		Msg("Starting epivault")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close database")
		}
	}()

	tree, err := supervisor.NewSupervisorTree(
		slog.New(logging.NewSlogHandler()), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	tree.AddDataService(services.NewMetadataRefreshService(db, cfg.Metadata.RefreshInterval))

	router := api.NewRouter(db, cfg)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Handler(),
		ReadHeaderTimeout: cfg.Server.Timeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Supervisor tree starting")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor stopped: %w", err)
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}
