// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

/*
schema.go - Database Schema Management

Tables:
  - signal_dim / geo_dim: append-only dimension tables mapping string
    tuples to surrogate integer keys allocated from sequences
  - signal_load: ephemeral staging table; load_id comes from its own
    sequence and records arrival order
  - signal_history: full revision log, one row per
    (signal_key_id, geo_key_id, time_type, time_value, issue)
  - signal_latest: current-best projection, one row per
    (signal_key_id, geo_key_id, time_type, time_value)
  - metadata_cache: single-row serialized summary blob with timestamp
  - schema_migrations: versioned migration tracking

History and latest share the same column set so a row can be copied
between them verbatim; both reference the dimension tables by surrogate
id, never by the raw strings, to bound row width and index size.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// observationColumns is the shared column list of signal_history and
// signal_latest, in insert order.
const observationColumns = `load_id, signal_key_id, geo_key_id, time_type, time_value, issue,
	value, stderr, sample_size, missing_value, missing_stderr, missing_sample_size, lag`

// createSchema creates sequences, tables, and indexes.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range schemaStatements() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema statement: %s: %w", query, err)
		}
	}

	return nil
}

// schemaStatements returns the schema DDL in dependency order.
func schemaStatements() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_signal_dim START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_geo_dim START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_signal_load START 1`,

		`CREATE TABLE IF NOT EXISTS signal_dim (
			signal_key_id BIGINT PRIMARY KEY DEFAULT nextval('seq_signal_dim'),
			source TEXT NOT NULL,
			signal TEXT NOT NULL,
			UNIQUE (source, signal)
		)`,

		`CREATE TABLE IF NOT EXISTS geo_dim (
			geo_key_id BIGINT PRIMARY KEY DEFAULT nextval('seq_geo_dim'),
			geo_type TEXT NOT NULL,
			geo_value TEXT NOT NULL,
			UNIQUE (geo_type, geo_value)
		)`,

		`CREATE TABLE IF NOT EXISTS signal_load (
			load_id BIGINT PRIMARY KEY DEFAULT nextval('seq_signal_load'),
			source TEXT NOT NULL,
			signal TEXT NOT NULL,
			geo_type TEXT NOT NULL,
			geo_value TEXT NOT NULL,
			time_type TEXT NOT NULL,
			time_value BIGINT NOT NULL,
			issue BIGINT NOT NULL,
			value DOUBLE,
			stderr DOUBLE,
			sample_size DOUBLE,
			missing_value BIGINT NOT NULL DEFAULT 0,
			missing_stderr BIGINT NOT NULL DEFAULT 0,
			missing_sample_size BIGINT NOT NULL DEFAULT 0,
			lag BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS signal_history (
			load_id BIGINT NOT NULL,
			signal_key_id BIGINT NOT NULL,
			geo_key_id BIGINT NOT NULL,
			time_type TEXT NOT NULL,
			time_value BIGINT NOT NULL,
			issue BIGINT NOT NULL,
			value DOUBLE,
			stderr DOUBLE,
			sample_size DOUBLE,
			missing_value BIGINT NOT NULL DEFAULT 0,
			missing_stderr BIGINT NOT NULL DEFAULT 0,
			missing_sample_size BIGINT NOT NULL DEFAULT 0,
			lag BIGINT NOT NULL,
			UNIQUE (signal_key_id, geo_key_id, time_type, time_value, issue)
		)`,

		`CREATE TABLE IF NOT EXISTS signal_latest (
			load_id BIGINT NOT NULL,
			signal_key_id BIGINT NOT NULL,
			geo_key_id BIGINT NOT NULL,
			time_type TEXT NOT NULL,
			time_value BIGINT NOT NULL,
			issue BIGINT NOT NULL,
			value DOUBLE,
			stderr DOUBLE,
			sample_size DOUBLE,
			missing_value BIGINT NOT NULL DEFAULT 0,
			missing_stderr BIGINT NOT NULL DEFAULT 0,
			missing_sample_size BIGINT NOT NULL DEFAULT 0,
			lag BIGINT NOT NULL,
			UNIQUE (signal_key_id, geo_key_id, time_type, time_value)
		)`,

		`CREATE TABLE IF NOT EXISTS metadata_cache (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			updated_at TIMESTAMP NOT NULL,
			epidata TEXT NOT NULL
		)`,

		// The as-of read and the repair both group by the logical key
		// prefix; the unique constraint above covers the full key only.
		`CREATE INDEX IF NOT EXISTS idx_history_prefix
			ON signal_history (signal_key_id, geo_key_id, time_type, time_value)`,
	}
}

// seedMetadataCacheRow inserts the single cache row if it does not exist,
// with an epoch timestamp so an unpopulated cache always reads as stale.
func (db *DB) seedMetadataCacheRow() error {
	ctx, cancel := schemaContext()
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO metadata_cache (id, updated_at, epidata)
		 VALUES (1, TIMESTAMP '1970-01-01 00:00:00', '')
		 ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to seed metadata cache row: %w", err)
	}
	return nil
}
