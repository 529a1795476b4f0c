// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

package database

import (
	"database/sql"
	"errors"
	"io"

	"github.com/tomtom215/epivault/internal/logging"
)

// Sentinel errors surfaced by the metadata cache. Neither is fatal for a
// caller: both mean "recompute the summary live".
var (
	// ErrCacheEmpty means the cache row has never been populated.
	ErrCacheEmpty = errors.New("metadata cache is empty")

	// ErrCacheStale means the cached blob is older than the freshness window.
	ErrCacheStale = errors.New("metadata cache is stale")
)

// rollbackQuietly rolls back a transaction, logging failures other than
// "already committed/rolled back". Used in defer cleanup paths.
func rollbackQuietly(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logging.Warn().Err(err).Msg("Failed to roll back transaction")
	}
}

// closeWithLog closes a resource and logs any error.
// Use this for cleanup operations where errors should be acknowledged but
// not fail the operation.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource and explicitly ignores any error.
// Use this for cleanup operations in error paths where Close() errors are
// not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close() // cleanup is best-effort
	}
}
