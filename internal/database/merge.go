// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

/*
merge.go - Staging-to-History/Latest Merge Engine

RunMerge promotes everything currently staged into the versioned store
in one transaction:

 1. capture the maximum staged load_id, bounding the batch so rows
    staged concurrently with the merge are left for the next run
 2. allocate dimension ids for any new (source, signal) and
    (geo_type, geo_value) pairs
 3. upsert into signal_history, one row per full key including issue;
    a re-staged (key, issue) overwrites the measurement fields but
    keeps the original load_id
 4. upsert into signal_latest, reduced to the maximum issue per key
    prefix; an equal issue refreshes the measurement fields in place
    while a strictly greater issue also takes over the load_id, so the
    latest row always mirrors the history row at the same issue
 5. delete the merged rows from staging

Duplicate (key, issue) pairs within the batch are resolved
last-writer-wins by load_id before the upserts and counted as batch
conflicts.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/epivault/internal/logging"
	"github.com/tomtom215/epivault/internal/metrics"
)

// MergeResult summarizes one merge batch.
type MergeResult struct {
	RowsMerged  int64 // staged rows promoted into history
	Conflicts   int64 // in-batch duplicates resolved last-writer-wins
	MaxLoadID   int64 // upper bound of the merged batch
	LatestRows  int64 // rows written to the latest projection
	HistoryRows int64 // rows written to the history table
}

// mergeTimeout bounds a merge batch independently of the caller.
const mergeTimeout = 10 * time.Minute

// stagedBatch selects the batch under merge, keyed to dimension ids.
// Bound by load_id so concurrently staged rows stay for the next run.
const stagedBatch = `
	SELECT sl.load_id, sd.signal_key_id, gd.geo_key_id,
	       sl.time_type, sl.time_value, sl.issue,
	       sl.value, sl.stderr, sl.sample_size,
	       sl.missing_value, sl.missing_stderr, sl.missing_sample_size, sl.lag
	FROM signal_load sl
	JOIN signal_dim sd ON sd.source = sl.source AND sd.signal = sl.signal
	JOIN geo_dim gd ON gd.geo_type = sl.geo_type AND gd.geo_value = sl.geo_value
	WHERE sl.load_id <= ?`

// RunMerge promotes all currently staged rows into history and latest
// atomically. Returns a zero result when nothing is staged.
func (db *DB) RunMerge(ctx context.Context) (*MergeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, mergeTimeout)
	defer cancel()

	start := time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	result := &MergeResult{}

	// Step 1: bound the batch.
	var maxLoadID *int64
	if err := tx.QueryRowContext(ctx,
		`SELECT max(load_id) FROM signal_load`).Scan(&maxLoadID); err != nil {
		return nil, fmt.Errorf("failed to bound merge batch: %w", err)
	}
	if maxLoadID == nil {
		return result, nil // nothing staged
	}
	result.MaxLoadID = *maxLoadID

	// Step 2: allocate dimension ids for new pairs.
	if err := resolveStagedDimensions(ctx, tx); err != nil {
		return nil, err
	}

	// Step 3: count in-batch duplicates before they are reduced away.
	if err := tx.QueryRowContext(ctx, `
		SELECT count(*) - count(DISTINCT (signal_key_id, geo_key_id, time_type, time_value, issue))
		FROM (`+stagedBatch+`)`, result.MaxLoadID).Scan(&result.Conflicts); err != nil {
		return nil, fmt.Errorf("failed to count batch conflicts: %w", err)
	}

	// Step 4: history upsert. Duplicate (key, issue) pairs within the
	// batch reduce to the highest load_id; a conflict with an existing
	// history row overwrites the measurement fields but keeps the
	// original load_id, so a reissue at the same issue does not move the
	// row's identity.
	historyResult, err := tx.ExecContext(ctx, `
		INSERT INTO signal_history (`+observationColumns+`)
		SELECT * FROM (`+stagedBatch+`
			QUALIFY row_number() OVER (
				PARTITION BY signal_key_id, geo_key_id, time_type, time_value, issue
				ORDER BY load_id DESC) = 1)
		ON CONFLICT (signal_key_id, geo_key_id, time_type, time_value, issue) DO UPDATE SET
			value = excluded.value,
			stderr = excluded.stderr,
			sample_size = excluded.sample_size,
			missing_value = excluded.missing_value,
			missing_stderr = excluded.missing_stderr,
			missing_sample_size = excluded.missing_sample_size,
			lag = excluded.lag`, result.MaxLoadID)
	if err != nil {
		return nil, fmt.Errorf("failed to merge into history: %w", err)
	}
	result.HistoryRows, _ = historyResult.RowsAffected()

	// Step 5: latest upsert, reduced to the maximum issue per key prefix.
	// An older issue never touches the projection; an equal issue
	// refreshes values in place; a newer issue replaces the row outright,
	// load_id included, keeping latest identical to the history row at
	// its issue.
	latestResult, err := tx.ExecContext(ctx, `
		INSERT INTO signal_latest (`+observationColumns+`)
		SELECT * FROM (`+stagedBatch+`
			QUALIFY row_number() OVER (
				PARTITION BY signal_key_id, geo_key_id, time_type, time_value
				ORDER BY issue DESC, load_id DESC) = 1)
		ON CONFLICT (signal_key_id, geo_key_id, time_type, time_value) DO UPDATE SET
			load_id = CASE WHEN excluded.issue > issue THEN excluded.load_id ELSE load_id END,
			issue = excluded.issue,
			value = excluded.value,
			stderr = excluded.stderr,
			sample_size = excluded.sample_size,
			missing_value = excluded.missing_value,
			missing_stderr = excluded.missing_stderr,
			missing_sample_size = excluded.missing_sample_size,
			lag = excluded.lag
		WHERE excluded.issue >= issue`, result.MaxLoadID)
	if err != nil {
		return nil, fmt.Errorf("failed to merge into latest: %w", err)
	}
	result.LatestRows, _ = latestResult.RowsAffected()

	// Step 6: clear the merged batch from staging.
	deleted, err := tx.ExecContext(ctx,
		`DELETE FROM signal_load WHERE load_id <= ?`, result.MaxLoadID)
	if err != nil {
		return nil, fmt.Errorf("failed to clear merged staging rows: %w", err)
	}
	result.RowsMerged, _ = deleted.RowsAffected()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit merge: %w", err)
	}

	metrics.ObserveMerge(int(result.RowsMerged), time.Since(start))
	metrics.BatchConflicts.Add(float64(result.Conflicts))

	logger := logging.Ctx(ctx)
	event := logger.Info()
	if result.Conflicts > 0 {
		event = logger.Warn()
	}
	event.
		Int64("rows", result.RowsMerged).
		Int64("conflicts", result.Conflicts).
		Int64("max_load_id", result.MaxLoadID).
		Dur("elapsed", time.Since(start)).
		Msg("Merged staged rows")

	return result, nil
}
