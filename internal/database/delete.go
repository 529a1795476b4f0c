// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/epivault/internal/logging"
	"github.com/tomtom215/epivault/internal/metrics"
	"github.com/tomtom215/epivault/internal/models"
)

// DeleteKey identifies one history row to remove: the full versioned key
// including the issue.
type DeleteKey struct {
	Source    string
	Signal    string
	GeoType   string
	GeoValue  string
	TimeType  models.TimeType
	TimeValue int64
	Issue     int64
}

// prefixKey is a DeleteKey without the issue: the unit of latest
// recomputation.
type prefixKey struct {
	Source    string
	Signal    string
	GeoType   string
	GeoValue  string
	TimeType  models.TimeType
	TimeValue int64
}

// DeleteResult summarizes one deletion batch.
type DeleteResult struct {
	RowsDeleted int64 // history rows removed
}

// deleteKeyBatch bounds the placeholder count of one deletion statement.
const deleteKeyBatch = 200

// DeleteBatch removes the identified history rows and recomputes the
// latest projection for every touched key prefix purely from the
// remaining history. Deleting the current maximum issue promotes the
// next-highest issue into latest; deleting the last issue of a prefix
// removes its latest row. Keys that match no history row are ignored.
// The whole batch runs in one transaction.
func (db *DB) DeleteBatch(ctx context.Context, keys []DeleteKey) (*DeleteResult, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result := &DeleteResult{}
	if len(keys) == 0 {
		return result, nil
	}

	start := time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin deletion transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	for i := 0; i < len(keys); i += deleteKeyBatch {
		end := min(i+deleteKeyBatch, len(keys))
		deleted, err := deleteHistoryRows(ctx, tx, keys[i:end])
		if err != nil {
			return nil, err
		}
		result.RowsDeleted += deleted
	}

	prefixes := distinctPrefixes(keys)
	for i := 0; i < len(prefixes); i += deleteKeyBatch {
		end := min(i+deleteKeyBatch, len(prefixes))
		if err := recomputeLatestForPrefixes(ctx, tx, prefixes[i:end]); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deletion: %w", err)
	}

	metrics.RowsDeleted.Add(float64(result.RowsDeleted))
	logger := logging.Ctx(ctx)
	logger.Info().
		Int("keys", len(keys)).
		Int64("rows_deleted", result.RowsDeleted).
		Dur("elapsed", time.Since(start)).
		Msg("Deleted history rows")

	return result, nil
}

func deleteHistoryRows(ctx context.Context, tx *sql.Tx, keys []DeleteKey) (int64, error) {
	placeholders, args := deleteKeyArgs(keys)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM signal_history h
		USING signal_dim sd, geo_dim gd,
		      (VALUES %s) AS k(source, signal, geo_type, geo_value, time_type, time_value, issue)
		WHERE sd.source = k.source AND sd.signal = k.signal
		  AND gd.geo_type = k.geo_type AND gd.geo_value = k.geo_value
		  AND h.signal_key_id = sd.signal_key_id
		  AND h.geo_key_id = gd.geo_key_id
		  AND h.time_type = k.time_type
		  AND h.time_value = k.time_value
		  AND h.issue = k.issue`, placeholders), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete history rows: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// recomputeLatestForPrefixes rebuilds the latest rows of the given key
// prefixes from history: drop them, then reinsert the maximum-issue
// history row of each prefix that still has one.
func recomputeLatestForPrefixes(ctx context.Context, tx *sql.Tx, prefixes []prefixKey) error {
	placeholders, args := prefixArgs(prefixes)

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM signal_latest l
		USING signal_dim sd, geo_dim gd,
		      (VALUES %s) AS k(source, signal, geo_type, geo_value, time_type, time_value)
		WHERE sd.source = k.source AND sd.signal = k.signal
		  AND gd.geo_type = k.geo_type AND gd.geo_value = k.geo_value
		  AND l.signal_key_id = sd.signal_key_id
		  AND l.geo_key_id = gd.geo_key_id
		  AND l.time_type = k.time_type
		  AND l.time_value = k.time_value`, placeholders), args...); err != nil {
		return fmt.Errorf("failed to drop latest rows for recomputation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO signal_latest (%s)
		SELECT h.load_id, h.signal_key_id, h.geo_key_id, h.time_type, h.time_value, h.issue,
		       h.value, h.stderr, h.sample_size,
		       h.missing_value, h.missing_stderr, h.missing_sample_size, h.lag
		FROM signal_history h
		JOIN signal_dim sd ON h.signal_key_id = sd.signal_key_id
		JOIN geo_dim gd ON h.geo_key_id = gd.geo_key_id
		JOIN (VALUES %s) AS k(source, signal, geo_type, geo_value, time_type, time_value)
		  ON sd.source = k.source AND sd.signal = k.signal
		 AND gd.geo_type = k.geo_type AND gd.geo_value = k.geo_value
		 AND h.time_type = k.time_type AND h.time_value = k.time_value
		QUALIFY row_number() OVER (
			PARTITION BY h.signal_key_id, h.geo_key_id, h.time_type, h.time_value
			ORDER BY h.issue DESC) = 1`,
		observationColumns, placeholders), args...); err != nil {
		return fmt.Errorf("failed to recompute latest rows: %w", err)
	}

	return nil
}

func deleteKeyArgs(keys []DeleteKey) (string, []interface{}) {
	var sb strings.Builder
	args := make([]interface{}, 0, len(keys)*7)
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, k.Source, k.Signal, k.GeoType, k.GeoValue,
			string(k.TimeType), k.TimeValue, k.Issue)
	}
	return sb.String(), args
}

func prefixArgs(prefixes []prefixKey) (string, []interface{}) {
	var sb strings.Builder
	args := make([]interface{}, 0, len(prefixes)*6)
	for i, p := range prefixes {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, p.Source, p.Signal, p.GeoType, p.GeoValue,
			string(p.TimeType), p.TimeValue)
	}
	return sb.String(), args
}

// distinctPrefixes reduces delete keys to their unique issue-less prefixes.
func distinctPrefixes(keys []DeleteKey) []prefixKey {
	seen := make(map[prefixKey]struct{}, len(keys))
	prefixes := make([]prefixKey, 0, len(keys))
	for _, k := range keys {
		p := prefixKey{
			Source: k.Source, Signal: k.Signal,
			GeoType: k.GeoType, GeoValue: k.GeoValue,
			TimeType: k.TimeType, TimeValue: k.TimeValue,
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		prefixes = append(prefixes, p)
	}
	return prefixes
}
