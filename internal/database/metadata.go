// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/epivault/internal/logging"
	"github.com/tomtom215/epivault/internal/metrics"
	"github.com/tomtom215/epivault/internal/models"
)

// ComputeSummary aggregates the latest projection into per-series
// coverage metadata, one entry per (source, signal, time_type, geo_type)
// group. Signals named wip_* are treated as works in progress and
// excluded. Only the latest projection is scanned; superseded issues do
// not influence the summary.
func (db *DB) ComputeSummary(ctx context.Context) ([]models.MetadataSummary, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT sd.source, sd.signal, l.time_type, gd.geo_type,
		       min(l.time_value), max(l.time_value),
		       count(DISTINCT l.geo_key_id),
		       min(l.value), max(l.value), avg(l.value), coalesce(stddev_pop(l.value), 0),
		       max(l.issue), min(l.lag), max(l.lag)
		FROM signal_latest l
		JOIN signal_dim sd ON l.signal_key_id = sd.signal_key_id
		JOIN geo_dim gd ON l.geo_key_id = gd.geo_key_id
		WHERE sd.signal NOT LIKE 'wip_%'
		GROUP BY sd.source, sd.signal, l.time_type, gd.geo_type
		ORDER BY sd.source, sd.signal, l.time_type, gd.geo_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute metadata summary: %w", err)
	}
	defer closeWithLog(rows, "metadata summary rows")

	var summaries []models.MetadataSummary
	for rows.Next() {
		var s models.MetadataSummary
		if err := rows.Scan(
			&s.Source, &s.Signal, &s.TimeType, &s.GeoType,
			&s.MinTime, &s.MaxTime, &s.NumLocations,
			&s.MinValue, &s.MaxValue, &s.MeanValue, &s.StdevValue,
			&s.MaxIssue, &s.MinLag, &s.MaxLag); err != nil {
			return nil, fmt.Errorf("failed to scan metadata summary row: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	metrics.MetadataRefreshDuration.Observe(time.Since(start).Seconds())
	return summaries, nil
}

// UpdateCache recomputes the summary and stores it as the cached blob.
func (db *DB) UpdateCache(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	summaries, err := db.ComputeSummary(ctx)
	if err != nil {
		return err
	}
	if summaries == nil {
		summaries = []models.MetadataSummary{}
	}

	blob, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata summary: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx,
		`UPDATE metadata_cache SET epidata = ?, updated_at = ? WHERE id = 1`,
		string(blob), db.clock.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store metadata cache: %w", err)
	}

	logger := logging.Ctx(ctx)
	logger.Debug().
		Int("groups", len(summaries)).
		Msg("Refreshed metadata cache")
	return nil
}

// ServeCached returns the cached summary blob if it was refreshed within
// maxAge. Returns ErrCacheEmpty for a never-populated cache and
// ErrCacheStale when the blob has aged out; callers handle both by
// recomputing (or returning an error upstream), never by trusting the
// blob.
func (db *DB) ServeCached(ctx context.Context, maxAge time.Duration) ([]byte, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var blob string
	var updatedAt time.Time
	err := db.conn.QueryRowContext(ctx,
		`SELECT epidata, updated_at FROM metadata_cache WHERE id = 1`).
		Scan(&blob, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata cache: %w", err)
	}

	if blob == "" {
		metrics.MetadataCacheMisses.WithLabelValues("empty").Inc()
		return nil, ErrCacheEmpty
	}
	if age := db.clock.Now().UTC().Sub(updatedAt.UTC()); age > maxAge {
		metrics.MetadataCacheMisses.WithLabelValues("stale").Inc()
		return nil, fmt.Errorf("%w: age %s exceeds %s", ErrCacheStale, age.Round(time.Second), maxAge)
	}

	metrics.MetadataCacheHits.Inc()
	return []byte(blob), nil
}
