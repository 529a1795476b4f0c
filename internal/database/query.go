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

	"github.com/tomtom215/epivault/internal/epitime"
	"github.com/tomtom215/epivault/internal/metrics"
	"github.com/tomtom215/epivault/internal/models"
)

// SeriesQuery selects one signal's observations. GeoValues empty means
// every geography of the geo type; TimeRanges empty means the full
// recorded time span.
type SeriesQuery struct {
	Source     string
	Signal     string
	TimeType   models.TimeType
	GeoType    string
	GeoValues  []string
	TimeRanges []epitime.Range
}

// FetchLatest reads the current-best observation per (geography, time)
// from the latest projection. Rows are ordered by geo_value then
// time_value, the order the transform executors require.
func (db *DB) FetchLatest(ctx context.Context, q SeriesQuery) ([]models.SignalRow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()

	where, args := q.filters("l")
	rows, err := db.conn.QueryContext(ctx, `
		SELECT l.load_id, sd.source, sd.signal, gd.geo_type, gd.geo_value,
		       l.time_type, l.time_value, l.issue, l.lag,
		       l.value, l.stderr, l.sample_size,
		       l.missing_value, l.missing_stderr, l.missing_sample_size
		FROM signal_latest l
		JOIN signal_dim sd ON l.signal_key_id = sd.signal_key_id
		JOIN geo_dim gd ON l.geo_key_id = gd.geo_key_id
		WHERE `+where+`
		ORDER BY gd.geo_value, l.time_value`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest series: %w", err)
	}
	defer closeWithLog(rows, "latest series rows")

	result, err := scanSignalRows(rows)
	if err != nil {
		return nil, err
	}
	metrics.ObserveQuery("latest", time.Since(start))
	return result, nil
}

// FetchAsOf reads the best observation per (geography, time) among
// issues published at or before asOf, reconstructing the view a reader
// would have had at that issue date. Keys first published after asOf
// are absent from the result.
func (db *DB) FetchAsOf(ctx context.Context, q SeriesQuery, asOf int64) ([]models.SignalRow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()

	where, args := q.filters("h")
	args = append(args, asOf)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT h.load_id, sd.source, sd.signal, gd.geo_type, gd.geo_value,
		       h.time_type, h.time_value, h.issue, h.lag,
		       h.value, h.stderr, h.sample_size,
		       h.missing_value, h.missing_stderr, h.missing_sample_size
		FROM signal_history h
		JOIN signal_dim sd ON h.signal_key_id = sd.signal_key_id
		JOIN geo_dim gd ON h.geo_key_id = gd.geo_key_id
		WHERE `+where+` AND h.issue <= ?
		QUALIFY row_number() OVER (
			PARTITION BY h.signal_key_id, h.geo_key_id, h.time_type, h.time_value
			ORDER BY h.issue DESC) = 1
		ORDER BY gd.geo_value, h.time_value`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query as-of series: %w", err)
	}
	defer closeWithLog(rows, "as-of series rows")

	result, err := scanSignalRows(rows)
	if err != nil {
		return nil, err
	}
	metrics.ObserveQuery("as_of", time.Since(start))
	return result, nil
}

// filters renders the query's WHERE clause against table alias t.
func (q *SeriesQuery) filters(t string) (string, []interface{}) {
	var sb strings.Builder
	args := []interface{}{q.Source, q.Signal, string(q.TimeType), q.GeoType}
	sb.WriteString("sd.source = ? AND sd.signal = ? AND ")
	sb.WriteString(t)
	sb.WriteString(".time_type = ? AND gd.geo_type = ?")

	if len(q.GeoValues) > 0 {
		sb.WriteString(" AND gd.geo_value IN (")
		for i, v := range q.GeoValues {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, v)
		}
		sb.WriteString(")")
	}

	if len(q.TimeRanges) > 0 {
		sb.WriteString(" AND (")
		for i, r := range q.TimeRanges {
			if i > 0 {
				sb.WriteString(" OR ")
			}
			sb.WriteString(t)
			sb.WriteString(".time_value BETWEEN ? AND ?")
			args = append(args, r.Start, r.End)
		}
		sb.WriteString(")")
	}

	return sb.String(), args
}

func scanSignalRows(rows *sql.Rows) ([]models.SignalRow, error) {
	var result []models.SignalRow
	for rows.Next() {
		var r models.SignalRow
		var issue, lag int64
		var mv, ms, mss int64
		if err := rows.Scan(
			&r.LoadID, &r.Source, &r.Signal, &r.GeoType, &r.GeoValue,
			&r.TimeType, &r.TimeValue, &issue, &lag,
			&r.Value, &r.Stderr, &r.SampleSize,
			&mv, &ms, &mss); err != nil {
			return nil, fmt.Errorf("failed to scan series row: %w", err)
		}
		r.Issue = models.Int64(issue)
		r.Lag = models.Int64(lag)
		r.MissingValue = models.NanCode(mv)
		r.MissingStderr = models.NanCode(ms)
		r.MissingSampleSize = models.NanCode(mss)
		result = append(result, r)
	}
	return result, rows.Err()
}
