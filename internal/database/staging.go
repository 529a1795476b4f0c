// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomtom215/epivault/internal/epitime"
	"github.com/tomtom215/epivault/internal/logging"
	"github.com/tomtom215/epivault/internal/metrics"
	"github.com/tomtom215/epivault/internal/models"
	"github.com/tomtom215/epivault/internal/validation"
)

// stagingInsertBatch bounds the placeholder count of a single staging
// insert statement.
const stagingInsertBatch = 500

// RowError records why one incoming row was rejected at staging. The
// index refers to the caller's slice.
type RowError struct {
	Index int
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// StageResult summarizes one staging call.
type StageResult struct {
	Staged   int
	Rejected []RowError
}

// StageRows validates and normalizes incoming rows and appends the
// accepted ones to the staging table. Invalid rows are reported in the
// result rather than failing the batch; the returned error covers
// database failures only.
//
// Normalization applied to each accepted row:
//   - issue earlier than the observed time is coerced up to the time value
//   - lag is recomputed as the calendar distance from time value to issue
//   - missingness codes are reconciled with field presence: a present
//     field always carries NanNotMissing, and an absent field claiming
//     NanNotMissing is corrected to NanOther
func (db *DB) StageRows(ctx context.Context, rows []models.IncomingRow) (*StageResult, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result := &StageResult{}
	accepted := make([]models.IncomingRow, 0, len(rows))
	for i := range rows {
		row := rows[i]
		if err := validateIncomingRow(&row); err != nil {
			result.Rejected = append(result.Rejected, RowError{Index: i, Err: err})
			continue
		}
		normalizeIncomingRow(&row)
		accepted = append(accepted, row)
	}

	metrics.RowsRejected.Add(float64(len(result.Rejected)))
	if len(result.Rejected) > 0 {
		logger := logging.Ctx(ctx)
		logger.Warn().
			Int("rejected", len(result.Rejected)).
			Int("total", len(rows)).
			Msg("Rejected invalid rows at staging")
	}

	for start := 0; start < len(accepted); start += stagingInsertBatch {
		end := min(start+stagingInsertBatch, len(accepted))
		if err := db.insertStagedRows(ctx, accepted[start:end]); err != nil {
			return nil, err
		}
	}

	result.Staged = len(accepted)
	metrics.RowsStaged.Add(float64(result.Staged))
	return result, nil
}

// validateIncomingRow applies struct tag validation plus the checks tags
// cannot express.
func validateIncomingRow(row *models.IncomingRow) error {
	if err := validation.ValidateStruct(row); err != nil {
		return err
	}
	for _, code := range []models.NanCode{row.MissingValue, row.MissingStderr, row.MissingSampleSize} {
		if code < models.NanNotMissing || code > models.NanOther {
			return fmt.Errorf("unknown missingness code %d", code)
		}
	}
	if _, err := epitime.Diff(row.TimeType, row.Issue, row.TimeValue); err != nil {
		return fmt.Errorf("invalid time encoding: %w", err)
	}
	return nil
}

func normalizeIncomingRow(row *models.IncomingRow) {
	if row.Issue < row.TimeValue {
		row.Issue = row.TimeValue
	}
	row.MissingValue = reconcileMissingness(row.Value, row.MissingValue)
	row.MissingStderr = reconcileMissingness(row.Stderr, row.MissingStderr)
	row.MissingSampleSize = reconcileMissingness(row.SampleSize, row.MissingSampleSize)
}

// reconcileMissingness makes the code consistent with field presence.
func reconcileMissingness(field *float64, code models.NanCode) models.NanCode {
	if field != nil {
		return models.NanNotMissing
	}
	if code == models.NanNotMissing {
		return models.NanOther
	}
	return code
}

func (db *DB) insertStagedRows(ctx context.Context, rows []models.IncomingRow) error {
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO signal_load
		(source, signal, geo_type, geo_value, time_type, time_value, issue,
		 value, stderr, sample_size, missing_value, missing_stderr, missing_sample_size, lag)
		VALUES `)
	args := make([]interface{}, 0, len(rows)*14)
	for i := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		row := &rows[i]
		lag, err := epitime.Diff(row.TimeType, row.Issue, row.TimeValue)
		if err != nil {
			// validateIncomingRow already proved the encoding.
			return fmt.Errorf("failed to derive lag: %w", err)
		}
		args = append(args,
			row.Source, row.Signal, row.GeoType, row.GeoValue,
			string(row.TimeType), row.TimeValue, row.Issue,
			row.Value, row.Stderr, row.SampleSize,
			int64(row.MissingValue), int64(row.MissingStderr), int64(row.MissingSampleSize),
			lag)
	}

	if _, err := db.conn.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert staged rows: %w", err)
	}
	return nil
}

// StagedRowCount returns the number of rows currently awaiting merge.
func (db *DB) StagedRowCount(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM signal_load`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count staged rows: %w", err)
	}
	return count, nil
}
