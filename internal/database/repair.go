// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/epivault/internal/config"
	"github.com/tomtom215/epivault/internal/logging"
	"github.com/tomtom215/epivault/internal/metrics"
)

// RepairResult summarizes one latest-projection rebuild.
type RepairResult struct {
	Partitions  int
	RowsDeleted int64
	RowsWritten int64
}

// RepairFilter narrows a repair run to part of the key space. The zero
// value repairs everything. Source and Signal restrict by dimension
// (Source alone covers all of a source's signals); MinTime and MaxTime
// bound time_value when positive. Filters always select whole
// (signal, geography, time) keys, never a subset of one key's issues,
// so a filtered run leaves everything outside the filter untouched.
type RepairFilter struct {
	Source  string
	Signal  string
	MinTime int64
	MaxTime int64
}

// clause renders the filter as AND-fragments appended to the partition
// predicate, with their bind arguments.
func (f RepairFilter) clause() (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}
	if f.Source != "" || f.Signal != "" {
		sb.WriteString(` AND signal_key_id IN (SELECT signal_key_id FROM signal_dim WHERE 1 = 1`)
		if f.Source != "" {
			sb.WriteString(` AND source = ?`)
			args = append(args, f.Source)
		}
		if f.Signal != "" {
			sb.WriteString(` AND signal = ?`)
			args = append(args, f.Signal)
		}
		sb.WriteString(`)`)
	}
	if f.MinTime > 0 {
		sb.WriteString(` AND time_value >= ?`)
		args = append(args, f.MinTime)
	}
	if f.MaxTime > 0 {
		sb.WriteString(` AND time_value <= ?`)
		args = append(args, f.MaxTime)
	}
	return sb.String(), args
}

// RepairLatest rebuilds the latest projection from history so that the
// two tables agree again after a crash or an external mutation. The key
// space is split into partitions by geography hash; each partition is
// rebuilt in its own transaction, so a mid-run failure leaves every
// completed partition consistent and the run can simply be repeated.
// The rebuild is idempotent: running it on a healthy store is a no-op
// apart from rewriting identical rows. filter scopes the run; the zero
// filter rebuilds the whole projection.
func (db *DB) RepairLatest(ctx context.Context, cfg config.RepairConfig, filter RepairFilter) (*RepairResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	parallel := cfg.MaxParallel
	if parallel <= 0 {
		parallel = 1
	}

	start := time.Now()
	mode := "partitioned"
	if partitions == 1 {
		mode = "full"
	}

	results := make([]RepairResult, partitions)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for p := 0; p < partitions; p++ {
		g.Go(func() error {
			return db.repairPartition(gctx, p, partitions, filter, cfg.RetryMaxElapsed, &results[p])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := &RepairResult{Partitions: partitions}
	for _, r := range results {
		total.RowsDeleted += r.RowsDeleted
		total.RowsWritten += r.RowsWritten
	}

	metrics.RepairDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	logger := logging.Ctx(ctx)
	logger.Info().
		Int("partitions", partitions).
		Int64("rows_deleted", total.RowsDeleted).
		Int64("rows_written", total.RowsWritten).
		Dur("elapsed", time.Since(start)).
		Msg("Rebuilt latest projection")

	return total, nil
}

// repairPartition rebuilds one hash partition, retrying transient
// failures with exponential backoff.
func (db *DB) repairPartition(ctx context.Context, partition, partitions int, filter RepairFilter, maxElapsed time.Duration, out *RepairResult) error {
	policy := backoff.NewExponentialBackOff()
	if maxElapsed > 0 {
		policy.MaxElapsedTime = maxElapsed
	}

	attempts := 0
	operation := func() error {
		attempts++
		return db.rebuildPartition(ctx, partition, partitions, filter, out)
	}
	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if attempts > 1 {
		metrics.RepairPartitionRetries.Inc()
	}
	if err != nil {
		return fmt.Errorf("repair partition %d/%d failed: %w", partition, partitions, err)
	}
	return nil
}

func (db *DB) rebuildPartition(ctx context.Context, partition, partitions int, filter RepairFilter, out *RepairResult) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin repair transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	where, filterArgs := filter.clause()
	args := append([]interface{}{int64(partitions), int64(partition)}, filterArgs...)

	deleted, err := tx.ExecContext(ctx,
		`DELETE FROM signal_latest WHERE hash(geo_key_id) % ? = ?`+where,
		args...)
	if err != nil {
		return fmt.Errorf("failed to clear latest partition: %w", err)
	}

	written, err := tx.ExecContext(ctx, `
		INSERT INTO signal_latest (`+observationColumns+`)
		SELECT `+observationColumns+`
		FROM signal_history
		WHERE hash(geo_key_id) % ? = ?`+where+`
		QUALIFY row_number() OVER (
			PARTITION BY signal_key_id, geo_key_id, time_type, time_value
			ORDER BY issue DESC) = 1`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to rebuild latest partition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit repair partition: %w", err)
	}

	out.RowsDeleted, _ = deleted.RowsAffected()
	out.RowsWritten, _ = written.RowsAffected()
	return nil
}
