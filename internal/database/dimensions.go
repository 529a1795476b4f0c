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
)

// SourceSignal identifies a signal dimension entry by its string pair.
type SourceSignal struct {
	Source string
	Signal string
}

// GeoTypeValue identifies a geography dimension entry by its string pair.
type GeoTypeValue struct {
	GeoType  string
	GeoValue string
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so dimension resolution
// can run standalone or inside a merge transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// ResolveSignalKeys maps (source, signal) pairs to surrogate keys,
// allocating new ids for pairs not seen before. The insert ignores
// conflicts and the ids are re-read afterwards, so concurrent callers
// staging overlapping new pairs each observe the same winning id.
// Dimension rows are never updated or deleted.
func (db *DB) ResolveSignalKeys(ctx context.Context, pairs []SourceSignal) (map[SourceSignal]int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	return resolveSignalKeys(ctx, db.conn, pairs)
}

// ResolveGeoKeys is the geography counterpart of ResolveSignalKeys.
func (db *DB) ResolveGeoKeys(ctx context.Context, pairs []GeoTypeValue) (map[GeoTypeValue]int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	return resolveGeoKeys(ctx, db.conn, pairs)
}

func resolveSignalKeys(ctx context.Context, q dbtx, pairs []SourceSignal) (map[SourceSignal]int64, error) {
	if len(pairs) == 0 {
		return map[SourceSignal]int64{}, nil
	}

	placeholders, args := pairArgs(len(pairs), func(i int) (string, string) {
		return pairs[i].Source, pairs[i].Signal
	})

	insert := fmt.Sprintf(
		`INSERT INTO signal_dim (source, signal) VALUES %s ON CONFLICT (source, signal) DO NOTHING`,
		placeholders)
	if _, err := q.ExecContext(ctx, insert, args...); err != nil {
		return nil, fmt.Errorf("failed to insert signal dimensions: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT d.source, d.signal, d.signal_key_id
		 FROM signal_dim d
		 JOIN (VALUES %s) AS v(source, signal)
		   ON d.source = v.source AND d.signal = v.signal`,
		placeholders)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read signal dimensions: %w", err)
	}
	defer rows.Close()

	resolved := make(map[SourceSignal]int64, len(pairs))
	for rows.Next() {
		var key SourceSignal
		var id int64
		if err := rows.Scan(&key.Source, &key.Signal, &id); err != nil {
			return nil, fmt.Errorf("failed to scan signal dimension: %w", err)
		}
		resolved[key] = id
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(resolved) != len(dedupSignalPairs(pairs)) {
		return nil, fmt.Errorf("resolved %d of %d signal dimension pairs", len(resolved), len(dedupSignalPairs(pairs)))
	}
	return resolved, nil
}

func resolveGeoKeys(ctx context.Context, q dbtx, pairs []GeoTypeValue) (map[GeoTypeValue]int64, error) {
	if len(pairs) == 0 {
		return map[GeoTypeValue]int64{}, nil
	}

	placeholders, args := pairArgs(len(pairs), func(i int) (string, string) {
		return pairs[i].GeoType, pairs[i].GeoValue
	})

	insert := fmt.Sprintf(
		`INSERT INTO geo_dim (geo_type, geo_value) VALUES %s ON CONFLICT (geo_type, geo_value) DO NOTHING`,
		placeholders)
	if _, err := q.ExecContext(ctx, insert, args...); err != nil {
		return nil, fmt.Errorf("failed to insert geo dimensions: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT d.geo_type, d.geo_value, d.geo_key_id
		 FROM geo_dim d
		 JOIN (VALUES %s) AS v(geo_type, geo_value)
		   ON d.geo_type = v.geo_type AND d.geo_value = v.geo_value`,
		placeholders)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read geo dimensions: %w", err)
	}
	defer rows.Close()

	resolved := make(map[GeoTypeValue]int64, len(pairs))
	for rows.Next() {
		var key GeoTypeValue
		var id int64
		if err := rows.Scan(&key.GeoType, &key.GeoValue, &id); err != nil {
			return nil, fmt.Errorf("failed to scan geo dimension: %w", err)
		}
		resolved[key] = id
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(resolved) != len(dedupGeoPairs(pairs)) {
		return nil, fmt.Errorf("resolved %d of %d geo dimension pairs", len(resolved), len(dedupGeoPairs(pairs)))
	}
	return resolved, nil
}

// resolveStagedDimensions allocates dimension ids for every distinct pair
// present in the staging table. Set-based variant used inside the merge
// transaction; same insert-if-absent semantics as the exported resolvers.
func resolveStagedDimensions(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO signal_dim (source, signal)
		 SELECT DISTINCT source, signal FROM signal_load
		 ON CONFLICT (source, signal) DO NOTHING`); err != nil {
		return fmt.Errorf("failed to resolve staged signal dimensions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO geo_dim (geo_type, geo_value)
		 SELECT DISTINCT geo_type, geo_value FROM signal_load
		 ON CONFLICT (geo_type, geo_value) DO NOTHING`); err != nil {
		return fmt.Errorf("failed to resolve staged geo dimensions: %w", err)
	}
	return nil
}

// pairArgs builds a "(?, ?), (?, ?), ..." placeholder list and its args.
func pairArgs(n int, pair func(i int) (string, string)) (string, []interface{}) {
	var sb strings.Builder
	args := make([]interface{}, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?)")
		a, b := pair(i)
		args = append(args, a, b)
	}
	return sb.String(), args
}

// dedupSignalPairs returns the distinct pairs, preserving nothing about order.
func dedupSignalPairs(pairs []SourceSignal) map[SourceSignal]struct{} {
	set := make(map[SourceSignal]struct{}, len(pairs))
	for _, p := range pairs {
		set[p] = struct{}{}
	}
	return set
}

func dedupGeoPairs(pairs []GeoTypeValue) map[GeoTypeValue]struct{} {
	set := make(map[GeoTypeValue]struct{}, len(pairs))
	for _, p := range pairs {
		set[p] = struct{}{}
	}
	return set
}
