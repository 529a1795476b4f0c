// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/epivault/internal/config"
	"github.com/tomtom215/epivault/internal/models"
)

// testDBSemaphore limits concurrent database creation to prevent resource
// exhaustion in CI. When many tests run in parallel, too many concurrent
// DuckDB CGO calls can cause hangs. Setting to 1 fully serializes database
// access so only one test holds an active connection at a time.
var testDBSemaphore = make(chan struct{}, 1)

// testDBMutex serializes database creation for short periods to reduce contention.
var testDBMutex sync.Mutex

// setupTestDB creates a new in-memory test database with timeout protection.
//
// The semaphore is held for the ENTIRE test lifecycle, released via
// t.Cleanup, not just during DB creation: even serialized creation does
// not prevent hangs when two tests issue concurrent DuckDB operations
// under CI resource pressure.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "1GB",
	}

	type result struct {
		db  *DB
		err error
	}

	resultCh := make(chan result, 1)
	go func() {
		testDBMutex.Lock()
		db, err := New(cfg)
		testDBMutex.Unlock()
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Failed to create test database: %v", res.err)
		}
		t.Cleanup(func() {
			if err := res.db.Close(); err != nil {
				t.Logf("Failed to close test database: %v", err)
			}
		})
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatalf("Timeout: database creation took longer than 120s (DuckDB may be under resource pressure)")
		return nil
	}
}

// checkNoError fails the test on an unexpected error.
func checkNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

// testRow returns a valid incoming observation; override fields as needed.
func testRow(geoValue string, timeValue, issue int64, value float64) models.IncomingRow {
	return models.IncomingRow{
		Source:    "src",
		Signal:    "cases",
		GeoType:   "county",
		GeoValue:  geoValue,
		TimeType:  models.TimeTypeDay,
		TimeValue: timeValue,
		Issue:     issue,
		Value:     models.Float64(value),
	}
}

// stageAndMerge stages the rows and promotes them, failing on rejection.
func stageAndMerge(t *testing.T, db *DB, rows ...models.IncomingRow) *MergeResult {
	t.Helper()

	staged, err := db.StageRows(context.Background(), rows)
	checkNoError(t, err)
	if len(staged.Rejected) > 0 {
		t.Fatalf("Unexpected staging rejections: %v", staged.Rejected)
	}

	merged, err := db.RunMerge(context.Background())
	checkNoError(t, err)
	return merged
}

// fetchLatestRows reads the latest projection for the default test signal.
func fetchLatestRows(t *testing.T, db *DB) []models.SignalRow {
	t.Helper()

	rows, err := db.FetchLatest(context.Background(), SeriesQuery{
		Source:   "src",
		Signal:   "cases",
		TimeType: models.TimeTypeDay,
		GeoType:  "county",
	})
	checkNoError(t, err)
	return rows
}

func TestNewInitializesSchema(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{
		"signal_dim", "geo_dim", "signal_load",
		"signal_history", "signal_latest", "metadata_cache", "schema_migrations",
	} {
		var count int64
		err := db.Conn().QueryRow("SELECT count(*) FROM " + table).Scan(&count)
		if err != nil {
			t.Errorf("Table %s not queryable: %v", table, err)
		}
	}
}

func TestPing(t *testing.T) {
	db := setupTestDB(t)
	checkNoError(t, db.Ping(context.Background()))
}

func TestCheckpoint(t *testing.T) {
	db := setupTestDB(t)
	checkNoError(t, db.Checkpoint(context.Background()))
}

func TestEnsureContextAddsDeadline(t *testing.T) {
	db := setupTestDB(t)

	ctx, cancel := db.ensureContext(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Error("Expected a deadline on a context without one")
	}

	parent, parentCancel := context.WithTimeout(context.Background(), time.Minute)
	defer parentCancel()
	ctx2, cancel2 := db.ensureContext(parent)
	defer cancel2()
	if ctx2 != parent {
		t.Error("Expected context with deadline to pass through unchanged")
	}
}
