// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

package database

import (
	"context"
	"testing"

	"github.com/tomtom215/epivault/internal/models"
)

func TestStageRowsAcceptsValidBatch(t *testing.T) {
	db := setupTestDB(t)

	result, err := db.StageRows(context.Background(), []models.IncomingRow{
		testRow("06001", 20210310, 20210312, 10),
		testRow("06002", 20210310, 20210312, 20),
	})
	checkNoError(t, err)

	if result.Staged != 2 {
		t.Errorf("Staged = %d, want 2", result.Staged)
	}
	if len(result.Rejected) != 0 {
		t.Errorf("Rejected = %v, want none", result.Rejected)
	}

	count, err := db.StagedRowCount(context.Background())
	checkNoError(t, err)
	if count != 2 {
		t.Errorf("StagedRowCount = %d, want 2", count)
	}
}

func TestStageRowsReportsInvalidRowsWithoutFailingBatch(t *testing.T) {
	db := setupTestDB(t)

	bad := testRow("06001", 20210310, 20210312, 10)
	bad.Source = ""
	badTime := testRow("06002", 20210310, 20210312, 10)
	badTime.TimeType = "fortnight"

	result, err := db.StageRows(context.Background(), []models.IncomingRow{
		bad,
		testRow("06003", 20210310, 20210312, 30),
		badTime,
	})
	checkNoError(t, err)

	if result.Staged != 1 {
		t.Errorf("Staged = %d, want 1", result.Staged)
	}
	if len(result.Rejected) != 2 {
		t.Fatalf("Rejected = %d rows, want 2", len(result.Rejected))
	}
	if result.Rejected[0].Index != 0 || result.Rejected[1].Index != 2 {
		t.Errorf("Rejected indexes = %d, %d, want 0, 2",
			result.Rejected[0].Index, result.Rejected[1].Index)
	}
}

func TestStageRowsCoercesEarlyIssueAndDerivesLag(t *testing.T) {
	db := setupTestDB(t)

	// Issue predates the observed day; it is coerced up and lag becomes 0.
	early := testRow("06001", 20210310, 20210301, 10)
	result, err := db.StageRows(context.Background(), []models.IncomingRow{early})
	checkNoError(t, err)
	if result.Staged != 1 {
		t.Fatalf("Staged = %d, want 1", result.Staged)
	}

	var issue, lag int64
	err = db.Conn().QueryRow(
		`SELECT issue, lag FROM signal_load WHERE geo_value = '06001'`).Scan(&issue, &lag)
	checkNoError(t, err)
	if issue != 20210310 {
		t.Errorf("issue = %d, want coerced 20210310", issue)
	}
	if lag != 0 {
		t.Errorf("lag = %d, want 0", lag)
	}
}

func TestStageRowsDerivesCalendarLag(t *testing.T) {
	db := setupTestDB(t)

	// 2021-02-28 observed, issued 2021-03-02: 2 calendar days of lag.
	row := testRow("06001", 20210228, 20210302, 10)
	_, err := db.StageRows(context.Background(), []models.IncomingRow{row})
	checkNoError(t, err)

	var lag int64
	err = db.Conn().QueryRow(`SELECT lag FROM signal_load`).Scan(&lag)
	checkNoError(t, err)
	if lag != 2 {
		t.Errorf("lag = %d, want 2", lag)
	}
}

func TestStageRowsReconcilesMissingness(t *testing.T) {
	db := setupTestDB(t)

	// Value present but claiming NanOther; stderr absent claiming
	// NanNotMissing; sample size absent with an honest code.
	row := testRow("06001", 20210310, 20210312, 10)
	row.MissingValue = models.NanOther
	row.MissingStderr = models.NanNotMissing
	row.MissingSampleSize = models.NanCensored

	_, err := db.StageRows(context.Background(), []models.IncomingRow{row})
	checkNoError(t, err)

	var mv, ms, mss int64
	err = db.Conn().QueryRow(
		`SELECT missing_value, missing_stderr, missing_sample_size FROM signal_load`).
		Scan(&mv, &ms, &mss)
	checkNoError(t, err)

	if models.NanCode(mv) != models.NanNotMissing {
		t.Errorf("missing_value = %d, want NanNotMissing", mv)
	}
	if models.NanCode(ms) != models.NanOther {
		t.Errorf("missing_stderr = %d, want NanOther", ms)
	}
	if models.NanCode(mss) != models.NanCensored {
		t.Errorf("missing_sample_size = %d, want NanCensored", mss)
	}
}

func TestStageRowsRejectsUnknownMissingnessCode(t *testing.T) {
	db := setupTestDB(t)

	row := testRow("06001", 20210310, 20210312, 10)
	row.MissingStderr = 42

	result, err := db.StageRows(context.Background(), []models.IncomingRow{row})
	checkNoError(t, err)
	if len(result.Rejected) != 1 {
		t.Fatalf("Rejected = %d rows, want 1", len(result.Rejected))
	}
}

func TestStageRowsAssignsMonotonicLoadIDs(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.StageRows(context.Background(), []models.IncomingRow{
		testRow("06001", 20210310, 20210312, 10),
	})
	checkNoError(t, err)
	_, err = db.StageRows(context.Background(), []models.IncomingRow{
		testRow("06002", 20210310, 20210312, 20),
	})
	checkNoError(t, err)

	var first, second int64
	err = db.Conn().QueryRow(
		`SELECT load_id FROM signal_load WHERE geo_value = '06001'`).Scan(&first)
	checkNoError(t, err)
	err = db.Conn().QueryRow(
		`SELECT load_id FROM signal_load WHERE geo_value = '06002'`).Scan(&second)
	checkNoError(t, err)

	if second <= first {
		t.Errorf("load ids not monotonic: first=%d second=%d", first, second)
	}
}
