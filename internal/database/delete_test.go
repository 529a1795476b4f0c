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

func deleteKeyFor(geoValue string, timeValue, issue int64) DeleteKey {
	return DeleteKey{
		Source: "src", Signal: "cases",
		GeoType: "county", GeoValue: geoValue,
		TimeType: models.TimeTypeDay, TimeValue: timeValue, Issue: issue,
	}
}

func TestDeleteBatchEmptyKeys(t *testing.T) {
	db := setupTestDB(t)

	result, err := db.DeleteBatch(context.Background(), nil)
	checkNoError(t, err)
	if result.RowsDeleted != 0 {
		t.Errorf("RowsDeleted = %d, want 0", result.RowsDeleted)
	}
}

func TestDeleteBatchPromotesPreviousIssue(t *testing.T) {
	db := setupTestDB(t)

	stageAndMerge(t, db, testRow("06001", 20210310, 20210312, 10))
	stageAndMerge(t, db, testRow("06001", 20210310, 20210315, 12))

	// Deleting the current maximum issue promotes the prior one.
	result, err := db.DeleteBatch(context.Background(), []DeleteKey{
		deleteKeyFor("06001", 20210310, 20210315),
	})
	checkNoError(t, err)
	if result.RowsDeleted != 1 {
		t.Fatalf("RowsDeleted = %d, want 1", result.RowsDeleted)
	}

	rows := fetchLatestRows(t, db)
	if len(rows) != 1 {
		t.Fatalf("latest rows = %d, want 1", len(rows))
	}
	if *rows[0].Issue != 20210312 || *rows[0].Value != 10 {
		t.Errorf("latest after delete = issue %v value %v, want 20210312 / 10",
			*rows[0].Issue, *rows[0].Value)
	}
}

func TestDeleteBatchRemovesLatestWhenNoHistoryRemains(t *testing.T) {
	db := setupTestDB(t)

	stageAndMerge(t, db, testRow("06001", 20210310, 20210312, 10))

	result, err := db.DeleteBatch(context.Background(), []DeleteKey{
		deleteKeyFor("06001", 20210310, 20210312),
	})
	checkNoError(t, err)
	if result.RowsDeleted != 1 {
		t.Fatalf("RowsDeleted = %d, want 1", result.RowsDeleted)
	}

	if rows := fetchLatestRows(t, db); len(rows) != 0 {
		t.Errorf("latest rows = %d after deleting only issue, want 0", len(rows))
	}

	var historyCount int64
	err = db.Conn().QueryRow(`SELECT count(*) FROM signal_history`).Scan(&historyCount)
	checkNoError(t, err)
	if historyCount != 0 {
		t.Errorf("history rows = %d, want 0", historyCount)
	}
}

func TestDeleteBatchNonLatestIssueLeavesProjectionUntouched(t *testing.T) {
	db := setupTestDB(t)

	stageAndMerge(t, db, testRow("06001", 20210310, 20210312, 10))
	stageAndMerge(t, db, testRow("06001", 20210310, 20210315, 12))

	_, err := db.DeleteBatch(context.Background(), []DeleteKey{
		deleteKeyFor("06001", 20210310, 20210312),
	})
	checkNoError(t, err)

	rows := fetchLatestRows(t, db)
	if len(rows) != 1 || *rows[0].Issue != 20210315 || *rows[0].Value != 12 {
		t.Fatalf("latest changed by deleting superseded issue: %+v", rows)
	}
}

func TestDeleteBatchIgnoresUnknownKeys(t *testing.T) {
	db := setupTestDB(t)

	stageAndMerge(t, db, testRow("06001", 20210310, 20210312, 10))

	result, err := db.DeleteBatch(context.Background(), []DeleteKey{
		deleteKeyFor("06001", 20210310, 20990101), // no such issue
		deleteKeyFor("99999", 20210310, 20210312), // no such geography
	})
	checkNoError(t, err)
	if result.RowsDeleted != 0 {
		t.Errorf("RowsDeleted = %d, want 0 for unknown keys", result.RowsDeleted)
	}

	if rows := fetchLatestRows(t, db); len(rows) != 1 {
		t.Errorf("latest rows = %d, want untouched single row", len(rows))
	}
}

func TestDeleteBatchMixedPrefixes(t *testing.T) {
	db := setupTestDB(t)

	stageAndMerge(t, db,
		testRow("06001", 20210310, 20210312, 10),
		testRow("06002", 20210310, 20210312, 20),
	)
	stageAndMerge(t, db,
		testRow("06001", 20210310, 20210315, 12),
		testRow("06002", 20210310, 20210315, 22),
	)

	// Remove the newest issue of one geography and all issues of the other.
	result, err := db.DeleteBatch(context.Background(), []DeleteKey{
		deleteKeyFor("06001", 20210310, 20210315),
		deleteKeyFor("06002", 20210310, 20210312),
		deleteKeyFor("06002", 20210310, 20210315),
	})
	checkNoError(t, err)
	if result.RowsDeleted != 3 {
		t.Fatalf("RowsDeleted = %d, want 3", result.RowsDeleted)
	}

	rows := fetchLatestRows(t, db)
	if len(rows) != 1 {
		t.Fatalf("latest rows = %d, want only 06001 remaining", len(rows))
	}
	if rows[0].GeoValue != "06001" || *rows[0].Value != 10 {
		t.Errorf("latest = %+v, want 06001 demoted to value 10", rows[0])
	}
}
