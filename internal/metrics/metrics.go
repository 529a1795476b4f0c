// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

// Package metrics provides Prometheus metrics collection for observability.
//
// Metrics are exposed at the /metrics endpoint of the ops listener in
// Prometheus text format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Staging / merge metrics
	RowsStaged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "epivault_rows_staged_total",
			Help: "Rows accepted into the staging table",
		},
	)

	RowsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "epivault_rows_rejected_total",
			Help: "Incoming rows rejected by staging validation",
		},
	)

	RowsMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "epivault_rows_merged_total",
			Help: "Rows promoted from staging into the history table",
		},
	)

	BatchConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "epivault_batch_conflicts_total",
			Help: "Duplicate (key, issue) pairs reduced within a single merge batch",
		},
	)

	MergeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "epivault_merge_duration_seconds",
			Help:    "Duration of staging-to-history/latest merge batches",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Deletion / repair metrics
	RowsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "epivault_rows_deleted_total",
			Help: "History rows removed by batch deletion",
		},
	)

	RepairDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "epivault_repair_duration_seconds",
			Help:    "Duration of latest-projection repair runs",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"mode"}, // full, partitioned
	)

	RepairPartitionRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "epivault_repair_partition_retries_total",
			Help: "Repair partitions that needed at least one retry",
		},
	)

	// Query metrics
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "epivault_query_duration_seconds",
			Help:    "Duration of series reads",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"}, // latest, as_of
	)

	// Metadata cache metrics
	MetadataCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "epivault_metadata_cache_hits_total",
			Help: "Metadata summary reads served from the cache blob",
		},
	)

	MetadataCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epivault_metadata_cache_misses_total",
			Help: "Metadata summary reads that missed the cache",
		},
		[]string{"reason"}, // empty, stale
	)

	MetadataRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "epivault_metadata_refresh_duration_seconds",
			Help:    "Duration of metadata summary recomputation",
			Buckets: []float64{.05, .1, .5, 1, 5, 10, 30, 60},
		},
	)
)

// ObserveMerge records a completed merge batch.
func ObserveMerge(rows int, elapsed time.Duration) {
	RowsMerged.Add(float64(rows))
	MergeDuration.Observe(elapsed.Seconds())
}

// ObserveQuery records a completed series read.
func ObserveQuery(kind string, elapsed time.Duration) {
	QueryDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
