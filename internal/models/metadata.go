// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

package models

// MetadataSummary is one row of the periodically recomputed per-series
// summary: one entry per (source, signal, time_type, geo_type) present in
// the latest projection. StdevValue is the population standard deviation.
type MetadataSummary struct {
	Source       string   `json:"data_source"`
	Signal       string   `json:"signal"`
	TimeType     TimeType `json:"time_type"`
	GeoType      string   `json:"geo_type"`
	MinTime      int64    `json:"min_time"`
	MaxTime      int64    `json:"max_time"`
	NumLocations int64    `json:"num_locations"`
	MinValue     float64  `json:"min_value"`
	MaxValue     float64  `json:"max_value"`
	MeanValue    float64  `json:"mean_value"`
	StdevValue   float64  `json:"stdev_value"`
	MaxIssue     int64    `json:"max_issue"`
	MinLag       int64    `json:"min_lag"`
	MaxLag       int64    `json:"max_lag"`
}
