// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

// Package models defines the row types shared between the storage engine
// and the transform layer.
package models

// TimeType identifies the resolution of a time series.
type TimeType string

// Supported time resolutions. Day and week values are calendar-encoded
// integers (YYYYMMDD and YYYYWW); transforms are defined for these two.
const (
	TimeTypeDay   TimeType = "day"
	TimeTypeWeek  TimeType = "week"
	TimeTypeMonth TimeType = "month"
	TimeTypeYear  TimeType = "year"
	TimeTypeHour  TimeType = "hour"
)

// Valid reports whether t is a recognized time type.
func (t TimeType) Valid() bool {
	switch t {
	case TimeTypeDay, TimeTypeWeek, TimeTypeMonth, TimeTypeYear, TimeTypeHour:
		return true
	}
	return false
}

// NanCode describes why a measurement field is missing.
type NanCode int64

// Missingness codes. Zero means the field is present; inserted gap rows
// and post-transform cleared fields carry NanNotApplicable; a present code
// of NanNotMissing on an absent field is corrected to NanOther at staging.
const (
	NanNotMissing      NanCode = 0
	NanNotApplicable   NanCode = 1
	NanRegionException NanCode = 2
	NanCensored        NanCode = 3
	NanDeleted         NanCode = 4
	NanOther           NanCode = 5
)

// SignalKey maps a (source, signal) pair to its surrogate dimension id.
type SignalKey struct {
	SignalKeyID int64
	Source      string
	Signal      string
}

// GeoKey maps a (geo_type, geo_value) pair to its surrogate dimension id.
type GeoKey struct {
	GeoKeyID int64
	GeoType  string
	GeoValue string
}

// IncomingRow is one observation as supplied by an ingestion producer,
// before dimension resolution. Validation tags are enforced at staging.
type IncomingRow struct {
	Source            string   `validate:"required"`
	Signal            string   `validate:"required"`
	GeoType           string   `validate:"required"`
	GeoValue          string   `validate:"required"`
	TimeType          TimeType `validate:"required,oneof=day week month year hour"`
	TimeValue         int64    `validate:"gt=0"`
	Issue             int64    `validate:"gt=0"`
	Value             *float64
	Stderr            *float64
	SampleSize        *float64
	MissingValue      NanCode
	MissingStderr     NanCode
	MissingSampleSize NanCode
}

// Observation is a fully keyed, staged observation: the atomic versioned
// fact stored in history and projected into latest. LoadID originates from
// the staging sequence and is propagated unchanged into both tables.
type Observation struct {
	LoadID            int64
	SignalKeyID       int64
	GeoKeyID          int64
	TimeType          TimeType
	TimeValue         int64
	Issue             int64
	Value             *float64
	Stderr            *float64
	SampleSize        *float64
	MissingValue      NanCode
	MissingStderr     NanCode
	MissingSampleSize NanCode
	Lag               int64
}

// SignalRow is an observation joined back to its dimension strings, as
// returned by queries and consumed/produced by the transform executors.
// Issue and Lag are pointers because derived rows may not have a
// meaningful revision (a gap-filled row contributes neither).
type SignalRow struct {
	LoadID            int64
	Source            string
	Signal            string
	GeoType           string
	GeoValue          string
	TimeType          TimeType
	TimeValue         int64
	Issue             *int64
	Lag               *int64
	Value             *float64
	Stderr            *float64
	SampleSize        *float64
	MissingValue      NanCode
	MissingStderr     NanCode
	MissingSampleSize NanCode
}

// GeoKeyOf returns the row's (geo_type, geo_value) pair. Executors use it
// to detect geography boundaries in their input sequence.
func (r *SignalRow) GeoKeyOf() GeoKey {
	return GeoKey{GeoType: r.GeoType, GeoValue: r.GeoValue}
}

// Float64 returns a pointer to v. Convenience for building rows.
func Float64(v float64) *float64 { return &v }

// Int64 returns a pointer to v. Convenience for building rows.
func Int64(v int64) *int64 { return &v }
