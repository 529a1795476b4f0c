// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

package transform

import (
	"iter"

	"github.com/tomtom215/epivault/internal/epitime"
	"github.com/tomtom215/epivault/internal/logging"
	"github.com/tomtom215/epivault/internal/models"
)

// SmootherOptions configures the sliding-window smoother.
type SmootherOptions struct {
	// Window is the window length in time units.
	Window int

	// Weights is an optional kernel, oldest row first, applied instead of
	// the uniform boxcar. Its length must equal Window; it is normalized
	// by its sum before use.
	Weights []float64

	// MinWindow is the fewest rows needed to emit an output. The default
	// (0 or Window) suppresses output until the window is full; 1 enables
	// a growing window so the series starts at the first base row.
	MinWindow int
}

// Execute composes the executor pipeline for one derivation kind over an
// ordered base series. The input must be sorted by geography then time
// value, as FetchLatest and FetchAsOf return it. fill is the gap-fill
// value passed to FillGaps; nil inserts holes.
func Execute(kind Kind, tt models.TimeType, fill *float64, opts SmootherOptions, src iter.Seq[models.SignalRow]) iter.Seq[models.SignalRow] {
	switch kind {
	case KindDiff:
		return Diff(FillGaps(tt, fill, src))
	case KindSmooth:
		return Smooth(opts, FillGaps(tt, fill, src))
	case KindDiffSmooth:
		return Smooth(opts, Diff(FillGaps(tt, fill, src)))
	}
	return src
}

// FillGaps reindexes each geography's series onto every calendar unit
// between its first and last observed time value. With a nil fill,
// inserted rows carry no measurement (nil value, NanNotApplicable); the
// downstream executors treat them as holes. A non-nil fill makes the
// inserted rows real observations at that value, so differences and
// means across gaps compute instead of holing. Either way inserted rows
// have no revision identity (nil issue and lag). Contiguity is what lets
// Diff and Smooth work by row position alone.
func FillGaps(tt models.TimeType, fill *float64, src iter.Seq[models.SignalRow]) iter.Seq[models.SignalRow] {
	return func(yield func(models.SignalRow) bool) {
		var prev models.SignalRow
		havePrev := false
		for row := range src {
			if havePrev && row.GeoKeyOf() == prev.GeoKeyOf() {
				at := prev.TimeValue
				for {
					next, err := epitime.Shift(tt, at, 1)
					if err != nil {
						logging.Warn().Err(err).Int64("time_value", at).Msg("Stopping gap fill on invalid time value")
						break
					}
					if next >= row.TimeValue {
						break
					}
					if !yield(gapRow(row, next, fill)) {
						return
					}
					at = next
				}
			}
			if !yield(row) {
				return
			}
			prev = row
			havePrev = true
		}
	}
}

// gapRow builds the filler row for one missing time value, copying the
// series identity from a neighboring real row.
func gapRow(like models.SignalRow, timeValue int64, fill *float64) models.SignalRow {
	row := models.SignalRow{
		Source:            like.Source,
		Signal:            like.Signal,
		GeoType:           like.GeoType,
		GeoValue:          like.GeoValue,
		TimeType:          like.TimeType,
		TimeValue:         timeValue,
		MissingValue:      models.NanNotApplicable,
		MissingStderr:     models.NanNotApplicable,
		MissingSampleSize: models.NanNotApplicable,
	}
	if fill != nil {
		v := *fill
		row.Value = &v
		row.MissingValue = models.NanNotMissing
	}
	return row
}

// Diff emits the difference between each row's value and its
// predecessor's within a geography. The first row of each geography has
// no predecessor and produces no output. A hole on either side of the
// subtraction yields a holed output row. Stderr and sample size do not
// difference meaningfully and are cleared; issue and lag carry the
// maximum over the two inputs, since the output is only as current as
// its stalest operand.
func Diff(src iter.Seq[models.SignalRow]) iter.Seq[models.SignalRow] {
	return func(yield func(models.SignalRow) bool) {
		var prev models.SignalRow
		havePrev := false
		for row := range src {
			if !havePrev || row.GeoKeyOf() != prev.GeoKeyOf() {
				prev = row
				havePrev = true
				continue
			}

			out := row
			if prev.Value != nil && row.Value != nil {
				out.Value = models.Float64(*row.Value - *prev.Value)
				out.MissingValue = models.NanNotMissing
			} else {
				out.Value = nil
				out.MissingValue = models.NanNotApplicable
			}
			out.Stderr = nil
			out.SampleSize = nil
			out.MissingStderr = models.NanNotApplicable
			out.MissingSampleSize = models.NanNotApplicable
			out.Issue = maxInt64Ptr(prev.Issue, row.Issue)
			out.Lag = maxInt64Ptr(prev.Lag, row.Lag)

			if !yield(out) {
				return
			}
			prev = row
		}
	}
}

// Smooth emits a sliding-window weighted mean per geography. Output is
// suppressed until MinWindow rows have been seen; with the default full
// window, a series of n rows yields n−window+1 outputs. Any hole inside
// the window holes the output. Each output row takes the identity of the
// window's newest row; issue and lag are the window maxima.
func Smooth(opts SmootherOptions, src iter.Seq[models.SignalRow]) iter.Seq[models.SignalRow] {
	window := opts.Window
	if window < 1 {
		window = 1
	}
	minWindow := opts.MinWindow
	if minWindow < 1 || minWindow > window {
		minWindow = window
	}

	return func(yield func(models.SignalRow) bool) {
		var buf []models.SignalRow
		var geo models.GeoKey
		for row := range src {
			if len(buf) == 0 || row.GeoKeyOf() != geo {
				buf = buf[:0]
				geo = row.GeoKeyOf()
			}
			buf = append(buf, row)
			if len(buf) > window {
				buf = buf[1:]
			}
			if len(buf) < minWindow {
				continue
			}
			if !yield(smoothWindow(buf, opts.Weights)) {
				return
			}
		}
	}
}

// smoothWindow reduces one window to its output row. weights, when
// present, are sized for the full window; a growing window uses its
// trailing portion. Normalization by the used weights' sum keeps partial
// kernels comparable to full ones.
func smoothWindow(buf []models.SignalRow, weights []float64) models.SignalRow {
	out := buf[len(buf)-1]
	out.Stderr = nil
	out.SampleSize = nil
	out.MissingStderr = models.NanNotApplicable
	out.MissingSampleSize = models.NanNotApplicable

	var sum, weightSum float64
	holed := false
	for i, row := range buf {
		if row.Value == nil {
			holed = true
			break
		}
		w := 1.0
		if len(weights) > 0 {
			w = weights[len(weights)-len(buf)+i]
		}
		sum += w * *row.Value
		weightSum += w
	}

	if holed || weightSum == 0 {
		out.Value = nil
		out.MissingValue = models.NanNotApplicable
	} else {
		out.Value = models.Float64(sum / weightSum)
		out.MissingValue = models.NanNotMissing
	}

	out.Issue = nil
	out.Lag = nil
	for _, row := range buf {
		out.Issue = maxInt64Ptr(out.Issue, row.Issue)
		out.Lag = maxInt64Ptr(out.Lag, row.Lag)
	}
	return out
}

// Rename relabels every row with the requested derived signal name.
func Rename(signal string, src iter.Seq[models.SignalRow]) iter.Seq[models.SignalRow] {
	return func(yield func(models.SignalRow) bool) {
		for row := range src {
			row.Signal = signal
			if !yield(row) {
				return
			}
		}
	}
}

// TrimLeft drops the warmup rows a padded fetch added: only rows inside
// one of the originally requested ranges pass. A nil slice is the
// wildcard request and passes everything.
func TrimLeft(ranges []epitime.Range, src iter.Seq[models.SignalRow]) iter.Seq[models.SignalRow] {
	if ranges == nil {
		return src
	}
	return func(yield func(models.SignalRow) bool) {
		for row := range src {
			requested := false
			for _, r := range ranges {
				if r.Contains(row.TimeValue) {
					requested = true
					break
				}
			}
			if !requested {
				continue
			}
			if !yield(row) {
				return
			}
		}
	}
}

// Collect materializes a row sequence. Mostly a test convenience.
func Collect(src iter.Seq[models.SignalRow]) []models.SignalRow {
	var rows []models.SignalRow
	for row := range src {
		rows = append(rows, row)
	}
	return rows
}

// Rows adapts a slice to the sequence interface the executors consume.
func Rows(rows []models.SignalRow) iter.Seq[models.SignalRow] {
	return func(yield func(models.SignalRow) bool) {
		for _, row := range rows {
			if !yield(row) {
				return
			}
		}
	}
}

func maxInt64Ptr(a, b *int64) *int64 {
	if a == nil {
		return b
	}
	if b == nil || *a > *b {
		return a
	}
	return b
}
