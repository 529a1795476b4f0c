// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

package epitime

import (
	"fmt"
	"sort"

	"github.com/tomtom215/epivault/internal/models"
)

// Range is a closed interval of calendar-encoded time values.
// A single time point is represented as Start == End.
type Range struct {
	Start int64
	End   int64
}

// Point returns a Range covering a single time value.
func Point(v int64) Range {
	return Range{Start: v, End: v}
}

// Contains reports whether v falls inside the range. Encodings are
// monotonic within a time type, so integer comparison is sufficient.
func (r Range) Contains(v int64) bool {
	return v >= r.Start && v <= r.End
}

// Merge sorts ranges and coalesces overlapping or calendar-adjacent ones.
// Adjacency is decided by the calendar, not the integer encoding: 20210228
// and 20210301 merge (consecutive days in a non-leap year) while 20200228
// and 20200301 do not (February 29th sits between them).
func Merge(tt models.TimeType, ranges []Range) ([]Range, error) {
	if len(ranges) == 0 {
		return nil, nil
	}

	for _, r := range ranges {
		if r.Start > r.End {
			return nil, fmt.Errorf("invalid range [%d, %d]", r.Start, r.End)
		}
	}

	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := make([]Range, 0, len(sorted))
	cur := sorted[0]
	for _, r := range sorted[1:] {
		next, err := Shift(tt, cur.End, 1)
		if err != nil {
			return nil, err
		}
		if r.Start <= next {
			if r.End > cur.End {
				cur.End = r.End
			}
			continue
		}
		merged = append(merged, cur)
		cur = r
	}
	merged = append(merged, cur)
	return merged, nil
}

// MinStart returns the earliest Start across ranges.
// Panics on an empty slice; callers handle the wildcard case first.
func MinStart(ranges []Range) int64 {
	min := ranges[0].Start
	for _, r := range ranges[1:] {
		if r.Start < min {
			min = r.Start
		}
	}
	return min
}
