// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

package transform

import (
	"testing"

	"github.com/tomtom215/epivault/internal/epitime"
	"github.com/tomtom215/epivault/internal/models"
)

func TestRegistryResolveRegistered(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register("cases_7dav", "cases", KindSmooth); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := r.Resolve("cases_7dav")
	if got.Base != "cases" || got.Kind != KindSmooth {
		t.Errorf("Resolve = %+v, want base cases, kind smooth", got)
	}
}

func TestRegistryResolveUnknownFallsBackToIdentity(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	got := r.Resolve("cases")
	if got.Base != "cases" || got.Kind != KindIdentity {
		t.Errorf("Resolve = %+v, want identity self-read", got)
	}
}

func TestRegistryRegisterRejectsBadInput(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register("x", "y", "cubic_spline"); err == nil {
		t.Error("Expected error for unknown kind")
	}
	if err := r.Register("", "y", KindDiff); err == nil {
		t.Error("Expected error for empty signal name")
	}
}

func TestPlanGroupsByBaseSignal(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	checkRegister(t, r, "cases_incidence", "cases_cumulative", KindDiff)
	checkRegister(t, r, "cases_7dav", "cases_cumulative", KindDiffSmooth)
	checkRegister(t, r, "deaths_7dav", "deaths", KindSmooth)

	plan := r.Plan([]string{"cases_incidence", "cases_7dav", "deaths_7dav", "hosp"})
	if len(plan) != 3 {
		t.Fatalf("plan has %d base groups, want 3", len(plan))
	}
	if len(plan["cases_cumulative"]) != 2 {
		t.Errorf("cases_cumulative group = %d transforms, want 2", len(plan["cases_cumulative"]))
	}
	if len(plan["hosp"]) != 1 || plan["hosp"][0].Kind != KindIdentity {
		t.Errorf("hosp group = %+v, want identity", plan["hosp"])
	}
}

func checkRegister(t *testing.T, r *Registry, signal, base string, kind Kind) {
	t.Helper()
	if err := r.Register(signal, base, kind); err != nil {
		t.Fatalf("Register(%s) failed: %v", signal, err)
	}
}

func TestPadLength(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind   Kind
		window int
		want   int
	}{
		{KindIdentity, 7, 0},
		{KindDiff, 7, 1},
		{KindSmooth, 7, 6},
		{KindDiffSmooth, 7, 7},
		{KindSmooth, 1, 0},
	}
	for _, tc := range cases {
		if got := PadLength(tc.kind, tc.window); got != tc.want {
			t.Errorf("PadLength(%s, %d) = %d, want %d", tc.kind, tc.window, got, tc.want)
		}
	}
}

func TestExtendRangesPadsAcrossCalendarBoundaries(t *testing.T) {
	t.Parallel()

	// Six days before 2021-01-01 is 2020-12-26, not the integer 20210095.
	got, err := ExtendRanges(models.TimeTypeDay,
		[]epitime.Range{{Start: 20210101, End: 20210101}}, 6)
	if err != nil {
		t.Fatalf("ExtendRanges failed: %v", err)
	}
	if len(got) != 1 || got[0].Start != 20201226 || got[0].End != 20210101 {
		t.Errorf("extended = %+v, want [20201226, 20210101]", got)
	}
}

func TestExtendRangesCoalescesAfterPadding(t *testing.T) {
	t.Parallel()

	// Padding makes the two requests overlap; they must come back merged.
	got, err := ExtendRanges(models.TimeTypeDay, []epitime.Range{
		{Start: 20210301, End: 20210305},
		{Start: 20210308, End: 20210310},
	}, 3)
	if err != nil {
		t.Fatalf("ExtendRanges failed: %v", err)
	}
	if len(got) != 1 || got[0].Start != 20210226 || got[0].End != 20210310 {
		t.Errorf("extended = %+v, want single [20210226, 20210310]", got)
	}
}

func TestExtendRangesWildcardUnpadded(t *testing.T) {
	t.Parallel()

	got, err := ExtendRanges(models.TimeTypeDay, nil, 7)
	if err != nil {
		t.Fatalf("ExtendRanges failed: %v", err)
	}
	if got != nil {
		t.Errorf("wildcard extended to %+v, want nil", got)
	}
}

func TestExtendRangesZeroPadUnchanged(t *testing.T) {
	t.Parallel()

	ranges := []epitime.Range{{Start: 20210301, End: 20210305}}
	got, err := ExtendRanges(models.TimeTypeDay, ranges, 0)
	if err != nil {
		t.Fatalf("ExtendRanges failed: %v", err)
	}
	if len(got) != 1 || got[0] != ranges[0] {
		t.Errorf("extended = %+v, want unchanged", got)
	}
}

func TestExtendRangesWeeksAcrossYearBoundary(t *testing.T) {
	t.Parallel()

	// 2020 has 53 epiweeks; one week before 202101 is 202053.
	got, err := ExtendRanges(models.TimeTypeWeek,
		[]epitime.Range{{Start: 202101, End: 202104}}, 1)
	if err != nil {
		t.Fatalf("ExtendRanges failed: %v", err)
	}
	if len(got) != 1 || got[0].Start != 202053 {
		t.Errorf("extended = %+v, want start 202053", got)
	}
}
