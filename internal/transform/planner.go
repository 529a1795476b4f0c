// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

// Package transform computes derived signals lazily at read time.
//
// Derived signals are never stored: a request for one is planned against
// its registered base signal, the base series is fetched over a
// left-extended time window, and the executors stream the derivation
// over the rows. The planner decides what to fetch; the executors in
// executor.go decide what each output row contains.
package transform

import (
	"fmt"

	"github.com/tomtom215/epivault/internal/epitime"
	"github.com/tomtom215/epivault/internal/models"
)

// Kind is the derivation applied to a base signal.
type Kind string

// Supported derivations. Identity passes base rows through untouched and
// is the implicit kind of any unregistered signal name.
const (
	KindIdentity   Kind = "identity"
	KindDiff       Kind = "diff"
	KindSmooth     Kind = "smooth"
	KindDiffSmooth Kind = "diff_smooth"
)

// Transform maps one requested signal name to its derivation.
type Transform struct {
	Signal string // requested (derived) signal name
	Base   string // stored signal the derivation reads
	Kind   Kind
}

// Registry holds the known derived-signal definitions for one source.
type Registry struct {
	bySignal map[string]Transform
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{bySignal: make(map[string]Transform)}
}

// Register adds a derived-signal definition. Registering a signal name
// twice replaces the earlier definition.
func (r *Registry) Register(signal, base string, kind Kind) error {
	switch kind {
	case KindIdentity, KindDiff, KindSmooth, KindDiffSmooth:
	default:
		return fmt.Errorf("unknown transform kind %q", kind)
	}
	if signal == "" || base == "" {
		return fmt.Errorf("transform signal and base must not be empty")
	}
	r.bySignal[signal] = Transform{Signal: signal, Base: base, Kind: kind}
	return nil
}

// Resolve returns the derivation for a requested signal name. Unknown
// names resolve to an identity read of the name itself, so plain stored
// signals need no registration.
func (r *Registry) Resolve(signal string) Transform {
	if t, ok := r.bySignal[signal]; ok {
		return t
	}
	return Transform{Signal: signal, Base: signal, Kind: KindIdentity}
}

// Plan resolves a set of requested signal names and groups them by base
// signal, so each base series is fetched once however many derivations
// read it.
func (r *Registry) Plan(signals []string) map[string][]Transform {
	plan := make(map[string][]Transform)
	for _, s := range signals {
		t := r.Resolve(s)
		plan[t.Base] = append(plan[t.Base], t)
	}
	return plan
}

// PadLength returns how many extra base rows before a requested time
// value the derivation needs: a diff consumes one earlier row, a
// smoother consumes window−1, and their composition consumes window.
func PadLength(kind Kind, window int) int {
	switch kind {
	case KindDiff:
		return 1
	case KindSmooth:
		return window - 1
	case KindDiffSmooth:
		return window
	}
	return 0
}

// ExtendRanges widens each requested range to the left by pad time units
// so the derivation has its warmup rows, then re-coalesces. A nil slice
// is the wildcard "entire recorded span" and needs no padding. The
// returned ranges are what to fetch; callers trim the warmup rows back
// out of the output with TrimLeft.
func ExtendRanges(tt models.TimeType, ranges []epitime.Range, pad int) ([]epitime.Range, error) {
	if ranges == nil || pad <= 0 {
		return ranges, nil
	}

	extended := make([]epitime.Range, len(ranges))
	for i, r := range ranges {
		start, err := epitime.Shift(tt, r.Start, -pad)
		if err != nil {
			return nil, fmt.Errorf("failed to extend range start %d: %w", r.Start, err)
		}
		extended[i] = epitime.Range{Start: start, End: r.End}
	}
	return epitime.Merge(tt, extended)
}
