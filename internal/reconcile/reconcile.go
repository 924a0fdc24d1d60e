// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package reconcile decides which catalog entries still need downloading.
package reconcile

import (
	"context"
	"fmt"

	"github.com/ManuGH/recsync/internal/model"
	"github.com/ManuGH/recsync/internal/registry"
)

// SkipReason explains why an entry is not scheduled.
type SkipReason string

const (
	SkipNone               SkipReason = ""
	SkipAlreadySynced      SkipReason = "already_synced"
	SkipDuplicateInListing SkipReason = "duplicate_in_catalog"
)

// Entry is a catalog recording annotated for the UI.
type Entry struct {
	model.Recording
	SkipReason SkipReason `json:"skip_reason,omitempty"`
}

// Skipped reports whether the entry will not be downloaded.
func (e Entry) Skipped() bool { return e.SkipReason != SkipNone }

// Plan is the reconciliation of one catalog against the registry. Entries
// keeps the input order.
type Plan struct {
	Entries []Entry `json:"entries"`
	ToSync  int     `json:"to_sync"`
	Skipped int     `json:"skipped"`
}

// Recordings returns the entries that still need downloading, in order.
func (p Plan) Recordings() []model.Recording {
	out := make([]model.Recording, 0, p.ToSync)
	for _, e := range p.Entries {
		if !e.Skipped() {
			out = append(out, e.Recording)
		}
	}
	return out
}

// Reconciler compares catalogs against a Registry.
type Reconciler struct {
	registry registry.Registry
}

func New(reg registry.Registry) *Reconciler {
	return &Reconciler{registry: reg}
}

// GetFilesToSync annotates every catalog entry. Already-synced files and
// repeated filenames are marked skipped rather than dropped.
func (r *Reconciler) GetFilesToSync(ctx context.Context, entries []model.Recording) (Plan, error) {
	names, err := r.registry.ListFilenames(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("reconcile: list synced: %w", err)
	}
	synced := make(map[string]struct{}, len(names))
	for _, n := range names {
		synced[n] = struct{}{}
	}

	plan := Plan{Entries: make([]Entry, 0, len(entries))}
	seen := make(map[string]struct{}, len(entries))
	for _, rec := range entries {
		e := Entry{Recording: rec}
		if _, ok := synced[rec.Filename]; ok {
			e.SkipReason = SkipAlreadySynced
		} else if _, dup := seen[rec.Filename]; dup {
			e.SkipReason = SkipDuplicateInListing
		}
		seen[rec.Filename] = struct{}{}

		if e.Skipped() {
			plan.Skipped++
		} else {
			plan.ToSync++
		}
		plan.Entries = append(plan.Entries, e)
	}
	return plan, nil
}
