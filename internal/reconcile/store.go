package reconcile

import (
	"context"
	"time"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
)

// Run records one full recompute of a pair.
type Run struct {
	Pair       string         `json:"pair"`
	ComputedAt time.Time      `json:"computed_at"`
	Trigger    string         `json:"trigger"`
	Counts     map[string]int `json:"counts"`
}

// Store loads source entries and persists the result cache.
type Store interface {
	// LoadEntries returns one entry per key of src, taking the row from the
	// most recently completed import and breaking ties by file id. A nil keys
	// loads every key.
	LoadEntries(ctx context.Context, src Source, keys []string) ([]Entry, error)

	// ReplaceResults swaps the pair's cached rows for results in one
	// transaction. A nil keys replaces the whole pair and records run;
	// otherwise only rows whose match key is in keys are replaced.
	ReplaceResults(ctx context.Context, run Run, keys []string, results []Result) error

	ListResults(
		ctx context.Context,
		pair string,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Result], error)

	// Counts tallies cached rows by status for the filtered keys.
	Counts(ctx context.Context, pair string, filters Filters) (map[string]int, error)

	// LastRun returns the latest full recompute of pair, or nil if none.
	LastRun(ctx context.Context, pair string) (*Run, error)

	// LatestImport returns the newest completed_at across imported files of
	// kinds, or nil if none completed.
	LatestImport(ctx context.Context, kinds []string) (*time.Time, error)
}
