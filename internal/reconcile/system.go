package reconcile

import (
	"context"
	"time"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/lifecycle"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
)

// Recompute triggers.
const (
	TriggerManual   = "manual"
	TriggerRefresh  = "refresh"
	TriggerImport   = "import"
	TriggerSchedule = "schedule"
)

// System defines the public contract for reconciliation.
type System interface {
	Handler() *Handler

	// Recompute rebuilds the pair's cached results. With keys, only those
	// keys are rebuilt for key-joined pairs; composite pairs always rebuild
	// in full. Returns ErrBusy while another recompute of the pair runs.
	Recompute(ctx context.Context, pair string, keys []string) (*Summary, error)

	// Query pages through cached results with aggregate counts and the
	// pair's staleness. Refresh recomputes first.
	Query(ctx context.Context, req QueryRequest) (*QueryResult, error)

	Staleness(ctx context.Context, pair string) (*Staleness, error)
	Overview(ctx context.Context) ([]Staleness, error)

	// Notify schedules recomputes of every pair reading kind. Repeated
	// calls before the worker runs coalesce.
	Notify(kind string)

	// Start registers the notify worker and the recompute schedule.
	Start(lc *lifecycle.Coordinator) error
}

// Counts aggregates results by status.
type Counts struct {
	Matched        int `json:"matched"`
	AmountDiff     int `json:"amount_diff"`
	MissingSourceA int `json:"missing_source_a"`
	MissingSourceB int `json:"missing_source_b"`
	Mismatched     int `json:"mismatched"`
	MissingEither  int `json:"missing_either"`
	Total          int `json:"total"`
}

// NewCounts builds Counts from a status tally.
func NewCounts(byStatus map[string]int) Counts {
	c := Counts{
		Matched:        byStatus[StatusMatched],
		AmountDiff:     byStatus[StatusAmountDiff],
		MissingSourceA: byStatus[StatusMissingA],
		MissingSourceB: byStatus[StatusMissingB],
	}
	c.Mismatched = c.AmountDiff
	c.MissingEither = c.MissingSourceA + c.MissingSourceB
	c.Total = c.Matched + c.AmountDiff + c.MissingEither
	return c
}

// Tally counts results by status.
func Tally(results []Result) map[string]int {
	out := make(map[string]int, len(Statuses))
	for _, s := range Statuses {
		out[s] = 0
	}
	for _, r := range results {
		out[r.Status]++
	}
	return out
}

// Summary describes a finished recompute.
type Summary struct {
	Pair       string    `json:"pair"`
	Trigger    string    `json:"trigger"`
	Keys       []string  `json:"keys,omitempty"`
	Counts     Counts    `json:"counts"`
	ComputedAt time.Time `json:"computed_at"`
	DurationMs int64     `json:"duration_ms"`
}

// Staleness reports whether a pair's cache predates its newest import.
type Staleness struct {
	Pair         string     `json:"pair"`
	ComputedAt   *time.Time `json:"computed_at"`
	LatestImport *time.Time `json:"latest_import"`
	Stale        bool       `json:"stale"`
}

// IsStale is true when some import completed after the last full recompute,
// including when the pair was never computed but has imports.
func IsStale(computedAt, latestImport *time.Time) bool {
	if latestImport == nil {
		return false
	}
	return computedAt == nil || computedAt.Before(*latestImport)
}

// QueryRequest selects a page of a pair's results.
type QueryRequest struct {
	pagination.PageRequest
	Pair    string   `json:"-"`
	Keys    []string `json:"keys,omitempty"`
	Status  *string  `json:"status,omitempty"`
	Refresh bool     `json:"refresh,omitempty"`
}

// QueryResult is a page of results with pair-wide context.
type QueryResult struct {
	Pair         string                        `json:"pair"`
	Results      pagination.PageResult[Result] `json:"results"`
	Counts       Counts                        `json:"counts"`
	ComputedAt   *time.Time                    `json:"computed_at"`
	LatestImport *time.Time                    `json:"latest_import"`
	Stale        bool                          `json:"stale"`
}
