package reconcile_test

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/reconcile"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
)

// memStore is an in-memory reconcile.Store. Entries are held per import kind
// already reduced to one per key.
type memStore struct {
	mu       sync.Mutex
	entries  map[string][]reconcile.Entry
	latest   map[string]time.Time
	results  map[string]map[string]reconcile.Result
	runs     map[string]reconcile.Run
	replaces map[string]int

	// gate, when set, blocks each LoadEntries until it is closed. entered,
	// when set, is signalled as a load reaches the gate.
	gate    chan struct{}
	entered chan struct{}
}

func newMemStore() *memStore {
	return &memStore{
		entries:  make(map[string][]reconcile.Entry),
		latest:   make(map[string]time.Time),
		results:  make(map[string]map[string]reconcile.Result),
		runs:     make(map[string]reconcile.Run),
		replaces: make(map[string]int),
	}
}

func (m *memStore) LoadEntries(_ context.Context, src reconcile.Source, keys []string) ([]reconcile.Entry, error) {
	m.mu.Lock()
	gate, entered := m.gate, m.entered
	m.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []reconcile.Entry
	for _, e := range m.entries[src.Kind] {
		if keys == nil || slices.Contains(keys, e.Key) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) ReplaceResults(_ context.Context, run reconcile.Run, keys []string, results []reconcile.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cache := m.results[run.Pair]
	if cache == nil || keys == nil {
		cache = make(map[string]reconcile.Result)
		m.results[run.Pair] = cache
	}
	for _, k := range keys {
		delete(cache, k)
	}
	for _, r := range results {
		r.ComputedAt = run.ComputedAt
		cache[r.MatchKey] = r
	}

	if keys == nil {
		m.runs[run.Pair] = run
	}
	m.replaces[run.Pair]++
	return nil
}

func (m *memStore) filtered(pair string, filters reconcile.Filters) []reconcile.Result {
	var out []reconcile.Result
	for _, r := range m.results[pair] {
		if filters.Matches(r) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b reconcile.Result) int {
		return strings.Compare(a.MatchKey, b.MatchKey)
	})
	return out
}

func (m *memStore) ListResults(
	_ context.Context,
	pair string,
	page pagination.PageRequest,
	filters reconcile.Filters,
) (*pagination.PageResult[reconcile.Result], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	page.Normalize(pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})
	all := m.filtered(pair, filters)

	start := min(page.Offset(), len(all))
	end := min(start+page.PageSize, len(all))

	result := pagination.NewPageResult(all[start:end], len(all), page.Page, page.PageSize)
	return &result, nil
}

func (m *memStore) Counts(_ context.Context, pair string, filters reconcile.Filters) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return reconcile.Tally(m.filtered(pair, filters)), nil
}

func (m *memStore) LastRun(_ context.Context, pair string) (*reconcile.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[pair]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (m *memStore) LatestImport(_ context.Context, kinds []string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *time.Time
	for _, k := range kinds {
		if t, ok := m.latest[k]; ok && (latest == nil || t.After(*latest)) {
			latest = &t
		}
	}
	return latest, nil
}

// seed replaces kind's entries and marks it imported at at.
func (m *memStore) seed(kind string, at time.Time, entries ...reconcile.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[kind] = entries
	m.latest[kind] = at
}

func (m *memStore) run(pair string) (reconcile.Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[pair]
	return r, ok
}

func (m *memStore) replaced(pair string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaces[pair]
}
