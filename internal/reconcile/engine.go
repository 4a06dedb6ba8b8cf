package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/config"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/keylock"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/lifecycle"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/metrics"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
)

// busyRetry delays a notified recompute that found its pair locked.
const busyRetry = 5 * time.Second

type engine struct {
	store   Store
	metrics *metrics.Metrics
	cfg     *config.ReconcileConfig

	logger     *slog.Logger
	pagination pagination.Config

	locks *keylock.Set

	mu      sync.Mutex
	pending map[string]struct{}
	wake    chan struct{}
}

// New creates the reconciliation engine.
func New(
	store Store,
	m *metrics.Metrics,
	cfg *config.ReconcileConfig,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &engine{
		store:      store,
		metrics:    m,
		cfg:        cfg,
		logger:     logger.With("system", "reconcile"),
		pagination: pagination,
		locks:      keylock.New(),
		pending:    make(map[string]struct{}),
		wake:       make(chan struct{}, 1),
	}
}

func (e *engine) Handler() *Handler {
	return NewHandler(e, e.logger, e.pagination)
}

func (e *engine) Recompute(ctx context.Context, name string, keys []string) (*Summary, error) {
	p, ok := LookupPair(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPair, name)
	}
	return e.recompute(ctx, p, keys, TriggerManual)
}

func (e *engine) recompute(ctx context.Context, p Pair, keys []string, trigger string) (*Summary, error) {
	release, err := e.locks.Acquire(p.Name)
	if err != nil {
		return nil, err
	}
	defer release()

	// Once the lock is held the recompute runs to completion.
	ctx = context.WithoutCancel(ctx)

	scope := scopeKeys(p, keys)
	started := time.Now().UTC()

	a, err := e.store.LoadEntries(ctx, p.A, scope)
	if err != nil {
		return nil, err
	}
	b, err := e.store.LoadEntries(ctx, p.B, scope)
	if err != nil {
		return nil, err
	}

	results := Reconcile(a, b, e.options(p))
	run := Run{
		Pair:       p.Name,
		ComputedAt: started,
		Trigger:    trigger,
		Counts:     Tally(results),
	}

	if err := e.store.ReplaceResults(ctx, run, scope, results); err != nil {
		return nil, fmt.Errorf("replace %s results: %w", p.Name, err)
	}

	if scope == nil {
		e.metrics.Reconciled(p.Name, trigger, run.Counts)
	}

	summary := &Summary{
		Pair:       p.Name,
		Trigger:    trigger,
		Keys:       scope,
		Counts:     NewCounts(run.Counts),
		ComputedAt: started,
		DurationMs: time.Since(started).Milliseconds(),
	}

	e.logger.Info("recomputed",
		"pair", p.Name,
		"trigger", trigger,
		"keys", len(scope),
		"total", summary.Counts.Total,
		"mismatched", summary.Counts.Mismatched,
		"missing", summary.Counts.MissingEither,
	)
	return summary, nil
}

// scopeKeys returns the sorted distinct keys a keyed recompute rebuilds, or
// nil for a full rebuild. Composite pairs pair entries across keys, so they
// always rebuild in full.
func scopeKeys(p Pair, keys []string) []string {
	if p.Composite || len(keys) == 0 {
		return nil
	}
	scope := slices.Clone(keys)
	slices.Sort(scope)
	return slices.Compact(scope)
}

func (e *engine) options(p Pair) Options {
	return Options{
		Threshold: e.cfg.ThresholdDecimal(),
		Composite: p.Composite,
		Epsilon:   e.cfg.EpsilonDecimal(),
	}
}

func (e *engine) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	p, ok := LookupPair(req.Pair)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPair, req.Pair)
	}

	filters := Filters{Keys: req.Keys, Status: req.Status}
	if err := filters.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, *req.Status)
	}

	if req.Refresh {
		if _, err := e.recompute(ctx, p, req.Keys, TriggerRefresh); err != nil {
			return nil, err
		}
	}

	page, err := e.store.ListResults(ctx, p.Name, req.PageRequest, filters)
	if err != nil {
		return nil, err
	}

	counts, err := e.store.Counts(ctx, p.Name, filters)
	if err != nil {
		return nil, err
	}

	st, err := e.staleness(ctx, p)
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		Pair:         p.Name,
		Results:      *page,
		Counts:       NewCounts(counts),
		ComputedAt:   st.ComputedAt,
		LatestImport: st.LatestImport,
		Stale:        st.Stale,
	}, nil
}

func (e *engine) Staleness(ctx context.Context, name string) (*Staleness, error) {
	p, ok := LookupPair(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPair, name)
	}
	return e.staleness(ctx, p)
}

func (e *engine) Overview(ctx context.Context) ([]Staleness, error) {
	var out []Staleness
	for _, p := range Pairs() {
		st, err := e.staleness(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

func (e *engine) staleness(ctx context.Context, p Pair) (*Staleness, error) {
	run, err := e.store.LastRun(ctx, p.Name)
	if err != nil {
		return nil, err
	}
	latest, err := e.store.LatestImport(ctx, p.Kinds())
	if err != nil {
		return nil, err
	}

	st := &Staleness{Pair: p.Name, LatestImport: latest}
	if run != nil {
		st.ComputedAt = &run.ComputedAt
	}
	st.Stale = IsStale(st.ComputedAt, latest)
	return st, nil
}

func (e *engine) Notify(kind string) {
	affected := PairsFor(kind)
	if len(affected) == 0 {
		return
	}

	e.mu.Lock()
	for _, p := range affected {
		e.pending[p.Name] = struct{}{}
	}
	e.mu.Unlock()

	e.kick()
}

func (e *engine) kick() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *engine) Start(lc *lifecycle.Coordinator) error {
	interval := e.cfg.IntervalDuration()
	if interval < 0 {
		return fmt.Errorf("reconcile interval must not be negative: %s", interval)
	}

	lc.Go(e.notifyLoop)

	if interval > 0 {
		lc.Go(func(ctx context.Context) {
			e.schedule(ctx, interval)
		})
	}

	e.logger.Info("reconcile started", "interval", interval)
	return nil
}

func (e *engine) notifyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
			e.drain(ctx)
		}
	}
}

// drain recomputes every pending pair. Pairs found busy go back on the queue
// and are retried after busyRetry.
func (e *engine) drain(ctx context.Context) {
	e.mu.Lock()
	names := make([]string, 0, len(e.pending))
	for name := range e.pending {
		names = append(names, name)
	}
	clear(e.pending)
	e.mu.Unlock()

	slices.Sort(names)

	for _, name := range names {
		if ctx.Err() != nil {
			return
		}

		p, _ := LookupPair(name)
		_, err := e.recompute(ctx, p, nil, TriggerImport)
		switch {
		case err == nil:
		case errors.Is(err, ErrBusy):
			e.mu.Lock()
			e.pending[name] = struct{}{}
			e.mu.Unlock()
			time.AfterFunc(busyRetry, e.kick)
		default:
			e.logger.Error("notified recompute failed", "pair", name, "error", err)
		}
	}
}

func (e *engine) schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range Pairs() {
				if ctx.Err() != nil {
					return
				}
				_, err := e.recompute(ctx, p, nil, TriggerSchedule)
				if err != nil && !errors.Is(err, ErrBusy) {
					e.logger.Error("scheduled recompute failed", "pair", p.Name, "error", err)
				}
			}
		}
	}
}
