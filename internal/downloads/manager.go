package downloads

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/config"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/cancel"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/files"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/keylock"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/lifecycle"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/metrics"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/storage"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/thaidate"
)

// Accepted Buddhist-Era fiscal year range.
const (
	minFiscalYear = 2500
	maxFiscalYear = 2700
)

// run is the in-memory state of an executing session. session is guarded by mu.
type run struct {
	mu      sync.Mutex
	session *Session
	token   *cancel.Token
	release func()
}

func (r *run) snapshot() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := *r.session
	return &s
}

type manager struct {
	store   Store
	source  Source
	files   *files.Resolver
	archive storage.System
	metrics *metrics.Metrics
	lc      *lifecycle.Coordinator
	cfg     *config.DownloadConfig

	logger     *slog.Logger
	pagination pagination.Config

	locks *keylock.Set
	mu    sync.Mutex
	runs  map[uuid.UUID]*run
}

// New creates a download session manager implementing the System interface.
// Runs execute on the lifecycle coordinator so shutdown waits for them.
func New(
	store Store,
	source Source,
	resolver *files.Resolver,
	archive storage.System,
	m *metrics.Metrics,
	lc *lifecycle.Coordinator,
	cfg *config.DownloadConfig,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &manager{
		store:      store,
		source:     source,
		files:      resolver,
		archive:    archive,
		metrics:    m,
		lc:         lc,
		cfg:        cfg,
		logger:     logger.With("system", "downloads"),
		pagination: pagination,
		locks:      keylock.New(),
		runs:       make(map[uuid.UUID]*run),
	}
}

func (m *manager) Handler() *Handler {
	return NewHandler(m, m.logger, m.pagination)
}

func (m *manager) Start(ctx context.Context, cmd StartCommand) (*Session, error) {
	params := cmd.Params
	params.Schemes = slices.Clone(params.Schemes)
	params.normalize()

	if err := m.validate(cmd.SourceType, &params); err != nil {
		return nil, err
	}

	release, err := m.locks.Acquire(cmd.SourceType)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:          uuid.New(),
		SourceType:  cmd.SourceType,
		Status:      StatusPending,
		Params:      params,
		MaxWorkers:  params.MaxWorkers,
		Cancellable: true,
	}

	if err := m.store.CreateSession(ctx, s); err != nil {
		release()
		return nil, fmt.Errorf("create session: %w", err)
	}

	m.event(ctx, s.ID, EventCreated, fmt.Sprintf("%s session created with %d workers", s.SourceType, s.MaxWorkers))
	m.logger.Info("session created", "session_id", s.ID, "source_type", s.SourceType, "workers", s.MaxWorkers)

	return m.launch(s, release, false), nil
}

func (m *manager) Cancel(ctx context.Context, id uuid.UUID) (*Session, error) {
	r := m.active(id)
	if r == nil {
		s, err := m.store.FindSession(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: status %s", ErrNotCancellable, s.Status)
	}

	r.mu.Lock()
	if !r.session.Cancellable {
		status := r.session.Status
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: status %s", ErrNotCancellable, status)
	}

	now := time.Now().UTC()
	r.session.Status = StatusCancelled
	r.session.CancelledAt = &now
	r.session.Cancellable = false
	r.session.Resumable = true
	err := m.store.SaveSession(ctx, r.session)
	s := *r.session
	r.mu.Unlock()

	r.token.Cancel("cancelled by request")

	if err != nil {
		return nil, fmt.Errorf("save cancelled session: %w", err)
	}

	m.event(ctx, id, EventCancel, "cancellation requested; in-flight files will finish")
	m.logger.Info("session cancelled", "session_id", id)
	return &s, nil
}

func (m *manager) Resume(ctx context.Context, id uuid.UUID) (*Session, error) {
	if m.active(id) != nil {
		return nil, fmt.Errorf("%w: session is running", ErrNotResumable)
	}

	s, err := m.store.FindSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if !s.Resumable || !s.Terminal() {
		return nil, fmt.Errorf("%w: status %s", ErrNotResumable, s.Status)
	}

	release, err := m.locks.Acquire(s.SourceType)
	if err != nil {
		return nil, err
	}

	s.Status = StatusPending
	s.ResumeCount++
	s.Cancellable = true
	s.Resumable = false
	s.ErrorDetail = nil
	s.CompletedAt = nil
	s.CancelledAt = nil

	if err := m.store.SaveSession(ctx, s); err != nil {
		release()
		return nil, fmt.Errorf("save resumed session: %w", err)
	}

	m.event(ctx, id, EventResume, fmt.Sprintf("resume #%d", s.ResumeCount))
	m.logger.Info("session resumed", "session_id", id, "resume_count", s.ResumeCount)

	return m.launch(s, release, true), nil
}

func (m *manager) Find(ctx context.Context, id uuid.UUID) (*Session, error) {
	if r := m.active(id); r != nil {
		return r.snapshot(), nil
	}
	return m.store.FindSession(ctx, id)
}

func (m *manager) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Session], error) {
	return m.store.ListSessions(ctx, page, filters)
}

func (m *manager) Files(ctx context.Context, id uuid.UUID, status *string) ([]File, error) {
	if _, err := m.store.FindSession(ctx, id); err != nil {
		return nil, err
	}
	return m.store.SessionFiles(ctx, id, status)
}

func (m *manager) Events(ctx context.Context, id uuid.UUID) ([]Event, error) {
	if _, err := m.store.FindSession(ctx, id); err != nil {
		return nil, err
	}
	return m.store.Events(ctx, id)
}

func (m *manager) ListFailed(
	ctx context.Context,
	page pagination.PageRequest,
	filters FailedFilters,
) (*pagination.PageResult[FailedFile], error) {
	return m.store.ListFailed(ctx, page, filters)
}

func (m *manager) ResetFailed(ctx context.Context, filters FailedFilters) (int64, error) {
	if filters.SourceType != nil && !slices.Contains(SourceTypes, *filters.SourceType) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSource, *filters.SourceType)
	}

	n, sessions, err := m.store.ResetFailed(ctx, filters)
	if err != nil {
		return 0, fmt.Errorf("reset failed files: %w", err)
	}

	m.logger.Info("failed files reset", "count", n, "sessions", len(sessions))
	return n, nil
}

func (m *manager) Recover(ctx context.Context) (int, error) {
	sessions, err := m.store.InterruptedSessions(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for i := range sessions {
		s := &sessions[i]
		if m.active(s.ID) != nil {
			continue
		}

		now := time.Now().UTC()
		s.Status = StatusFailed
		s.Cancellable = false
		s.Resumable = true
		s.CompletedAt = &now
		s.ErrorDetail = &ErrorDetail{
			Kind:     ErrorKindInterrupted,
			Message:  "the service stopped while the session was running",
			Guidance: "resume the session to download the remaining files",
		}

		if err := m.store.SaveSession(ctx, s); err != nil {
			return recovered, fmt.Errorf("recover session %s: %w", s.ID, err)
		}
		m.event(ctx, s.ID, EventError, s.ErrorDetail.Message)
		recovered++
	}

	if recovered > 0 {
		m.logger.Warn("interrupted sessions marked failed", "count", recovered)
	}
	return recovered, nil
}

func (m *manager) validate(sourceType string, p *Params) error {
	if !slices.Contains(SourceTypes, sourceType) {
		return fmt.Errorf("%w: %q", ErrUnknownSource, sourceType)
	}

	if p.FiscalYear != 0 && (p.FiscalYear < minFiscalYear || p.FiscalYear > maxFiscalYear) {
		return fmt.Errorf("%w: fiscal year %d out of range", ErrInvalidParams, p.FiscalYear)
	}
	if p.Month < 0 || p.Month > 12 {
		return fmt.Errorf("%w: month %d out of range", ErrInvalidParams, p.Month)
	}

	var from, to time.Time
	if p.DateFrom != "" {
		t, err := thaidate.Parse(p.DateFrom)
		if err != nil {
			return fmt.Errorf("%w: date_from: %v", ErrInvalidParams, err)
		}
		from = t
	}
	if p.DateTo != "" {
		t, err := thaidate.Parse(p.DateTo)
		if err != nil {
			return fmt.Errorf("%w: date_to: %v", ErrInvalidParams, err)
		}
		to = t
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return fmt.Errorf("%w: date_to before date_from", ErrInvalidParams)
	}

	for _, s := range p.Schemes {
		if !slices.Contains(Schemes, s) {
			return fmt.Errorf("%w: unknown scheme %q", ErrInvalidParams, s)
		}
	}

	if p.MaxWorkers == 0 {
		p.MaxWorkers = m.cfg.WorkersFor(sourceType)
	}
	if p.MaxWorkers < 1 || p.MaxWorkers > m.cfg.WorkerCap {
		return fmt.Errorf("%w: max_workers must be between 1 and %d", ErrInvalidParams, m.cfg.WorkerCap)
	}

	return nil
}

// launch registers the run and hands it to the lifecycle coordinator.
func (m *manager) launch(s *Session, release func(), resumed bool) *Session {
	r := &run{
		session: s,
		token:   cancel.New(),
		release: release,
	}

	m.mu.Lock()
	m.runs[s.ID] = r
	m.mu.Unlock()

	m.metrics.SessionStarted(s.SourceType)
	snap := r.snapshot()

	m.lc.Go(func(ctx context.Context) {
		m.execute(ctx, r, resumed)
	})

	return snap
}

func (m *manager) active(id uuid.UUID) *run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

func (m *manager) event(ctx context.Context, id uuid.UUID, eventType, message string) {
	if err := m.store.AppendEvent(context.WithoutCancel(ctx), id, eventType, message); err != nil {
		m.logger.Warn("append session event failed", "session_id", id, "event", eventType, "error", err)
	}
}
