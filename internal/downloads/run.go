package downloads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/portal"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/files"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/retry"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/storage"
)

const maxBackoff = 30 * time.Second

// execute drives one pass of a session from discovery to its terminal status.
func (m *manager) execute(ctx context.Context, r *run, resumed bool) {
	s := r.snapshot()
	logger := m.logger.With("session_id", s.ID, "source_type", s.SourceType)
	logger.Info("session run started", "resumed", resumed)

	detail := m.process(ctx, r, resumed, logger)
	m.finish(ctx, r, detail, logger)
}

func (m *manager) process(ctx context.Context, r *run, resumed bool, logger *slog.Logger) *ErrorDetail {
	now := time.Now().UTC()
	if !m.transition(ctx, r, StatusDiscovering, func(s *Session) {
		if s.StartedAt == nil {
			s.StartedAt = &now
		}
	}) {
		return nil
	}

	queue, err := m.discover(ctx, r, resumed, logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Error("discovery failed", "error", err)
		return discoveryError(err)
	}

	if !m.transition(ctx, r, StatusDownloading, nil) {
		return nil
	}

	m.download(ctx, r, queue, logger)
	return nil
}

// transition moves the session to status unless it was cancelled first.
func (m *manager) transition(ctx context.Context, r *run, status string, fn func(*Session)) bool {
	r.mu.Lock()
	if r.session.Status == StatusCancelled || r.token.Cancelled() {
		r.mu.Unlock()
		return false
	}

	r.session.Status = status
	if fn != nil {
		fn(r.session)
	}
	err := m.store.SaveSession(context.WithoutCancel(ctx), r.session)
	id := r.session.ID
	r.mu.Unlock()

	if err != nil {
		m.logger.Error("save session status failed", "session_id", id, "status", status, "error", err)
	}
	m.event(ctx, id, EventStatus, status)
	return true
}

// discover records the session's file rows and returns the ones to download.
// A resumed session with rows retries its unfinished rows; otherwise the
// portal listing is fetched and diffed against known hashes.
func (m *manager) discover(ctx context.Context, r *run, resumed bool, logger *slog.Logger) ([]File, error) {
	s := r.snapshot()

	var rows []File
	if resumed {
		existing, err := m.store.SessionFiles(ctx, s.ID, nil)
		if err != nil {
			return nil, fmt.Errorf("load session files: %w", err)
		}
		for _, f := range existing {
			switch f.Status {
			case FilePending, FileDownloading, FileFailed:
				rows = append(rows, File{Filename: f.Filename, SourceURL: f.SourceURL, Status: FilePending})
			}
		}
		if len(existing) == 0 {
			resumed = false
		}
	}

	if !resumed {
		remote, err := m.list(ctx, s)
		if err != nil {
			return nil, err
		}
		rows, err = m.classify(ctx, s.SourceType, remote, logger)
		if err != nil {
			return nil, err
		}
	}

	if len(rows) > 0 {
		if err := m.store.UpsertFiles(ctx, s.ID, rows); err != nil {
			return nil, fmt.Errorf("record session files: %w", err)
		}
	}

	tally, err := m.store.Tally(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("tally session files: %w", err)
	}

	r.mu.Lock()
	r.session.applyDiscovery(tally)
	if err := m.store.SaveSession(ctx, r.session); err != nil {
		logger.Warn("save discovery counters failed", "error", err)
	}
	r.mu.Unlock()

	m.event(ctx, s.ID, EventStatus, fmt.Sprintf(
		"discovered %d files: %d already downloaded, %d to download",
		tally.Total, tally.Total-tally.Pending, tally.Pending,
	))
	logger.Info("discovery complete", "total", tally.Total, "to_download", tally.Pending)

	pending := FilePending
	return m.store.SessionFiles(ctx, s.ID, &pending)
}

func (m *manager) list(ctx context.Context, s *Session) ([]portal.RemoteFile, error) {
	policy := retry.Policy{
		Attempts:   m.cfg.DiscoveryAttempts,
		Initial:    m.cfg.BackoffDuration(),
		Multiplier: 2,
		Max:        maxBackoff,
	}

	var remote []portal.RemoteFile
	_, err := retry.Do(ctx, policy, func(int) error {
		var err error
		remote, err = m.source.List(ctx, s.SourceType, s.Params.Query())
		if errors.Is(err, portal.ErrUnauthorized) || errors.Is(err, portal.ErrUnknownSource) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list %s files: %w", s.SourceType, err)
	}
	return remote, nil
}

// classify marks remote files whose local copy matches a recorded hash as
// already downloaded. Everything else is pending.
func (m *manager) classify(ctx context.Context, sourceType string, remote []portal.RemoteFile, logger *slog.Logger) ([]File, error) {
	names := make([]string, 0, len(remote))
	for _, rf := range remote {
		names = append(names, rf.Filename)
	}

	known, err := m.store.KnownHashes(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("load known hashes: %w", err)
	}

	rows := make([]File, 0, len(remote))
	for _, rf := range remote {
		target, err := m.files.Target(sourceType, rf.Filename)
		if err != nil {
			logger.Warn("skipping remote file with invalid name", "filename", rf.Filename, "error", err)
			continue
		}

		f := File{Filename: rf.Filename, SourceURL: rf.URL, Status: FilePending}
		if hash, ok := known[rf.Filename]; ok {
			if local, size, err := files.HashFile(target); err == nil && local == hash {
				markSkipped(&f, SkipAlreadyExists, target, local, size)
			}
		}
		rows = append(rows, f)
	}
	return rows, nil
}

// download drains the queue with at most MaxWorkers concurrent fetches. The
// token is checked before each file is taken.
func (m *manager) download(ctx context.Context, r *run, queue []File, logger *slog.Logger) {
	workers := max(r.snapshot().MaxWorkers, 1)

	slots := make(chan int, workers)
	for id := 1; id <= workers; id++ {
		slots <- id
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, f := range queue {
		if r.token.Cancelled() || ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			worker := <-slots
			defer func() { slots <- worker }()

			if r.token.Cancelled() || gctx.Err() != nil {
				return nil
			}
			m.fetch(gctx, r, f, worker, logger)
			return nil
		})
	}

	g.Wait()
}

// fetch acquires a single file. Failures are recorded on the row and never
// abort the session.
func (m *manager) fetch(ctx context.Context, r *run, f File, worker int, logger *slog.Logger) {
	s := r.snapshot()
	logger = logger.With("filename", f.Filename, "worker", worker)
	start := time.Now()
	wctx := context.WithoutCancel(ctx)

	f.Status = FileDownloading
	f.WorkerID = &worker
	if err := m.store.SaveFile(wctx, &f); err != nil {
		logger.Warn("mark file downloading failed", "error", err)
	}

	var size int64
	err := m.acquire(ctx, s.SourceType, &f, &size)

	switch {
	case err == nil:
	case ctx.Err() != nil:
		f.Status = FilePending
		f.WorkerID = nil
		logger.Warn("file fetch interrupted", "error", err)
	default:
		f.Status = FileFailed
		msg := err.Error()
		f.ErrorMessage = &msg
		logger.Error("file fetch failed", "retries", f.RetryCount, "error", err)
		m.event(ctx, s.ID, EventFile, fmt.Sprintf("%s failed: %s", f.Filename, msg))
	}

	elapsed := time.Since(start)
	if f.Status != FilePending {
		ms := elapsed.Milliseconds()
		now := time.Now().UTC()
		f.DurationMS = &ms
		f.CompletedAt = &now
	}

	if err := m.store.SaveFile(wctx, &f); err != nil {
		logger.Error("save file result failed", "error", err)
	}

	if f.Status == FileCompleted {
		m.archiveFile(wctx, s.SourceType, f, logger)
	}

	m.metrics.DownloadFile(s.SourceType, f.Status, size, elapsed)
	m.refresh(wctx, r, logger)
}

// acquire performs the duplicate-hash check and the retried fetch, leaving
// the outcome on f.
func (m *manager) acquire(ctx context.Context, sourceType string, f *File, size *int64) error {
	target, err := m.files.Target(sourceType, f.Filename)
	if err != nil {
		return err
	}

	known, err := m.store.KnownHashes(ctx, []string{f.Filename})
	if err != nil {
		return fmt.Errorf("load known hash: %w", err)
	}
	if hash, ok := known[f.Filename]; ok {
		if local, n, err := files.HashFile(target); err == nil && local == hash {
			markSkipped(f, SkipDuplicateHash, target, local, n)
			return nil
		}
	}

	policy := retry.Policy{
		Attempts:   m.cfg.FileAttempts,
		Initial:    m.cfg.BackoffDuration(),
		Multiplier: 2,
		Max:        maxBackoff,
	}

	var hash string
	attempts, err := retry.Do(ctx, policy, func(int) error {
		actx, cancel := context.WithTimeout(ctx, m.cfg.AttemptTimeoutDuration())
		defer cancel()

		body, err := m.source.Fetch(actx, f.SourceURL)
		if err != nil {
			if errors.Is(err, portal.ErrNotFound) || errors.Is(err, portal.ErrUnauthorized) {
				return retry.Permanent(err)
			}
			return err
		}
		defer body.Close()

		*size, hash, err = files.WriteAtomic(target, body)
		return err
	})
	f.RetryCount = max(attempts-1, 0)
	if err != nil {
		return err
	}

	f.Status = FileCompleted
	f.SkipReason = nil
	f.ErrorMessage = nil
	f.Path = &target
	f.SizeBytes = size
	f.ContentHash = &hash
	return nil
}

func (m *manager) archiveFile(ctx context.Context, sourceType string, f File, logger *slog.Logger) {
	if m.archive == nil || !m.archive.Enabled() || f.Path == nil {
		return
	}

	src, err := os.Open(*f.Path)
	if err != nil {
		logger.Warn("open file for archive failed", "error", err)
		return
	}
	defer src.Close()

	key := storage.Key("downloads", sourceType, f.Filename)
	if err := m.archive.Upload(ctx, key, src, contentType(f.Filename)); err != nil {
		logger.Warn("archive upload failed", "key", key, "error", err)
	}
}

// refresh recomputes the execution counters from the file rows.
func (m *manager) refresh(ctx context.Context, r *run, logger *slog.Logger) {
	t, err := m.store.Tally(ctx, r.session.ID)
	if err != nil {
		logger.Warn("tally session files failed", "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.apply(t)
	if err := m.store.SaveSession(ctx, r.session); err != nil {
		logger.Warn("save session progress failed", "error", err)
	}
}

// finish settles the terminal status. A cancelled session stays cancelled; a
// run cut short by shutdown is failed as interrupted.
func (m *manager) finish(ctx context.Context, r *run, detail *ErrorDetail, logger *slog.Logger) {
	wctx := context.WithoutCancel(ctx)
	id := r.session.ID

	tally, tallyErr := m.store.Tally(wctx, id)

	r.mu.Lock()
	s := r.session
	if tallyErr == nil {
		s.apply(tally)
	} else {
		logger.Warn("final tally failed", "error", tallyErr)
	}

	switch {
	case s.Status == StatusCancelled:
	case detail != nil:
		s.Status = StatusFailed
		s.ErrorDetail = detail
	case ctx.Err() != nil:
		s.Status = StatusFailed
		s.ErrorDetail = &ErrorDetail{
			Kind:     ErrorKindInterrupted,
			Message:  "the service stopped while the session was running",
			Guidance: "resume the session to download the remaining files",
		}
	case s.Downloaded == 0 && s.Skipped == 0 && s.Failed > 0:
		s.Status = StatusFailed
		s.ErrorDetail = &ErrorDetail{
			Kind:     ErrorKindDownload,
			Message:  fmt.Sprintf("all %d files failed to download", s.Failed),
			Guidance: "inspect the failed files, reset them for retry, and resume the session",
		}
	case s.Downloaded == 0 && s.Skipped == 0:
		s.Status = StatusFailed
		s.ErrorDetail = &ErrorDetail{
			Kind:     ErrorKindEmpty,
			Message:  "no files were downloaded or skipped",
			Guidance: "check the fiscal year, date range, and scheme filters against the portal listing",
		}
	default:
		s.Status = StatusCompleted
	}

	now := time.Now().UTC()
	s.Cancellable = false
	s.Resumable = s.Status != StatusCompleted
	s.CompletedAt = &now

	if err := m.store.SaveSession(wctx, s); err != nil {
		logger.Error("save final session state failed", "error", err)
	}

	message := fmt.Sprintf(
		"%s: %d downloaded, %d skipped, %d failed",
		s.Status, s.Downloaded, s.Skipped, s.Failed,
	)
	eventType := EventStatus
	if s.ErrorDetail != nil && s.Status == StatusFailed {
		eventType = EventError
		message = fmt.Sprintf("%s: %s", message, s.ErrorDetail.Message)
	}
	m.event(wctx, id, eventType, message)

	status, sourceType := s.Status, s.SourceType
	r.release()
	r.mu.Unlock()

	m.mu.Lock()
	delete(m.runs, id)
	m.mu.Unlock()

	m.metrics.SessionFinished(sourceType)
	logger.Info("session run finished", "status", status, "summary", message)
}

func discoveryError(err error) *ErrorDetail {
	detail := &ErrorDetail{
		Kind:     ErrorKindDiscovery,
		Message:  err.Error(),
		Guidance: "resume the session once the portal is reachable",
	}
	if errors.Is(err, portal.ErrUnauthorized) {
		detail.Guidance = "refresh the portal session cookie (ECLAIM_PORTAL_COOKIE) and resume the session"
	}
	return detail
}

func markSkipped(f *File, reason, path, hash string, size int64) {
	f.Status = FileSkipped
	f.SkipReason = &reason
	f.Path = &path
	f.ContentHash = &hash
	f.SizeBytes = &size
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
