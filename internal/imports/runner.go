package imports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"
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
)

const uploadsDir = "uploads"

var uploadExtensions = []string{".xls", ".xlsx", ".csv"}

// job is the in-memory state of the latest import for one schema kind.
type job struct {
	mu       sync.Mutex
	progress Progress
	token    *cancel.Token
	release  func()
}

func (j *job) snapshot() *Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	p := j.progress
	p.Results = slices.Clone(p.Results)
	return &p
}

func (j *job) update(fn func(p *Progress)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.progress)
}

type runner struct {
	store    Store
	files    *files.Resolver
	archive  storage.System
	metrics  *metrics.Metrics
	notifier Notifier
	lc       *lifecycle.Coordinator
	cfg      *config.ImportsConfig

	logger     *slog.Logger
	pagination pagination.Config

	locks *keylock.Set
	mu    sync.Mutex
	jobs  map[string]*job
}

// New creates an import runner implementing the System interface. notifier
// may be nil.
func New(
	store Store,
	resolver *files.Resolver,
	archive storage.System,
	m *metrics.Metrics,
	notifier Notifier,
	lc *lifecycle.Coordinator,
	cfg *config.ImportsConfig,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &runner{
		store:      store,
		files:      resolver,
		archive:    archive,
		metrics:    m,
		notifier:   notifier,
		lc:         lc,
		cfg:        cfg,
		logger:     logger.With("system", "imports"),
		pagination: pagination,
		locks:      keylock.New(),
		jobs:       make(map[string]*job),
	}
}

func (r *runner) Handler(maxUploadSize int64) *Handler {
	return NewHandler(r, r.logger, r.pagination, maxUploadSize)
}

func (r *runner) ImportFile(ctx context.Context, cmd ImportCommand) (*Progress, error) {
	if err := files.ValidateName(cmd.Filename); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	var hint *Schema
	if cmd.Schema != nil && *cmd.Schema != "" {
		s, ok := Lookup(*cmd.Schema)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, *cmd.Schema)
		}
		hint = s
	}

	path, err := r.locate(ctx, cmd.Filename, hint)
	if err != nil {
		return nil, err
	}

	schema, err := r.detect(path, cmd.Filename, hint)
	if err != nil {
		return nil, err
	}

	release, err := r.locks.Acquire(schema.Kind)
	if err != nil {
		return nil, err
	}

	return r.launch(schema, []string{cmd.Filename}, release), nil
}

func (r *runner) ImportAll(ctx context.Context, kind string) (*Progress, error) {
	schema, ok := Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, kind)
	}

	release, err := r.locks.Acquire(schema.Kind)
	if err != nil {
		return nil, err
	}

	names, err := r.pending(ctx, schema)
	if err != nil {
		release()
		return nil, err
	}

	return r.launch(schema, names, release), nil
}

func (r *runner) Cancel(kind string) (*Progress, error) {
	if _, ok := Lookup(kind); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, kind)
	}

	j := r.job(kind)
	if j == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRunning, kind)
	}

	j.mu.Lock()
	if !j.progress.Running {
		j.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotRunning, kind)
	}
	j.progress.Cancelled = true
	j.mu.Unlock()

	j.token.Cancel("import cancelled by request")
	r.logger.Info("import cancel requested", "schema", kind)

	return j.snapshot(), nil
}

func (r *runner) Progress(kind string) (*Progress, error) {
	if _, ok := Lookup(kind); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, kind)
	}

	j := r.job(kind)
	if j == nil {
		return &Progress{Schema: kind, Results: []FileResult{}}, nil
	}
	return j.snapshot(), nil
}

func (r *runner) Files(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[ImportedFile], error) {
	return r.store.ListFiles(ctx, page, filters)
}

func (r *runner) FindFile(ctx context.Context, id uuid.UUID) (*ImportedFile, error) {
	return r.store.FindFile(ctx, id)
}

func (r *runner) RowErrors(ctx context.Context, id uuid.UUID) ([]RowError, error) {
	if _, err := r.store.FindFile(ctx, id); err != nil {
		return nil, err
	}
	return r.store.RowErrors(ctx, id)
}

func (r *runner) Upload(ctx context.Context, filename string, src io.Reader) (*UploadResult, error) {
	if err := files.ValidateName(filename); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !slices.Contains(uploadExtensions, ext) {
		return nil, fmt.Errorf("%w: extension %q not accepted", ErrInvalidFile, ext)
	}

	target, err := r.files.Target(uploadsDir, filename)
	if err != nil {
		return nil, err
	}

	size, hash, err := files.WriteAtomic(target, src)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	r.archiveUpload(ctx, target, filename)

	result := &UploadResult{
		Filename:    filename,
		Path:        target,
		SizeBytes:   size,
		ContentHash: hash,
	}
	if s, ok := ByFilename(filename); ok {
		result.Schema = &s.Kind
	}

	r.logger.Info("file uploaded", "file", filename, "size", size)
	return result, nil
}

func (r *runner) Recover(ctx context.Context) (int64, error) {
	n, err := r.store.ResetProcessing(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset processing files: %w", err)
	}
	if n > 0 {
		r.logger.Warn("interrupted imports returned to pending", "files", n)
	}
	return n, nil
}

func (r *runner) job(kind string) *job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[kind]
}

// launch registers a job for schema and runs it on the lifecycle.
func (r *runner) launch(schema *Schema, names []string, release func()) *Progress {
	now := time.Now().UTC()
	j := &job{
		token:   cancel.New(),
		release: release,
		progress: Progress{
			Schema:     schema.Kind,
			Running:    true,
			FilesTotal: len(names),
			StartedAt:  &now,
			Results:    []FileResult{},
		},
	}

	r.mu.Lock()
	r.jobs[schema.Kind] = j
	r.mu.Unlock()

	r.logger.Info("import started", "schema", schema.Kind, "files", len(names))
	r.lc.Go(func(ctx context.Context) {
		r.execute(ctx, j, schema, names)
	})

	return j.snapshot()
}

// pending lists the files of schema that still need importing: registered
// files not completed plus stored files never registered.
func (r *runner) pending(ctx context.Context, schema *Schema) ([]string, error) {
	incomplete, err := r.store.IncompleteFiles(ctx, schema.Kind)
	if err != nil {
		return nil, err
	}

	stored, err := r.files.List(schema.FilenamePattern)
	if err != nil {
		return nil, err
	}

	statuses, err := r.store.FileStatuses(ctx, stored)
	if err != nil {
		return nil, err
	}

	names := slices.Clone(incomplete)
	for _, name := range stored {
		if statuses[name] != StatusCompleted {
			names = append(names, name)
		}
	}

	slices.Sort(names)
	return slices.Compact(names), nil
}

// detect selects the schema for a file: explicit hint, then filename
// pattern, then header signature.
func (r *runner) detect(path, filename string, hint *Schema) (*Schema, error) {
	if hint != nil {
		return hint, nil
	}
	if s, ok := ByFilename(filename); ok {
		return s, nil
	}

	src, err := openRows(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	head, _ := peekRows(src, r.cfg.HeaderRows)
	if err := src.Err(); err != nil {
		return nil, readError(err)
	}
	if s, _, ok := ByHeaders(head); ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: no known layout matches %s", ErrUnknownSchema, filename)
}

// locate resolves filename in the file store, restoring it from the archive
// when the local copy is gone.
func (r *runner) locate(ctx context.Context, filename string, schema *Schema) (string, error) {
	path, err := r.files.Resolve(filename)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, files.ErrNotFound) {
		return "", fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	if r.archive == nil || !r.archive.Enabled() {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, filename)
	}

	if schema == nil {
		schema, _ = ByFilename(filename)
	}

	type candidate struct{ key, dir string }
	var candidates []candidate
	if schema != nil && schema.Dir != uploadsDir {
		candidates = append(candidates, candidate{storage.Key("downloads", schema.Dir, filename), schema.Dir})
	}
	candidates = append(candidates, candidate{storage.Key(uploadsDir, filename), uploadsDir})

	for _, c := range candidates {
		path, err := r.restore(ctx, c.key, c.dir, filename)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		return path, nil
	}

	return "", fmt.Errorf("%w: %s", ErrFileNotFound, filename)
}

func (r *runner) restore(ctx context.Context, key, dir, filename string) (string, error) {
	rc, err := r.archive.Download(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	target, err := r.files.Target(dir, filename)
	if err != nil {
		return "", err
	}

	if _, _, err := files.WriteAtomic(target, rc); err != nil {
		return "", fmt.Errorf("restore %s: %w", filename, err)
	}

	r.logger.Info("file restored from archive", "file", filename, "key", key)
	return target, nil
}

func (r *runner) archiveUpload(ctx context.Context, path, filename string) {
	if r.archive == nil || !r.archive.Enabled() {
		return
	}

	src, err := os.Open(path)
	if err != nil {
		r.logger.Warn("open upload for archive failed", "file", filename, "error", err)
		return
	}
	defer src.Close()

	ct := mime.TypeByExtension(filepath.Ext(filename))
	if ct == "" {
		ct = "application/octet-stream"
	}

	key := storage.Key(uploadsDir, filename)
	if err := r.archive.Upload(ctx, key, src, ct); err != nil {
		r.logger.Warn("archive upload failed", "key", key, "error", err)
	}
}
