package imports

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/files"
)

// execute imports names one at a time. A failing file is recorded and the
// job moves on; a cancel or shutdown stops before the next file.
func (r *runner) execute(ctx context.Context, j *job, schema *Schema, names []string) {
	logger := r.logger.With("schema", schema.Kind)

	for _, name := range names {
		if j.token.Cancelled() || ctx.Err() != nil {
			break
		}

		j.update(func(p *Progress) { p.CurrentFile = name })

		res := r.importFile(ctx, j, schema, name, logger.With("file", name))

		j.update(func(p *Progress) {
			p.FilesCompleted++
			p.Results = append(p.Results, res)
		})
	}

	j.mu.Lock()
	now := time.Now().UTC()
	j.progress.Running = false
	j.progress.CurrentFile = ""
	j.progress.FinishedAt = &now
	p := j.progress
	j.release()
	j.mu.Unlock()

	logger.Info(
		"import finished",
		"files", p.FilesCompleted,
		"of", p.FilesTotal,
		"rows_imported", p.RowsImported,
		"rows_failed", p.RowsFailed,
		"cancelled", p.Cancelled,
	)
}

// batch accumulates rows between commits.
type batch struct {
	records []Record
	errs    []RowError
}

func (b *batch) size() int { return len(b.records) + len(b.errs) }

func (b *batch) reset() {
	b.records = b.records[:0]
	b.errs = b.errs[:0]
}

// importFile streams one file into the schema's table in committed batches.
// Store writes use a context that outlives shutdown so an in-flight batch
// completes.
func (r *runner) importFile(ctx context.Context, j *job, schema *Schema, name string, logger *slog.Logger) FileResult {
	wctx := context.WithoutCancel(ctx)

	f := &ImportedFile{
		Filename:     name,
		FileType:     schema.Kind,
		FacilityCode: FacilityCode(name, r.cfg.FacilityCode),
	}

	path, err := r.locate(wctx, name, schema)
	if err != nil {
		return r.fail(wctx, f, err, logger)
	}

	if hash, _, err := files.HashFile(path); err == nil {
		f.ContentHash = &hash
	}

	if err := r.store.BeginFile(wctx, f); err != nil {
		logger.Error("register file failed", "error", err)
		return FileResult{Filename: name, Status: StatusFailed, Error: err.Error()}
	}

	src, err := openRows(path)
	if err != nil {
		return r.fail(wctx, f, err, logger)
	}
	defer src.Close()

	head, rows := peekRows(src, r.cfg.HeaderRows)
	if err := src.Err(); err != nil {
		return r.fail(wctx, f, readError(err), logger)
	}
	hi := schema.HeaderRow(head)
	if hi < 0 {
		return r.fail(wctx, f, fmt.Errorf("%w: no %s header in the first %d rows", ErrHeaderNotFound, schema.Kind, r.cfg.HeaderRows), logger)
	}

	l, err := newLayout(schema, head[hi])
	if err != nil {
		return r.fail(wctx, f, err, logger)
	}

	for i := 0; i <= hi; i++ {
		rows.Next()
	}

	var (
		b         batch
		committed = *f
		ordinal   int
		seen      = make(map[string]struct{})
	)

	commit := func() error {
		if b.size() == 0 {
			return nil
		}
		if err := r.store.CommitBatch(wctx, f, schema, b.records, b.errs); err != nil {
			f.TotalRecords = committed.TotalRecords
			f.ImportedRecords = committed.ImportedRecords
			f.FailedRecords = committed.FailedRecords
			return fmt.Errorf("commit batch: %w", err)
		}

		imported := f.ImportedRecords - committed.ImportedRecords
		failed := f.FailedRecords - committed.FailedRecords
		j.update(func(p *Progress) {
			p.RowsImported += imported
			p.RowsFailed += failed
		})

		committed = *f
		b.reset()
		return nil
	}

	for rows.Next() {
		ordinal++
		cells := rows.Row()
		if blank(cells) {
			continue
		}

		f.TotalRecords++
		rec, rowErr := l.parse(ordinal, cells)
		if rowErr != nil {
			f.FailedRecords++
			b.errs = append(b.errs, *rowErr)
		} else {
			f.ImportedRecords++
			b.records = append(b.records, rec)
			seen[rec.NaturalKey] = struct{}{}
		}

		if b.size() < r.cfg.BatchSize {
			continue
		}

		if err := commit(); err != nil {
			return r.fail(wctx, f, err, logger)
		}

		if reason, stopped := r.stopped(ctx, j); stopped {
			return r.suspend(wctx, f, reason, logger)
		}
	}

	if err := rows.Err(); err != nil {
		if cerr := commit(); cerr != nil {
			logger.Warn("commit before read failure failed", "error", cerr)
		}
		return r.fail(wctx, f, fmt.Errorf("read rows: %w", err), logger)
	}

	if err := commit(); err != nil {
		return r.fail(wctx, f, err, logger)
	}

	// A full pass has seen every row of this copy, so rows left over from an
	// earlier copy of the same filename no longer belong to the file.
	pruned, err := r.store.PruneRows(wctx, f, schema, slices.Collect(maps.Keys(seen)))
	if err != nil {
		return r.fail(wctx, f, err, logger)
	}
	if pruned > 0 {
		logger.Info("stale rows removed", "rows", pruned)
	}

	now := time.Now().UTC()
	f.Status = DeriveStatus(f.TotalRecords, f.ImportedRecords, f.FailedRecords)
	f.CompletedAt = &now
	if f.FailedRecords > 0 {
		msg := fmt.Sprintf("%d of %d rows failed validation", f.FailedRecords, f.TotalRecords)
		f.ErrorText = &msg
	}

	if err := r.store.FinishFile(wctx, f); err != nil {
		logger.Error("finish file failed", "error", err)
	}

	r.metrics.ImportFile(schema.Kind, f.Status, f.ImportedRecords, f.FailedRecords)
	if f.ImportedRecords > 0 && r.notifier != nil {
		r.notifier.Notify(schema.Kind)
	}

	logger.Info(
		"file imported",
		"status", f.Status,
		"total", f.TotalRecords,
		"imported", f.ImportedRecords,
		"failed", f.FailedRecords,
	)
	return result(f, "")
}

// stopped reports whether the job should stop at this batch boundary.
func (r *runner) stopped(ctx context.Context, j *job) (string, bool) {
	if reason, _ := j.token.Reason(); j.token.Cancelled() {
		return reason, true
	}
	if ctx.Err() != nil {
		return "import interrupted by shutdown", true
	}
	return "", false
}

// suspend returns a partly imported file to pending so a later run resumes it.
func (r *runner) suspend(ctx context.Context, f *ImportedFile, reason string, logger *slog.Logger) FileResult {
	msg := fmt.Sprintf("%s after %d rows; import again to resume", reason, f.TotalRecords)
	f.Status = StatusPending
	f.ErrorText = &msg
	f.CompletedAt = nil

	if err := r.store.FinishFile(ctx, f); err != nil {
		logger.Error("suspend file failed", "error", err)
	}

	logger.Info("file import stopped", "rows", f.TotalRecords, "reason", reason)
	return result(f, msg)
}

// fail records a file-level failure. Rows already committed stay committed.
func (r *runner) fail(ctx context.Context, f *ImportedFile, cause error, logger *slog.Logger) FileResult {
	msg := cause.Error()
	now := time.Now().UTC()
	f.Status = StatusFailed
	f.ErrorText = &msg
	f.CompletedAt = &now

	if f.ID == uuid.Nil {
		if err := r.store.BeginFile(ctx, f); err != nil {
			logger.Error("register failed file failed", "error", err)
			return FileResult{Filename: f.Filename, Status: StatusFailed, Error: msg}
		}
		f.Status = StatusFailed
		f.ErrorText = &msg
		f.CompletedAt = &now
	}

	if err := r.store.FinishFile(ctx, f); err != nil {
		logger.Error("record file failure failed", "error", err)
	}

	r.metrics.ImportFile(f.FileType, StatusFailed, f.ImportedRecords, f.FailedRecords)
	logger.Warn("file import failed", "error", cause)
	return result(f, msg)
}

func result(f *ImportedFile, errText string) FileResult {
	return FileResult{
		FileID:   f.ID,
		Filename: f.Filename,
		Status:   f.Status,
		Total:    f.TotalRecords,
		Imported: f.ImportedRecords,
		Failed:   f.FailedRecords,
		Error:    errText,
	}
}
