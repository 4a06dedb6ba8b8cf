package downloads

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/query"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/repository"
)

type pgStore struct {
	db         *sql.DB
	pagination pagination.Config
}

// NewStore creates the Postgres-backed Store.
func NewStore(db *sql.DB, pagination pagination.Config) Store {
	return &pgStore{db: db, pagination: pagination}
}

func (s *pgStore) CreateSession(ctx context.Context, ss *Session) error {
	q := fmt.Sprintf(`
		INSERT INTO download_sessions AS s (id, source_type, status, params, max_workers, cancellable, resumable)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s`, sessionColumns)

	created, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (Session, error) {
		return repository.QueryOne(ctx, tx, q, []any{
			ss.ID,
			ss.SourceType,
			ss.Status,
			marshalParams(ss.Params),
			ss.MaxWorkers,
			ss.Cancellable,
			ss.Resumable,
		}, scanSession)
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	*ss = created
	return nil
}

func (s *pgStore) SaveSession(ctx context.Context, ss *Session) error {
	var detail []byte
	if ss.ErrorDetail != nil {
		detail, _ = json.Marshal(ss.ErrorDetail)
	}

	q := fmt.Sprintf(`
		UPDATE download_sessions s SET
			status = $2, total_discovered = $3, already_downloaded = $4, to_download = $5,
			processed = $6, downloaded = $7, skipped = $8, failed = $9,
			cancellable = $10, resumable = $11, resume_count = $12, error_detail = $13,
			started_at = $14, completed_at = $15, cancelled_at = $16, updated_at = now()
		WHERE s.id = $1
		RETURNING %s`, sessionColumns)

	saved, err := repository.QueryOne(ctx, s.db, q, []any{
		ss.ID,
		ss.Status,
		ss.TotalDiscovered,
		ss.AlreadyDownloaded,
		ss.ToDownload,
		ss.Processed,
		ss.Downloaded,
		ss.Skipped,
		ss.Failed,
		ss.Cancellable,
		ss.Resumable,
		ss.ResumeCount,
		detail,
		ss.StartedAt,
		ss.CompletedAt,
		ss.CancelledAt,
	}, scanSession)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	ss.UpdatedAt = saved.UpdatedAt
	return nil
}

func (s *pgStore) FindSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	q, args := query.NewBuilder(sessionProjection).BuildSingle("ID", id)

	ss, err := repository.QueryOne(ctx, s.db, q, args, scanSession)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &ss, nil
}

func (s *pgStore) ListSessions(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Session], error) {
	page.Normalize(s.pagination)

	qb := query.NewBuilder(sessionProjection, defaultSort)
	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	sessions, err := repository.QueryMany(ctx, s.db, pageSQL, pageArgs, scanSession)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	result := pagination.NewPageResult(sessions, total, page.Page, page.PageSize)
	return &result, nil
}

func (s *pgStore) InterruptedSessions(ctx context.Context) ([]Session, error) {
	q := fmt.Sprintf(
		"SELECT %s FROM %s WHERE s.status IN ($1, $2, $3) ORDER BY s.created_at",
		sessionColumns, sessionProjection.From(),
	)

	sessions, err := repository.QueryMany(ctx, s.db, q, []any{
		StatusPending, StatusDiscovering, StatusDownloading,
	}, scanSession)
	if err != nil {
		return nil, fmt.Errorf("query interrupted sessions: %w", err)
	}
	return sessions, nil
}

func (s *pgStore) UpsertFiles(ctx context.Context, sessionID uuid.UUID, files []File) error {
	q := `
		INSERT INTO download_session_files AS f
			(id, session_id, filename, source_url, status, skip_reason, size_bytes, path, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, filename) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			status = EXCLUDED.status,
			skip_reason = EXCLUDED.skip_reason,
			size_bytes = EXCLUDED.size_bytes,
			path = EXCLUDED.path,
			content_hash = EXCLUDED.content_hash,
			error_message = NULL,
			updated_at = now()
		WHERE f.status IN ('pending', 'downloading', 'failed')`

	_, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return struct{}{}, err
		}
		defer stmt.Close()

		for _, f := range files {
			if _, err := stmt.ExecContext(
				ctx,
				uuid.New(),
				sessionID,
				f.Filename,
				f.SourceURL,
				f.Status,
				f.SkipReason,
				f.SizeBytes,
				f.Path,
				f.ContentHash,
			); err != nil {
				return struct{}{}, fmt.Errorf("upsert %s: %w", f.Filename, err)
			}
		}
		return struct{}{}, nil
	})

	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return nil
}

func (s *pgStore) SaveFile(ctx context.Context, f *File) error {
	q := `
		UPDATE download_session_files SET
			status = $2, skip_reason = $3, size_bytes = $4, path = $5, content_hash = $6,
			worker_id = $7, retry_count = $8, error_message = $9, duration_ms = $10,
			completed_at = $11, updated_at = now()
		WHERE id = $1`

	err := repository.ExecExpectOne(
		ctx, s.db, q,
		f.ID,
		f.Status,
		f.SkipReason,
		f.SizeBytes,
		f.Path,
		f.ContentHash,
		f.WorkerID,
		f.RetryCount,
		f.ErrorMessage,
		f.DurationMS,
		f.CompletedAt,
	)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return nil
}

func (s *pgStore) SessionFiles(ctx context.Context, sessionID uuid.UUID, status *string) ([]File, error) {
	qb := query.
		NewBuilder(fileProjection, query.SortField{Field: "Filename"}).
		WhereEquals("SessionID", sessionID).
		WhereEquals("Status", status)

	q, args := qb.Build()
	files, err := repository.QueryMany(ctx, s.db, q, args, scanFile)
	if err != nil {
		return nil, fmt.Errorf("query session files: %w", err)
	}
	return files, nil
}

func (s *pgStore) Tally(ctx context.Context, sessionID uuid.UUID) (Tally, error) {
	q := `
		SELECT
			count(*),
			count(*) FILTER (WHERE status IN ('pending', 'downloading')),
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE status = 'skipped' AND skip_reason = 'already-exists'),
			count(*) FILTER (WHERE status = 'skipped' AND skip_reason = 'duplicate-hash'),
			count(*) FILTER (WHERE status = 'failed')
		FROM download_session_files
		WHERE session_id = $1`

	var t Tally
	err := s.db.QueryRowContext(ctx, q, sessionID).Scan(
		&t.Total,
		&t.Pending,
		&t.Completed,
		&t.SkippedExisting,
		&t.SkippedDuplicate,
		&t.Failed,
	)
	if err != nil {
		return t, fmt.Errorf("tally session files: %w", err)
	}
	return t, nil
}

func (s *pgStore) KnownHashes(ctx context.Context, filenames []string) (map[string]string, error) {
	hashes := make(map[string]string, len(filenames))
	if len(filenames) == 0 {
		return hashes, nil
	}

	q := `
		SELECT DISTINCT ON (filename) filename, content_hash
		FROM (
			SELECT filename, content_hash, completed_at AS at
			FROM download_session_files
			WHERE status = 'completed' AND content_hash IS NOT NULL AND filename = ANY($1)
			UNION ALL
			SELECT filename, content_hash, completed_at AS at
			FROM imported_files
			WHERE content_hash IS NOT NULL AND filename = ANY($1)
		) known
		ORDER BY filename, at DESC NULLS LAST`

	rows, err := s.db.QueryContext(ctx, q, filenames)
	if err != nil {
		return nil, fmt.Errorf("query known hashes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, hash string
		if err := rows.Scan(&name, &hash); err != nil {
			return nil, err
		}
		hashes[name] = hash
	}
	return hashes, rows.Err()
}

func (s *pgStore) AppendEvent(ctx context.Context, sessionID uuid.UUID, eventType, message string) error {
	_, err := s.db.ExecContext(
		ctx,
		"INSERT INTO download_session_events (session_id, event_type, message) VALUES ($1, $2, $3)",
		sessionID, eventType, message,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *pgStore) Events(ctx context.Context, sessionID uuid.UUID) ([]Event, error) {
	q, args := query.
		NewBuilder(eventProjection, query.SortField{Field: "ID"}).
		WhereEquals("SessionID", sessionID).
		Build()

	events, err := repository.QueryMany(ctx, s.db, q, args, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return events, nil
}

func (s *pgStore) ListFailed(
	ctx context.Context,
	page pagination.PageRequest,
	filters FailedFilters,
) (*pagination.PageResult[FailedFile], error) {
	page.Normalize(s.pagination)

	qb := query.NewBuilder(failedProjection, failedSort)
	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed files: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	files, err := repository.QueryMany(ctx, s.db, pageSQL, pageArgs, scanFailedFile)
	if err != nil {
		return nil, fmt.Errorf("query failed files: %w", err)
	}

	result := pagination.NewPageResult(files, total, page.Page, page.PageSize)
	return &result, nil
}

// resetFailedSQL returns failed files of finished sessions to pending.
// $1 and $2 are the optional source type and filename filters.
const resetFailedSQL = `
	UPDATE download_session_files f SET
		status = 'pending', retry_count = 0, error_message = NULL, worker_id = NULL, updated_at = now()
	FROM download_sessions s
	WHERE f.session_id = s.id
		AND f.status = 'failed'
		AND s.status IN ('completed', 'failed', 'cancelled')
		AND ($1::text IS NULL OR s.source_type = $1)
		AND ($2::text IS NULL OR f.filename = $2)
	RETURNING f.session_id`

const markResumableSQL = `
	UPDATE download_sessions SET resumable = true, updated_at = now()
	WHERE id = ANY($1)`

const resetEventSQL = `
	INSERT INTO download_session_events (session_id, event_type, message)
	SELECT id, 'reset', 'failed files reset for retry' FROM unnest($1::uuid[]) AS id`

func (s *pgStore) ResetFailed(ctx context.Context, filters FailedFilters) (int64, []uuid.UUID, error) {
	type reset struct {
		count    int64
		sessions []uuid.UUID
	}

	r, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (reset, error) {
		rows, err := tx.QueryContext(ctx, resetFailedSQL, filters.SourceType, filters.Filename)
		if err != nil {
			return reset{}, err
		}

		var out reset
		seen := make(map[uuid.UUID]bool)
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return reset{}, err
			}
			out.count++
			if !seen[id] {
				seen[id] = true
				out.sessions = append(out.sessions, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return reset{}, err
		}

		if len(out.sessions) == 0 {
			return out, nil
		}

		ids := make([]string, len(out.sessions))
		for i, id := range out.sessions {
			ids[i] = id.String()
		}
		if _, err := tx.ExecContext(ctx, markResumableSQL, ids); err != nil {
			return reset{}, err
		}
		if _, err := tx.ExecContext(ctx, resetEventSQL, ids); err != nil {
			return reset{}, err
		}
		return out, nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("reset failed files: %w", err)
	}

	return r.count, r.sessions, nil
}
