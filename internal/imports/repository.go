package imports

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

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

func (s *pgStore) BeginFile(ctx context.Context, f *ImportedFile) error {
	q := fmt.Sprintf(`
		INSERT INTO imported_files AS i (id, filename, file_type, facility_code, content_hash, status, started_at)
		VALUES ($1, $2, $3, $4, $5, 'processing', now())
		ON CONFLICT (filename) DO UPDATE SET
			file_type = EXCLUDED.file_type,
			facility_code = EXCLUDED.facility_code,
			content_hash = EXCLUDED.content_hash,
			status = 'processing',
			total_records = 0,
			imported_records = 0,
			failed_records = 0,
			started_at = now(),
			completed_at = NULL,
			error_text = NULL,
			updated_at = now()
		RETURNING %s`, fileColumns)

	begun, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (ImportedFile, error) {
		file, err := repository.QueryOne(ctx, tx, q, []any{
			uuid.New(),
			f.Filename,
			f.FileType,
			f.FacilityCode,
			f.ContentHash,
		}, scanFile)
		if err != nil {
			return file, err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM import_row_errors WHERE file_id = $1", file.ID); err != nil {
			return file, err
		}
		return file, nil
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	*f = begun
	return nil
}

func (s *pgStore) CommitBatch(
	ctx context.Context,
	f *ImportedFile,
	schema *Schema,
	records []Record,
	errs []RowError,
) error {
	_, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		if len(records) > 0 {
			stmt, err := tx.PrepareContext(ctx, upsertSQL(schema))
			if err != nil {
				return struct{}{}, err
			}
			defer stmt.Close()

			for _, rec := range records {
				args := append([]any{f.ID, rec.RowNumber, rec.NaturalKey}, rec.Args(schema)...)
				if _, err := stmt.ExecContext(ctx, args...); err != nil {
					return struct{}{}, fmt.Errorf("upsert row %d: %w", rec.RowNumber, err)
				}
			}
		}

		if len(errs) > 0 {
			stmt, err := tx.PrepareContext(ctx, `
				INSERT INTO import_row_errors (file_id, row_number, field, message)
				VALUES ($1, $2, NULLIF($3, ''), $4)`)
			if err != nil {
				return struct{}{}, err
			}
			defer stmt.Close()

			for _, e := range errs {
				if _, err := stmt.ExecContext(ctx, f.ID, e.RowNumber, e.Field, e.Message); err != nil {
					return struct{}{}, fmt.Errorf("record row %d error: %w", e.RowNumber, err)
				}
			}
		}

		err := repository.ExecExpectOne(
			ctx, tx, `
			UPDATE imported_files SET
				total_records = $2, imported_records = $3, failed_records = $4, updated_at = now()
			WHERE id = $1`,
			f.ID,
			f.TotalRecords,
			f.ImportedRecords,
			f.FailedRecords,
		)
		return struct{}{}, err
	})

	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return nil
}

func (s *pgStore) PruneRows(ctx context.Context, f *ImportedFile, schema *Schema, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	n, err := repository.ExecAffected(ctx, s.db, pruneSQL(schema), f.ID, keep)
	if err != nil {
		return 0, fmt.Errorf("prune %s rows: %w", schema.Table, err)
	}
	return n, nil
}

func (s *pgStore) FinishFile(ctx context.Context, f *ImportedFile) error {
	q := fmt.Sprintf(`
		UPDATE imported_files i SET
			status = $2, total_records = $3, imported_records = $4, failed_records = $5,
			error_text = $6, completed_at = $7, updated_at = now()
		WHERE i.id = $1
		RETURNING %s`, fileColumns)

	finished, err := repository.QueryOne(ctx, s.db, q, []any{
		f.ID,
		f.Status,
		f.TotalRecords,
		f.ImportedRecords,
		f.FailedRecords,
		f.ErrorText,
		f.CompletedAt,
	}, scanFile)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	*f = finished
	return nil
}

func (s *pgStore) FindFile(ctx context.Context, id uuid.UUID) (*ImportedFile, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	f, err := repository.QueryOne(ctx, s.db, q, args, scanFile)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &f, nil
}

func (s *pgStore) ListFiles(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[ImportedFile], error) {
	page.Normalize(s.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Filename", "FacilityCode")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count imported files: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	files, err := repository.QueryMany(ctx, s.db, pageSQL, pageArgs, scanFile)
	if err != nil {
		return nil, fmt.Errorf("query imported files: %w", err)
	}

	result := pagination.NewPageResult(files, total, page.Page, page.PageSize)
	return &result, nil
}

func (s *pgStore) RowErrors(ctx context.Context, fileID uuid.UUID) ([]RowError, error) {
	errs, err := repository.QueryMany(ctx, s.db, `
		SELECT row_number, field, message FROM import_row_errors
		WHERE file_id = $1
		ORDER BY row_number, id`,
		[]any{fileID}, scanRowError)
	if err != nil {
		return nil, fmt.Errorf("query row errors: %w", err)
	}
	return errs, nil
}

func (s *pgStore) FileStatuses(ctx context.Context, filenames []string) (map[string]string, error) {
	out := make(map[string]string, len(filenames))
	if len(filenames) == 0 {
		return out, nil
	}

	type status struct{ name, status string }
	rows, err := repository.QueryMany(ctx, s.db,
		"SELECT filename, status FROM imported_files WHERE filename = ANY($1)",
		[]any{filenames},
		func(sc repository.Scanner) (status, error) {
			var st status
			err := sc.Scan(&st.name, &st.status)
			return st, err
		})
	if err != nil {
		return nil, fmt.Errorf("query file statuses: %w", err)
	}

	for _, r := range rows {
		out[r.name] = r.status
	}
	return out, nil
}

func (s *pgStore) IncompleteFiles(ctx context.Context, kind string) ([]string, error) {
	names, err := repository.QueryMany(ctx, s.db, `
		SELECT filename FROM imported_files
		WHERE file_type = $1 AND status <> 'completed'
		ORDER BY filename`,
		[]any{kind},
		func(sc repository.Scanner) (string, error) {
			var n string
			err := sc.Scan(&n)
			return n, err
		})
	if err != nil {
		return nil, fmt.Errorf("query incomplete files: %w", err)
	}
	return names, nil
}

func (s *pgStore) ResetProcessing(ctx context.Context) (int64, error) {
	return repository.ExecAffected(ctx, s.db, `
		UPDATE imported_files SET
			status = 'pending',
			error_text = 'interrupted by a service restart; import again to resume',
			updated_at = now()
		WHERE status = 'processing'`)
}

// upsertSQL renders the schema's insert-or-update statement keyed by
// (file_id, natural_key).
func upsertSQL(s *Schema) string {
	cols := append([]string{"file_id", "row_number", "natural_key"}, s.StorageColumns()...)

	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	sets := make([]string, 0, len(cols))
	for _, c := range cols[1:] {
		if c == "natural_key" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	sets = append(sets, "updated_at = now()")

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (file_id, natural_key) DO UPDATE SET %s",
		s.Table,
		strings.Join(cols, ", "),
		strings.Join(params, ", "),
		strings.Join(sets, ", "),
	)
}

// pruneSQL renders the delete of a file's rows absent from its latest copy.
func pruneSQL(s *Schema) string {
	return fmt.Sprintf(
		"DELETE FROM %s WHERE file_id = $1 AND NOT (natural_key = ANY($2))",
		s.Table,
	)
}
