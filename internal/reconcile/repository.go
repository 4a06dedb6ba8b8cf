package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

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

func (s *pgStore) LoadEntries(ctx context.Context, src Source, keys []string) ([]Entry, error) {
	q := entriesSQL(src, keys != nil)

	var args []any
	if keys != nil {
		args = []any{keys}
	}

	entries, err := repository.QueryMany(ctx, s.db, q, args, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("load %s entries: %w", src.Kind, err)
	}
	return entries, nil
}

// entriesSQL selects the latest row per key of src. Rows from the most
// recently completed file win; ties go to the greater file id.
func entriesSQL(src Source, filtered bool) string {
	date := "x." + src.DateColumn
	if src.Timestamp {
		date = fmt.Sprintf("(x.%s AT TIME ZONE 'UTC')::date", src.DateColumn)
	}

	where := fmt.Sprintf("x.%s IS NOT NULL AND x.%s <> ''", src.KeyColumn, src.KeyColumn)
	if filtered {
		where += fmt.Sprintf(" AND x.%s = ANY($1)", src.KeyColumn)
	}

	return fmt.Sprintf(`
		SELECT DISTINCT ON (x.%[1]s)
			x.%[1]s, x.%[2]s, %[3]s, COALESCE(x.%[4]s, 0)
		FROM %[5]s x
		LEFT JOIN imported_files f ON f.id = x.file_id
		WHERE %[6]s
		ORDER BY x.%[1]s, f.completed_at DESC NULLS LAST, f.id DESC NULLS LAST`,
		src.KeyColumn, src.PatientColumn, date, src.AmountColumn, src.Table, where)
}

func (s *pgStore) ReplaceResults(ctx context.Context, run Run, keys []string, results []Result) error {
	_, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		var err error
		if keys == nil {
			_, err = tx.ExecContext(ctx, "DELETE FROM reconciliation_results WHERE pair = $1", run.Pair)
		} else {
			_, err = tx.ExecContext(ctx,
				"DELETE FROM reconciliation_results WHERE pair = $1 AND match_key = ANY($2)",
				run.Pair, keys)
		}
		if err != nil {
			return struct{}{}, err
		}

		if len(results) > 0 {
			stmt, err := tx.PrepareContext(ctx, `
				INSERT INTO reconciliation_results
					(pair, match_key, status, key_a, key_b, amount_a, amount_b, delta, computed_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
			if err != nil {
				return struct{}{}, err
			}
			defer stmt.Close()

			for _, r := range results {
				if _, err := stmt.ExecContext(ctx,
					run.Pair,
					r.MatchKey,
					r.Status,
					r.KeyA,
					r.KeyB,
					nullDecimal(r.AmountA),
					nullDecimal(r.AmountB),
					nullDecimal(r.Delta),
					run.ComputedAt,
				); err != nil {
					return struct{}{}, fmt.Errorf("insert %s: %w", r.MatchKey, err)
				}
			}
		}

		if keys != nil {
			return struct{}{}, nil
		}

		counts, err := json.Marshal(run.Counts)
		if err != nil {
			return struct{}{}, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reconciliation_runs (pair, computed_at, trigger, counts)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (pair) DO UPDATE SET
				computed_at = EXCLUDED.computed_at,
				trigger = EXCLUDED.trigger,
				counts = EXCLUDED.counts`,
			run.Pair, run.ComputedAt, run.Trigger, string(counts))
		return struct{}{}, err
	})
	if err != nil {
		return repository.MapError(err, ErrUnknownPair, ErrDuplicate)
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func (s *pgStore) ListResults(
	ctx context.Context,
	pair string,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Result], error) {
	page.Normalize(s.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "MatchKey")

	filters.Apply(qb, pair)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count results: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	results, err := repository.QueryMany(ctx, s.db, pageSQL, pageArgs, scanResult)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}

	result := pagination.NewPageResult(results, total, page.Page, page.PageSize)
	return &result, nil
}

func (s *pgStore) Counts(ctx context.Context, pair string, filters Filters) (map[string]int, error) {
	qb := filters.Apply(query.NewBuilder(projection), pair)
	q, args := qb.BuildCountBy("Status")

	type tally struct {
		status string
		n      int
	}
	rows, err := repository.QueryMany(ctx, s.db, q, args, func(sc repository.Scanner) (tally, error) {
		var t tally
		err := sc.Scan(&t.status, &t.n)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	counts := make(map[string]int, len(Statuses))
	for _, st := range Statuses {
		counts[st] = 0
	}
	for _, r := range rows {
		counts[r.status] = r.n
	}
	return counts, nil
}

func (s *pgStore) LastRun(ctx context.Context, pair string) (*Run, error) {
	run, err := repository.QueryOne(ctx, s.db,
		"SELECT pair, computed_at, trigger, counts FROM reconciliation_runs WHERE pair = $1",
		[]any{pair},
		func(sc repository.Scanner) (Run, error) {
			var (
				r   Run
				raw []byte
			)
			if err := sc.Scan(&r.Pair, &r.ComputedAt, &r.Trigger, &raw); err != nil {
				return r, err
			}
			err := json.Unmarshal(raw, &r.Counts)
			return r, err
		})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last run: %w", err)
	}
	return &run, nil
}

func (s *pgStore) LatestImport(ctx context.Context, kinds []string) (*time.Time, error) {
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(completed_at) FROM imported_files
		WHERE file_type = ANY($1) AND status IN ('completed', 'partial')`,
		kinds,
	).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("query latest import: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Time, nil
}
