package query_test

import (
	"testing"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/query"
)

func testProjection() *query.ProjectionMap {
	return query.NewProjectionMap("public", "imported_files", "f").
		Project("id", "ID").
		Project("filename", "Filename").
		Project("created_at", "CreatedAt")
}

func joinedProjection() *query.ProjectionMap {
	return query.NewProjectionMap("public", "download_session_files", "f").
		Project("id", "ID").
		Project("filename", "Filename").
		Join("public", "download_sessions", "s", "JOIN", "s.id = f.session_id").
		Project("source_type", "SourceType")
}

func ptr(s string) *string { return &s }

func TestProjectionMap(t *testing.T) {
	p := testProjection()

	if got := p.Table(); got != "public.imported_files f" {
		t.Errorf("Table() = %q", got)
	}
	if got := p.From(); got != "public.imported_files f" {
		t.Errorf("From() = %q", got)
	}
	if got := p.Columns(); got != "f.id, f.filename, f.created_at" {
		t.Errorf("Columns() = %q", got)
	}
	if got := len(p.ColumnList()); got != 3 {
		t.Errorf("ColumnList() length = %d, want 3", got)
	}

	tests := []struct {
		name     string
		viewName string
		want     string
	}{
		{"mapped", "Filename", "f.filename"},
		{"unmapped passthrough", "unknown", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Column(tt.viewName); got != tt.want {
				t.Errorf("Column(%q) = %q, want %q", tt.viewName, got, tt.want)
			}
		})
	}
}

func TestProjectionMapJoin(t *testing.T) {
	p := joinedProjection()

	wantFrom := "public.download_session_files f JOIN public.download_sessions s ON s.id = f.session_id"
	if got := p.From(); got != wantFrom {
		t.Errorf("From() = %q, want %q", got, wantFrom)
	}
	if got := p.Column("SourceType"); got != "s.source_type" {
		t.Errorf("Column(SourceType) = %q, want s.source_type", got)
	}
	if got := p.Columns(); got != "f.id, f.filename, s.source_type" {
		t.Errorf("Columns() = %q", got)
	}

	sql, args := query.NewBuilder(p).WhereEquals("SourceType", "claims").BuildCount()
	want := "SELECT COUNT(*) FROM " + wantFrom + " WHERE s.source_type = $1"
	if sql != want {
		t.Errorf("BuildCount() = %q, want %q", sql, want)
	}
	if len(args) != 1 || args[0] != "claims" {
		t.Errorf("args = %v", args)
	}
}

func TestParseSortFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []query.SortField
	}{
		{"empty", "", nil},
		{"ascending", "Filename", []query.SortField{{Field: "Filename"}}},
		{"descending", "-CreatedAt", []query.SortField{{Field: "CreatedAt", Descending: true}}},
		{"mixed with spaces", " Filename , -CreatedAt ,", []query.SortField{
			{Field: "Filename"},
			{Field: "CreatedAt", Descending: true},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := query.ParseSortFields(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("length = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBuilderStatements(t *testing.T) {
	base := "SELECT f.id, f.filename, f.created_at FROM public.imported_files f"

	tests := []struct {
		name     string
		build    func() (string, []any)
		wantSQL  string
		wantArgs int
	}{
		{
			name:    "build",
			build:   query.NewBuilder(testProjection()).Build,
			wantSQL: base,
		},
		{
			name:    "count",
			build:   query.NewBuilder(testProjection()).BuildCount,
			wantSQL: "SELECT COUNT(*) FROM public.imported_files f",
		},
		{
			name: "page with default sort",
			build: func() (string, []any) {
				return query.NewBuilder(testProjection(), query.SortField{Field: "CreatedAt", Descending: true}).BuildPage(2, 10)
			},
			wantSQL: base + " ORDER BY f.created_at DESC LIMIT 10 OFFSET 10",
		},
		{
			name: "single",
			build: func() (string, []any) {
				return query.NewBuilder(testProjection()).BuildSingle("ID", 7)
			},
			wantSQL:  base + " WHERE f.id = $1",
			wantArgs: 1,
		},
		{
			name: "equals and contains",
			build: query.NewBuilder(testProjection()).
				WhereEquals("Filename", "rep_10670_01.xls").
				WhereContains("ID", ptr("1")).
				Build,
			wantSQL:  base + " WHERE f.filename = $1 AND f.id ILIKE $2",
			wantArgs: 2,
		},
		{
			name: "nil and empty skipped",
			build: query.NewBuilder(testProjection()).
				WhereEquals("Filename", nil).
				WhereContains("Filename", ptr("")).
				WhereSearch(nil, "Filename").
				WhereIn("ID", nil).
				Build,
			wantSQL: base,
		},
		{
			name: "in",
			build: query.NewBuilder(testProjection()).
				WhereIn("ID", []any{1, 2, 3}).
				Build,
			wantSQL:  base + " WHERE f.id IN ($1, $2, $3)",
			wantArgs: 3,
		},
		{
			name: "count by",
			build: func() (string, []any) {
				return query.NewBuilder(testProjection()).WhereEquals("Filename", "a.xls").BuildCountBy("ID")
			},
			wantSQL:  "SELECT f.id, COUNT(*) FROM public.imported_files f WHERE f.filename = $1 GROUP BY f.id",
			wantArgs: 1,
		},
		{
			name: "any in",
			build: query.NewBuilder(testProjection()).
				WhereAnyIn([]string{"ID", "Filename"}, []any{"a", "b"}).
				Build,
			wantSQL:  base + " WHERE (f.id IN ($1, $2) OR f.filename IN ($3, $4))",
			wantArgs: 4,
		},
		{
			name: "nullable",
			build: query.NewBuilder(testProjection()).
				WhereNullable("Filename", nil).
				Build,
			wantSQL: base + " WHERE f.filename IS NULL",
		},
		{
			name: "search",
			build: query.NewBuilder(testProjection()).
				WhereSearch(ptr("rep"), "Filename", "ID").
				Build,
			wantSQL:  base + " WHERE (f.filename ILIKE $1 OR f.id ILIKE $2)",
			wantArgs: 2,
		},
		{
			name: "range both bounds",
			build: query.NewBuilder(testProjection()).
				WhereEquals("Filename", "a.xls").
				WhereRange("CreatedAt", "2025-01-01", "2025-01-31").
				Build,
			wantSQL:  base + " WHERE f.filename = $1 AND f.created_at >= $2 AND f.created_at <= $3",
			wantArgs: 3,
		},
		{
			name: "range lower bound only",
			build: query.NewBuilder(testProjection()).
				WhereRange("CreatedAt", "2025-01-01", nil).
				Build,
			wantSQL:  base + " WHERE f.created_at >= $1",
			wantArgs: 1,
		},
		{
			name: "explicit order overrides default",
			build: query.NewBuilder(testProjection(), query.SortField{Field: "ID"}).
				OrderByFields([]query.SortField{{Field: "Filename", Descending: true}}).
				Build,
			wantSQL: base + " ORDER BY f.filename DESC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := tt.build()
			if sql != tt.wantSQL {
				t.Errorf("sql = %q, want %q", sql, tt.wantSQL)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("args = %v, want %d args", args, tt.wantArgs)
			}
		})
	}
}
