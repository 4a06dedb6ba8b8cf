package imports_test

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/imports"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
)

// memStore is an in-memory imports.Store. Domain rows are keyed by table and
// (file id, natural key) like the unique index they model.
type memStore struct {
	mu     sync.Mutex
	files  map[uuid.UUID]imports.ImportedFile
	byName map[string]uuid.UUID
	rows   map[string]map[string]imports.Record
	errs   map[uuid.UUID][]imports.RowError

	// gate, when set, blocks each CommitBatch until it is closed. entered,
	// when set, is signalled as a commit reaches the gate.
	gate    chan struct{}
	entered chan struct{}
}

func newMemStore() *memStore {
	return &memStore{
		files:  make(map[uuid.UUID]imports.ImportedFile),
		byName: make(map[string]uuid.UUID),
		rows:   make(map[string]map[string]imports.Record),
		errs:   make(map[uuid.UUID][]imports.RowError),
	}
}

func (m *memStore) BeginFile(_ context.Context, f *imports.ImportedFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	stored := imports.ImportedFile{
		ID:        uuid.New(),
		CreatedAt: now,
	}
	if id, ok := m.byName[f.Filename]; ok {
		stored = m.files[id]
	}

	stored.Filename = f.Filename
	stored.FileType = f.FileType
	stored.FacilityCode = f.FacilityCode
	stored.ContentHash = f.ContentHash
	stored.Status = imports.StatusProcessing
	stored.TotalRecords = 0
	stored.ImportedRecords = 0
	stored.FailedRecords = 0
	stored.StartedAt = &now
	stored.CompletedAt = nil
	stored.ErrorText = nil
	stored.UpdatedAt = now

	m.files[stored.ID] = stored
	m.byName[stored.Filename] = stored.ID
	delete(m.errs, stored.ID)

	*f = stored
	return nil
}

func (m *memStore) CommitBatch(
	_ context.Context,
	f *imports.ImportedFile,
	schema *imports.Schema,
	records []imports.Record,
	errs []imports.RowError,
) error {
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
	stored, ok := m.files[f.ID]
	if !ok {
		m.mu.Unlock()
		return imports.ErrNotFound
	}

	table := m.rows[schema.Table]
	if table == nil {
		table = make(map[string]imports.Record)
		m.rows[schema.Table] = table
	}
	for _, rec := range records {
		table[f.ID.String()+"|"+rec.NaturalKey] = rec
	}
	m.errs[f.ID] = append(m.errs[f.ID], errs...)

	stored.TotalRecords = f.TotalRecords
	stored.ImportedRecords = f.ImportedRecords
	stored.FailedRecords = f.FailedRecords
	stored.UpdatedAt = time.Now().UTC()
	m.files[f.ID] = stored
	m.mu.Unlock()
	return nil
}

func (m *memStore) PruneRows(
	_ context.Context,
	f *imports.ImportedFile,
	schema *imports.Schema,
	keep []string,
) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	prefix := f.ID.String() + "|"
	for k, rec := range m.rows[schema.Table] {
		if strings.HasPrefix(k, prefix) && !slices.Contains(keep, rec.NaturalKey) {
			delete(m.rows[schema.Table], k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) FinishFile(_ context.Context, f *imports.ImportedFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.files[f.ID]
	if !ok {
		return imports.ErrNotFound
	}

	stored.Status = f.Status
	stored.TotalRecords = f.TotalRecords
	stored.ImportedRecords = f.ImportedRecords
	stored.FailedRecords = f.FailedRecords
	stored.ErrorText = f.ErrorText
	stored.CompletedAt = f.CompletedAt
	stored.UpdatedAt = time.Now().UTC()
	m.files[f.ID] = stored

	*f = stored
	return nil
}

func (m *memStore) FindFile(_ context.Context, id uuid.UUID) (*imports.ImportedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[id]
	if !ok {
		return nil, imports.ErrNotFound
	}
	return &f, nil
}

func (m *memStore) ListFiles(
	_ context.Context,
	page pagination.PageRequest,
	filters imports.Filters,
) (*pagination.PageResult[imports.ImportedFile], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []imports.ImportedFile
	for _, f := range m.files {
		if filters.FileType != nil && f.FileType != *filters.FileType {
			continue
		}
		if filters.Status != nil && f.Status != *filters.Status {
			continue
		}
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b imports.ImportedFile) int {
		return cmp.Compare(a.Filename, b.Filename)
	})

	result := pagination.NewPageResult(out, len(out), 1, max(len(out), 1))
	return &result, nil
}

func (m *memStore) RowErrors(_ context.Context, fileID uuid.UUID) ([]imports.RowError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	errs := slices.Clone(m.errs[fileID])
	slices.SortStableFunc(errs, func(a, b imports.RowError) int {
		return cmp.Compare(a.RowNumber, b.RowNumber)
	})
	return errs, nil
}

func (m *memStore) FileStatuses(_ context.Context, filenames []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string)
	for _, name := range filenames {
		if id, ok := m.byName[name]; ok {
			out[name] = m.files[id].Status
		}
	}
	return out, nil
}

func (m *memStore) IncompleteFiles(_ context.Context, kind string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var names []string
	for _, f := range m.files {
		if f.FileType == kind && f.Status != imports.StatusCompleted {
			names = append(names, f.Filename)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (m *memStore) ResetProcessing(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, f := range m.files {
		if f.Status == imports.StatusProcessing {
			f.Status = imports.StatusPending
			m.files[id] = f
			n++
		}
	}
	return n, nil
}

// file returns the stored row for filename.
func (m *memStore) file(name string) (imports.ImportedFile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byName[name]
	if !ok {
		return imports.ImportedFile{}, false
	}
	return m.files[id], true
}

// records returns table's rows ordered by natural key.
func (m *memStore) records(table string) []imports.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []imports.Record
	for _, rec := range m.rows[table] {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b imports.Record) int {
		return cmp.Compare(a.NaturalKey, b.NaturalKey)
	})
	return out
}

// put seeds a registered file row.
func (m *memStore) put(f imports.ImportedFile) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	m.files[f.ID] = f
	m.byName[f.Filename] = f.ID
}
