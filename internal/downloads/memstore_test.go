package downloads_test

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/downloads"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
)

// memStore is an in-memory downloads.Store.
type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]downloads.Session
	files    map[uuid.UUID][]downloads.File
	events   map[uuid.UUID][]downloads.Event
	imported map[string]string
	eventSeq int64
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[uuid.UUID]downloads.Session),
		files:    make(map[uuid.UUID][]downloads.File),
		events:   make(map[uuid.UUID][]downloads.Event),
		imported: make(map[string]string),
	}
}

func (m *memStore) CreateSession(_ context.Context, s *downloads.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return downloads.ErrDuplicate
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	m.sessions[s.ID] = *s
	return nil
}

func (m *memStore) SaveSession(_ context.Context, s *downloads.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; !ok {
		return downloads.ErrNotFound
	}
	s.UpdatedAt = time.Now().UTC()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memStore) FindSession(_ context.Context, id uuid.UUID) (*downloads.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, downloads.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) ListSessions(
	_ context.Context,
	page pagination.PageRequest,
	filters downloads.Filters,
) (*pagination.PageResult[downloads.Session], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []downloads.Session
	for _, s := range m.sessions {
		if filters.SourceType != nil && s.SourceType != *filters.SourceType {
			continue
		}
		if filters.Status != nil && s.Status != *filters.Status {
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b downloads.Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	result := pagination.NewPageResult(out, len(out), 1, max(len(out), 1))
	return &result, nil
}

func (m *memStore) InterruptedSessions(_ context.Context) ([]downloads.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []downloads.Session
	for _, s := range m.sessions {
		if !s.Terminal() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) UpsertFiles(_ context.Context, sessionID uuid.UUID, files []downloads.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.files[sessionID]
	for _, f := range files {
		i := slices.IndexFunc(rows, func(r downloads.File) bool { return r.Filename == f.Filename })
		if i < 0 {
			f.ID = uuid.New()
			f.SessionID = sessionID
			f.CreatedAt = time.Now().UTC()
			f.UpdatedAt = f.CreatedAt
			rows = append(rows, f)
			continue
		}

		switch rows[i].Status {
		case downloads.FilePending, downloads.FileDownloading, downloads.FileFailed:
			f.ID = rows[i].ID
			f.SessionID = sessionID
			f.RetryCount = rows[i].RetryCount
			f.CreatedAt = rows[i].CreatedAt
			f.UpdatedAt = time.Now().UTC()
			rows[i] = f
		}
	}
	m.files[sessionID] = rows
	return nil
}

func (m *memStore) SaveFile(_ context.Context, f *downloads.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sid, rows := range m.files {
		for i := range rows {
			if rows[i].ID == f.ID {
				saved := *f
				saved.SessionID = sid
				saved.UpdatedAt = time.Now().UTC()
				rows[i] = saved
				return nil
			}
		}
	}
	return downloads.ErrNotFound
}

func (m *memStore) SessionFiles(_ context.Context, sessionID uuid.UUID, status *string) ([]downloads.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []downloads.File
	for _, f := range m.files[sessionID] {
		if status == nil || f.Status == *status {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b downloads.File) int { return cmp.Compare(a.Filename, b.Filename) })
	return out, nil
}

func (m *memStore) Tally(_ context.Context, sessionID uuid.UUID) (downloads.Tally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var t downloads.Tally
	for _, f := range m.files[sessionID] {
		t.Total++
		switch f.Status {
		case downloads.FilePending:
			t.Pending++
		case downloads.FileCompleted:
			t.Completed++
		case downloads.FileFailed:
			t.Failed++
		case downloads.FileSkipped:
			if f.SkipReason != nil && *f.SkipReason == downloads.SkipDuplicateHash {
				t.SkippedDuplicate++
			} else {
				t.SkippedExisting++
			}
		}
	}
	return t, nil
}

func (m *memStore) KnownHashes(_ context.Context, filenames []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string)
	for _, name := range filenames {
		if h, ok := m.imported[name]; ok {
			out[name] = h
		}
		for _, rows := range m.files {
			for _, f := range rows {
				if f.Filename == name && f.Status == downloads.FileCompleted && f.ContentHash != nil {
					out[name] = *f.ContentHash
				}
			}
		}
	}
	return out, nil
}

func (m *memStore) AppendEvent(_ context.Context, sessionID uuid.UUID, eventType, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.eventSeq++
	m.events[sessionID] = append(m.events[sessionID], downloads.Event{
		ID:        m.eventSeq,
		SessionID: sessionID,
		EventType: eventType,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *memStore) Events(_ context.Context, sessionID uuid.UUID) ([]downloads.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events[sessionID]), nil
}

func (m *memStore) ListFailed(
	_ context.Context,
	_ pagination.PageRequest,
	filters downloads.FailedFilters,
) (*pagination.PageResult[downloads.FailedFile], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []downloads.FailedFile
	for sid, rows := range m.files {
		st := m.sessions[sid].SourceType
		for _, f := range rows {
			if f.Status != downloads.FileFailed {
				continue
			}
			if filters.SourceType != nil && st != *filters.SourceType {
				continue
			}
			if filters.Filename != nil && f.Filename != *filters.Filename {
				continue
			}
			out = append(out, downloads.FailedFile{File: f, SourceType: st})
		}
	}

	result := pagination.NewPageResult(out, len(out), 1, max(len(out), 1))
	return &result, nil
}

func (m *memStore) ResetFailed(_ context.Context, filters downloads.FailedFilters) (int64, []uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		n   int64
		ids []uuid.UUID
	)
	for sid, rows := range m.files {
		s := m.sessions[sid]
		if !s.Terminal() {
			continue
		}
		if filters.SourceType != nil && s.SourceType != *filters.SourceType {
			continue
		}

		touched := false
		for i := range rows {
			if rows[i].Status != downloads.FileFailed {
				continue
			}
			if filters.Filename != nil && rows[i].Filename != *filters.Filename {
				continue
			}
			rows[i].Status = downloads.FilePending
			rows[i].RetryCount = 0
			rows[i].ErrorMessage = nil
			rows[i].WorkerID = nil
			n++
			touched = true
		}
		if touched {
			s.Resumable = true
			m.sessions[sid] = s
			ids = append(ids, sid)
		}
	}
	return n, ids, nil
}

func (m *memStore) session(id uuid.UUID) downloads.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}
