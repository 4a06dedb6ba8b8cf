package downloads

import (
	"context"

	"github.com/google/uuid"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
)

// Store persists sessions, their file rows, and their event trails.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	SaveSession(ctx context.Context, s *Session) error
	FindSession(ctx context.Context, id uuid.UUID) (*Session, error)
	ListSessions(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Session], error)

	// InterruptedSessions returns sessions left in a non-terminal status.
	InterruptedSessions(ctx context.Context) ([]Session, error)

	// UpsertFiles inserts file rows keyed by (session, filename). Rows that
	// already completed or were skipped are left untouched.
	UpsertFiles(ctx context.Context, sessionID uuid.UUID, files []File) error
	SaveFile(ctx context.Context, f *File) error
	SessionFiles(ctx context.Context, sessionID uuid.UUID, status *string) ([]File, error)
	Tally(ctx context.Context, sessionID uuid.UUID) (Tally, error)

	// KnownHashes returns the most recent recorded content hash for each
	// filename, from completed downloads or imported files.
	KnownHashes(ctx context.Context, filenames []string) (map[string]string, error)

	AppendEvent(ctx context.Context, sessionID uuid.UUID, eventType, message string) error
	Events(ctx context.Context, sessionID uuid.UUID) ([]Event, error)

	ListFailed(
		ctx context.Context,
		page pagination.PageRequest,
		filters FailedFilters,
	) (*pagination.PageResult[FailedFile], error)

	// ResetFailed returns matching failed rows of terminal sessions to pending
	// and marks their sessions resumable. It returns the affected row count and
	// the owning session ids.
	ResetFailed(ctx context.Context, filters FailedFilters) (int64, []uuid.UUID, error)
}
