package downloads

import (
	"context"
	"io"
	"net/url"

	"github.com/google/uuid"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/portal"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
)

// System defines the public contract for download session operations.
type System interface {
	Handler() *Handler

	// Start validates the command, records a pending session, and runs it in
	// the background. Returns ErrBusy if the source type already has an
	// active session.
	Start(ctx context.Context, cmd StartCommand) (*Session, error)
	Cancel(ctx context.Context, id uuid.UUID) (*Session, error)
	Resume(ctx context.Context, id uuid.UUID) (*Session, error)

	Find(ctx context.Context, id uuid.UUID) (*Session, error)
	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Session], error)
	Files(ctx context.Context, id uuid.UUID, status *string) ([]File, error)
	Events(ctx context.Context, id uuid.UUID) ([]Event, error)

	ListFailed(
		ctx context.Context,
		page pagination.PageRequest,
		filters FailedFilters,
	) (*pagination.PageResult[FailedFile], error)
	ResetFailed(ctx context.Context, filters FailedFilters) (int64, error)

	// Recover marks sessions left running by a previous process as failed
	// and resumable. It returns the number of sessions recovered.
	Recover(ctx context.Context) (int, error)
}

// Source lists and fetches files from the portal.
type Source interface {
	List(ctx context.Context, sourceType string, params url.Values) ([]portal.RemoteFile, error)
	Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error)
}
