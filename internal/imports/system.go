package imports

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
)

// System defines the public contract for import operations.
type System interface {
	Handler(maxUploadSize int64) *Handler

	// ImportFile imports one stored file in the background. The schema is
	// taken from cmd.Schema when set, otherwise detected from the filename
	// or header row. Returns ErrBusy if the schema already has a job running.
	ImportFile(ctx context.Context, cmd ImportCommand) (*Progress, error)

	// ImportAll imports every stored or registered file of kind that has not
	// completed, one file at a time.
	ImportAll(ctx context.Context, kind string) (*Progress, error)

	// Cancel stops the running job for kind after its current batch commits.
	Cancel(kind string) (*Progress, error)
	Progress(kind string) (*Progress, error)

	Files(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[ImportedFile], error)
	FindFile(ctx context.Context, id uuid.UUID) (*ImportedFile, error)
	RowErrors(ctx context.Context, id uuid.UUID) ([]RowError, error)

	Upload(ctx context.Context, filename string, src io.Reader) (*UploadResult, error)

	// Recover returns files left processing by a previous process to pending.
	Recover(ctx context.Context) (int64, error)
}

// Notifier is told which schema kind received newly imported rows.
type Notifier interface {
	Notify(kind string)
}
