package imports

import (
	"context"

	"github.com/google/uuid"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
)

// Store persists imported files, their domain records, and error logs.
type Store interface {
	// BeginFile registers f by filename (or resets an existing row) in
	// processing state with zeroed counters and an empty error log.
	BeginFile(ctx context.Context, f *ImportedFile) error

	// CommitBatch upserts records by (file, natural key), appends row errors,
	// and writes f's counters in one transaction.
	CommitBatch(ctx context.Context, f *ImportedFile, schema *Schema, records []Record, errs []RowError) error

	// PruneRows deletes f's rows in schema's table whose natural key is not
	// in keep, returning how many were removed.
	PruneRows(ctx context.Context, f *ImportedFile, schema *Schema, keep []string) (int64, error)

	// FinishFile writes f's status, counters, error text, and completion time.
	FinishFile(ctx context.Context, f *ImportedFile) error

	FindFile(ctx context.Context, id uuid.UUID) (*ImportedFile, error)
	ListFiles(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[ImportedFile], error)
	RowErrors(ctx context.Context, fileID uuid.UUID) ([]RowError, error)

	// FileStatuses returns the recorded status of each registered filename.
	FileStatuses(ctx context.Context, filenames []string) (map[string]string, error)

	// IncompleteFiles returns registered filenames of kind not yet completed.
	IncompleteFiles(ctx context.Context, kind string) ([]string, error)

	// ResetProcessing returns files left in processing to pending.
	ResetProcessing(ctx context.Context) (int64, error)
}
