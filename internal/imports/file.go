// Package imports implements the import runner: schema detection over
// spreadsheet exports, batched idempotent upserts into the per-schema domain
// tables, and per-file progress with row-level error isolation.
package imports

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Imported file statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusPartial    = "partial"
)

var facilityPattern = regexp.MustCompile(`_(\d{5})_`)

// ImportedFile is one unit of import work, keyed by filename.
type ImportedFile struct {
	ID              uuid.UUID  `json:"id"`
	Filename        string     `json:"filename"`
	FileType        string     `json:"file_type"`
	FacilityCode    string     `json:"facility_code"`
	ContentHash     *string    `json:"content_hash,omitempty"`
	Status          string     `json:"status"`
	TotalRecords    int        `json:"total_records"`
	ImportedRecords int        `json:"imported_records"`
	FailedRecords   int        `json:"failed_records"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ErrorText       *string    `json:"error_text,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DeriveStatus returns the terminal status for a file's row counts.
func DeriveStatus(total, imported, failed int) string {
	switch {
	case failed == 0:
		return StatusCompleted
	case imported == 0 && total > 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// ImportCommand requests a single-file import. Schema is optional.
type ImportCommand struct {
	Filename string  `json:"filename"`
	Schema   *string `json:"schema,omitempty"`
}

// FileResult is the outcome of one file within a job.
type FileResult struct {
	FileID   uuid.UUID `json:"file_id"`
	Filename string    `json:"filename"`
	Status   string    `json:"status"`
	Total    int       `json:"total"`
	Imported int       `json:"imported"`
	Failed   int       `json:"failed"`
	Error    string    `json:"error,omitempty"`
}

// Progress is the pollable state of the latest job for a schema.
type Progress struct {
	Schema         string       `json:"schema"`
	Running        bool         `json:"running"`
	Cancelled      bool         `json:"cancelled"`
	CurrentFile    string       `json:"current_file,omitempty"`
	FilesCompleted int          `json:"files_completed"`
	FilesTotal     int          `json:"files_total"`
	RowsImported   int          `json:"rows_imported"`
	RowsFailed     int          `json:"rows_failed"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`
	Results        []FileResult `json:"results"`
}

// UploadResult describes a manually uploaded file.
type UploadResult struct {
	Filename    string  `json:"filename"`
	Path        string  `json:"path"`
	SizeBytes   int64   `json:"size_bytes"`
	ContentHash string  `json:"content_hash"`
	Schema      *string `json:"schema,omitempty"`
}

// FacilityCode extracts the five-digit facility code embedded in e-Claim
// filenames, falling back to fallback.
func FacilityCode(filename, fallback string) string {
	if m := facilityPattern.FindStringSubmatch(filename); m != nil {
		return m[1]
	}
	return fallback
}
