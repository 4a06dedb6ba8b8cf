package downloads

import (
	"encoding/json"
	"net/url"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/query"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/repository"
)

var sessionProjection = query.
	NewProjectionMap("public", "download_sessions", "s").
	Project("id", "ID").
	Project("source_type", "SourceType").
	Project("status", "Status").
	Project("params", "Params").
	Project("total_discovered", "TotalDiscovered").
	Project("already_downloaded", "AlreadyDownloaded").
	Project("to_download", "ToDownload").
	Project("processed", "Processed").
	Project("downloaded", "Downloaded").
	Project("skipped", "Skipped").
	Project("failed", "Failed").
	Project("max_workers", "MaxWorkers").
	Project("cancellable", "Cancellable").
	Project("resumable", "Resumable").
	Project("resume_count", "ResumeCount").
	Project("error_detail", "ErrorDetail").
	Project("created_at", "CreatedAt").
	Project("started_at", "StartedAt").
	Project("completed_at", "CompletedAt").
	Project("cancelled_at", "CancelledAt").
	Project("updated_at", "UpdatedAt")

var sessionColumns = sessionProjection.Columns()

var fileProjection = query.
	NewProjectionMap("public", "download_session_files", "f").
	Project("id", "ID").
	Project("session_id", "SessionID").
	Project("filename", "Filename").
	Project("source_url", "SourceURL").
	Project("status", "Status").
	Project("skip_reason", "SkipReason").
	Project("size_bytes", "SizeBytes").
	Project("path", "Path").
	Project("content_hash", "ContentHash").
	Project("worker_id", "WorkerID").
	Project("retry_count", "RetryCount").
	Project("error_message", "ErrorMessage").
	Project("duration_ms", "DurationMS").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt").
	Project("completed_at", "CompletedAt")

var failedProjection = query.
	NewProjectionMap("public", "download_session_files", "f").
	Project("id", "ID").
	Project("session_id", "SessionID").
	Project("filename", "Filename").
	Project("source_url", "SourceURL").
	Project("status", "Status").
	Project("skip_reason", "SkipReason").
	Project("size_bytes", "SizeBytes").
	Project("path", "Path").
	Project("content_hash", "ContentHash").
	Project("worker_id", "WorkerID").
	Project("retry_count", "RetryCount").
	Project("error_message", "ErrorMessage").
	Project("duration_ms", "DurationMS").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt").
	Project("completed_at", "CompletedAt").
	Join("public", "download_sessions", "s", "JOIN", "f.session_id = s.id").
	Project("source_type", "SourceType")

var eventProjection = query.
	NewProjectionMap("public", "download_session_events", "e").
	Project("id", "ID").
	Project("session_id", "SessionID").
	Project("event_type", "EventType").
	Project("message", "Message").
	Project("created_at", "CreatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

var failedSort = query.SortField{
	Field:      "UpdatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for session queries.
type Filters struct {
	SourceType *string `json:"source_type,omitempty"`
	Status     *string `json:"status,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("SourceType", f.SourceType).
		WhereEquals("Status", f.Status)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if st := values.Get("source_type"); st != "" {
		f.SourceType = &st
	}

	if s := values.Get("status"); s != "" {
		f.Status = &s
	}

	return f
}

// FailedFilters scopes the failed-file query and reset operations.
// Filename matches exactly.
type FailedFilters struct {
	SourceType *string `json:"source_type,omitempty"`
	Filename   *string `json:"filename,omitempty"`
}

// Apply adds filter conditions to a query builder over failedProjection.
func (f FailedFilters) Apply(b *query.Builder) *query.Builder {
	status := FileFailed
	return b.
		WhereEquals("Status", &status).
		WhereEquals("SourceType", f.SourceType).
		WhereEquals("Filename", f.Filename)
}

// FailedFiltersFromQuery extracts failed-file filter values from URL query parameters.
func FailedFiltersFromQuery(values url.Values) FailedFilters {
	var f FailedFilters

	if st := values.Get("source_type"); st != "" {
		f.SourceType = &st
	}

	if fn := values.Get("filename"); fn != "" {
		f.Filename = &fn
	}

	return f
}

func scanSession(s repository.Scanner) (Session, error) {
	var (
		ss     Session
		params []byte
		detail []byte
	)
	err := s.Scan(
		&ss.ID,
		&ss.SourceType,
		&ss.Status,
		&params,
		&ss.TotalDiscovered,
		&ss.AlreadyDownloaded,
		&ss.ToDownload,
		&ss.Processed,
		&ss.Downloaded,
		&ss.Skipped,
		&ss.Failed,
		&ss.MaxWorkers,
		&ss.Cancellable,
		&ss.Resumable,
		&ss.ResumeCount,
		&detail,
		&ss.CreatedAt,
		&ss.StartedAt,
		&ss.CompletedAt,
		&ss.CancelledAt,
		&ss.UpdatedAt,
	)
	if err != nil {
		return ss, err
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &ss.Params); err != nil {
			return ss, err
		}
	}
	if len(detail) > 0 && string(detail) != "null" {
		ss.ErrorDetail = &ErrorDetail{}
		if err := json.Unmarshal(detail, ss.ErrorDetail); err != nil {
			return ss, err
		}
	}
	return ss, nil
}

func fileFields(f *File) []any {
	return []any{
		&f.ID,
		&f.SessionID,
		&f.Filename,
		&f.SourceURL,
		&f.Status,
		&f.SkipReason,
		&f.SizeBytes,
		&f.Path,
		&f.ContentHash,
		&f.WorkerID,
		&f.RetryCount,
		&f.ErrorMessage,
		&f.DurationMS,
		&f.CreatedAt,
		&f.UpdatedAt,
		&f.CompletedAt,
	}
}

func scanFile(s repository.Scanner) (File, error) {
	var f File
	err := s.Scan(fileFields(&f)...)
	return f, err
}

func scanFailedFile(s repository.Scanner) (FailedFile, error) {
	var f FailedFile
	err := s.Scan(append(fileFields(&f.File), &f.SourceType)...)
	return f, err
}

func scanEvent(s repository.Scanner) (Event, error) {
	var e Event
	err := s.Scan(
		&e.ID,
		&e.SessionID,
		&e.EventType,
		&e.Message,
		&e.CreatedAt,
	)
	return e, err
}
