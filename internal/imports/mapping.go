package imports

import (
	"net/url"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/query"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "imported_files", "i").
	Project("id", "ID").
	Project("filename", "Filename").
	Project("file_type", "FileType").
	Project("facility_code", "FacilityCode").
	Project("content_hash", "ContentHash").
	Project("status", "Status").
	Project("total_records", "TotalRecords").
	Project("imported_records", "ImportedRecords").
	Project("failed_records", "FailedRecords").
	Project("started_at", "StartedAt").
	Project("completed_at", "CompletedAt").
	Project("error_text", "ErrorText").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var fileColumns = projection.Columns()

var defaultSort = query.SortField{
	Field:      "UpdatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for imported-file queries.
type Filters struct {
	FileType     *string `json:"file_type,omitempty"`
	Status       *string `json:"status,omitempty"`
	FacilityCode *string `json:"facility_code,omitempty"`
	Filename     *string `json:"filename,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("FileType", f.FileType).
		WhereEquals("Status", f.Status).
		WhereEquals("FacilityCode", f.FacilityCode).
		WhereContains("Filename", f.Filename)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if v := values.Get("file_type"); v != "" {
		f.FileType = &v
	}
	if v := values.Get("status"); v != "" {
		f.Status = &v
	}
	if v := values.Get("facility_code"); v != "" {
		f.FacilityCode = &v
	}
	if v := values.Get("filename"); v != "" {
		f.Filename = &v
	}

	return f
}

func scanFile(s repository.Scanner) (ImportedFile, error) {
	var f ImportedFile
	err := s.Scan(
		&f.ID,
		&f.Filename,
		&f.FileType,
		&f.FacilityCode,
		&f.ContentHash,
		&f.Status,
		&f.TotalRecords,
		&f.ImportedRecords,
		&f.FailedRecords,
		&f.StartedAt,
		&f.CompletedAt,
		&f.ErrorText,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	return f, err
}

func scanRowError(s repository.Scanner) (RowError, error) {
	var e RowError
	var field *string
	err := s.Scan(&e.RowNumber, &field, &e.Message)
	if field != nil {
		e.Field = *field
	}
	return e, err
}
