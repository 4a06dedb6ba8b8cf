// Package downloads implements download sessions: multi-file retrieval runs
// against the source portal with a bounded worker pool, hash-based
// deduplication, cooperative cancellation, and resumption after failure.
package downloads

import (
	"encoding/json"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/thaidate"
)

// Source types published by the portal.
const (
	SourceClaims    = "claims"
	SourceStatement = "statement"
	SourceTransfer  = "transfer"
)

// SourceTypes lists every accepted source type.
var SourceTypes = []string{SourceClaims, SourceStatement, SourceTransfer}

// Session statuses.
const (
	StatusPending     = "pending"
	StatusDiscovering = "discovering"
	StatusDownloading = "downloading"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusCancelled   = "cancelled"
)

// File statuses.
const (
	FilePending     = "pending"
	FileDownloading = "downloading"
	FileCompleted   = "completed"
	FileSkipped     = "skipped"
	FileFailed      = "failed"
)

// Skip reasons.
const (
	SkipAlreadyExists = "already-exists"
	SkipDuplicateHash = "duplicate-hash"
)

// Event types recorded in a session's trail.
const (
	EventCreated = "created"
	EventStatus  = "status"
	EventFile    = "file"
	EventCancel  = "cancel"
	EventResume  = "resume"
	EventReset   = "reset"
	EventError   = "error"
)

// Error detail kinds.
const (
	ErrorKindDiscovery   = "discovery"
	ErrorKindInterrupted = "interrupted"
	ErrorKindDownload    = "download"
	ErrorKindEmpty       = "empty"
)

// Schemes accepted in Params.Schemes.
var Schemes = []string{"UCS", "OFC", "SSS", "LGO"}

// Session is one orchestrated download run.
type Session struct {
	ID                uuid.UUID    `json:"id"`
	SourceType        string       `json:"source_type"`
	Status            string       `json:"status"`
	Params            Params       `json:"params"`
	TotalDiscovered   int          `json:"total_discovered"`
	AlreadyDownloaded int          `json:"already_downloaded"`
	ToDownload        int          `json:"to_download"`
	Processed         int          `json:"processed"`
	Downloaded        int          `json:"downloaded"`
	Skipped           int          `json:"skipped"`
	Failed            int          `json:"failed"`
	MaxWorkers        int          `json:"max_workers"`
	Cancellable       bool         `json:"cancellable"`
	Resumable         bool         `json:"resumable"`
	ResumeCount       int          `json:"resume_count"`
	ErrorDetail       *ErrorDetail `json:"error_detail,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	StartedAt         *time.Time   `json:"started_at,omitempty"`
	CompletedAt       *time.Time   `json:"completed_at,omitempty"`
	CancelledAt       *time.Time   `json:"cancelled_at,omitempty"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Terminal reports whether the session has stopped running.
func (s *Session) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed || s.Status == StatusCancelled
}

// ErrorDetail describes a session-level failure with operator guidance.
type ErrorDetail struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Guidance string `json:"guidance,omitempty"`
}

// Params narrows which files a session discovers.
type Params struct {
	// FiscalYear is a Buddhist-Era fiscal year. Gregorian years are converted.
	FiscalYear int      `json:"fiscal_year,omitempty"`
	Month      int      `json:"month,omitempty"`
	DateFrom   string   `json:"date_from,omitempty"`
	DateTo     string   `json:"date_to,omitempty"`
	Schemes    []string `json:"schemes,omitempty"`
	MaxWorkers int      `json:"max_workers,omitempty"`
}

// Query renders the params as portal listing query parameters. Dates are sent
// in the portal's dd/mm/yyyy Buddhist-Era form.
func (p Params) Query() url.Values {
	q := url.Values{}
	if p.FiscalYear > 0 {
		q.Set("fy", strconv.Itoa(p.FiscalYear))
	}
	if p.Month > 0 {
		q.Set("mo", strconv.Itoa(p.Month))
	}
	if t, err := thaidate.Parse(p.DateFrom); err == nil {
		q.Set("from", thaidate.Format(t))
	}
	if t, err := thaidate.Parse(p.DateTo); err == nil {
		q.Set("to", thaidate.Format(t))
	}
	for _, s := range p.Schemes {
		q.Add("scheme", s)
	}
	return q
}

// normalize upper-cases schemes, sorts them, and converts a Gregorian fiscal year.
func (p *Params) normalize() {
	if p.FiscalYear > 0 && p.FiscalYear < thaidate.MinBuddhistYear {
		p.FiscalYear = thaidate.ToBuddhistYear(p.FiscalYear)
	}
	for i, s := range p.Schemes {
		p.Schemes[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	slices.Sort(p.Schemes)
	p.Schemes = slices.Compact(p.Schemes)
}

// File is one file's acquisition record within a session.
type File struct {
	ID           uuid.UUID  `json:"id"`
	SessionID    uuid.UUID  `json:"session_id"`
	Filename     string     `json:"filename"`
	SourceURL    string     `json:"source_url"`
	Status       string     `json:"status"`
	SkipReason   *string    `json:"skip_reason,omitempty"`
	SizeBytes    *int64     `json:"size_bytes,omitempty"`
	Path         *string    `json:"path,omitempty"`
	ContentHash  *string    `json:"content_hash,omitempty"`
	WorkerID     *int       `json:"worker_id,omitempty"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	DurationMS   *int64     `json:"duration_ms,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// FailedFile is a failed file with the source type of its owning session.
type FailedFile struct {
	File
	SourceType string `json:"source_type"`
}

// Event is one entry of a session's lifecycle trail.
type Event struct {
	ID        int64     `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	EventType string    `json:"event_type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// StartCommand requests a new session.
type StartCommand struct {
	SourceType string `json:"source_type"`
	Params     Params `json:"params"`
}

// Tally counts a session's file rows by outcome.
type Tally struct {
	Total            int
	Pending          int
	Completed        int
	SkippedExisting  int
	SkippedDuplicate int
	Failed           int
}

// apply copies execution counters from a tally onto the session.
func (s *Session) apply(t Tally) {
	s.Downloaded = t.Completed
	s.Skipped = t.SkippedExisting + t.SkippedDuplicate
	s.Failed = t.Failed
	s.Processed = s.Downloaded + s.Skipped + s.Failed
}

// applyDiscovery copies discovery counters from a tally taken when discovery
// ends. Every row that is not pending at that point needs no download.
func (s *Session) applyDiscovery(t Tally) {
	s.TotalDiscovered = t.Total
	s.ToDownload = t.Pending
	s.AlreadyDownloaded = t.Total - t.Pending
	s.apply(t)
}

func marshalParams(p Params) []byte {
	data, _ := json.Marshal(p)
	return data
}
