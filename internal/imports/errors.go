package imports

import (
	"errors"
	"net/http"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/keylock"
)

// Domain errors for import operations.
var (
	ErrNotFound          = errors.New("imported file not found")
	ErrDuplicate         = errors.New("imported file already exists")
	ErrFileNotFound      = errors.New("source file not found")
	ErrInvalidFile       = errors.New("invalid file")
	ErrUnknownSchema     = errors.New("unknown import schema")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrHeaderNotFound    = errors.New("header row not found")
	ErrNotRunning        = errors.New("no import running for schema")
	ErrBusy              = keylock.ErrBusy
)

// MapHTTPStatus maps import domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrFileNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrBusy) || errors.Is(err, ErrDuplicate) || errors.Is(err, ErrNotRunning) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidFile) || errors.Is(err, ErrUnknownSchema) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrHeaderNotFound) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
