package downloads

import (
	"errors"
	"net/http"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/keylock"
)

// Domain errors for download session operations.
var (
	ErrNotFound       = errors.New("download session not found")
	ErrDuplicate      = errors.New("download session file already exists")
	ErrInvalidParams  = errors.New("invalid download parameters")
	ErrUnknownSource  = errors.New("unknown source type")
	ErrNotCancellable = errors.New("download session is not cancellable")
	ErrNotResumable   = errors.New("download session is not resumable")
	ErrBusy           = keylock.ErrBusy
)

// MapHTTPStatus maps download domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrBusy) || errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrNotCancellable) || errors.Is(err, ErrNotResumable) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidParams) || errors.Is(err, ErrUnknownSource) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
