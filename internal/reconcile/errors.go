package reconcile

import (
	"errors"
	"net/http"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/keylock"
)

var (
	ErrUnknownPair   = errors.New("unknown reconciliation pair")
	ErrInvalidStatus = errors.New("invalid reconciliation status")
	ErrDuplicate     = errors.New("reconciliation result already exists")
	ErrBusy          = keylock.ErrBusy
)

// MapHTTPStatus maps reconciliation errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnknownPair):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, ErrBusy), errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
