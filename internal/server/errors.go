// Package server provides the HTTP API of the monitoring dashboard.
package server

import (
	"errors"
	"net/http"

	"github.com/lzrong0203/memo-run/internal/monitor"
	"github.com/lzrong0203/memo-run/internal/types"
)

// ErrRunNotFound indicates the requested run has no record.
var ErrRunNotFound = errors.New("run not found")

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, ErrRunNotFound), errors.Is(err, monitor.ErrNoActiveRun):
		return http.StatusNotFound
	case errors.Is(err, monitor.ErrObserverAttached):
		return http.StatusConflict
	case errors.Is(err, monitor.ErrAtCapacity):
		return http.StatusTooManyRequests
	case errors.Is(err, monitor.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
