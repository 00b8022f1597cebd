package fetcher

import (
	"errors"
	"fmt"
)

// ErrNoDataAvailable matches any *NoDataAvailableError via errors.Is.
var ErrNoDataAvailable = errors.New("failed to fetch data and no cached data available")

// FetchError reports a non-success response from the remote resource.
type FetchError struct {
	StatusCode int
	StatusText string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch data: %d %s", e.StatusCode, e.StatusText)
}

// HTTPStatus returns the upstream status code.
func (e *FetchError) HTTPStatus() int { return e.StatusCode }

// ParseError reports a response body that could not be decoded into the
// expected shape.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse data: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NoDataAvailableError is returned when a fetch fails and nothing was ever
// cached. Cause keeps the originating failure.
type NoDataAvailableError struct {
	Cause error
}

func (e *NoDataAvailableError) Error() string {
	if e.Cause == nil {
		return ErrNoDataAvailable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrNoDataAvailable.Error(), e.Cause)
}

func (e *NoDataAvailableError) Unwrap() error { return e.Cause }

func (e *NoDataAvailableError) Is(target error) bool { return target == ErrNoDataAvailable }

// errorKind labels a fetch failure for metrics.
func errorKind(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return "status"
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return "parse"
	}
	return "transport"
}
