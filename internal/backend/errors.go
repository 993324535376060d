package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownBackend indicates a source names a backend that is not registered.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrNotSupported indicates the backend cannot produce the requested record kind.
	ErrNotSupported = errors.New("not supported by backend")

	// ErrUnsupportedFormat indicates the remote serves a wire format the backend cannot parse.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// SkipError tells the engine to mark the item skipped instead of failed.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return e.Reason
}

// Skip builds a SkipError.
func Skip(format string, args ...any) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// HTTPError is returned when a remote answers with an error status.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
}
