package discovery

import (
	"errors"
	"fmt"
)

// HTTPUnavailableError reports that an HTTP discovery endpoint (the
// directory service or a device) could not be reached or answered with a
// non-2xx status. It is an expected condition: callers fall back to the
// UDP transport or mark the device offline.
type HTTPUnavailableError struct {
	// URL is the endpoint that failed.
	URL string

	// StatusCode is the HTTP status, or 0 for connection-level failures.
	StatusCode int

	// Err is the underlying transport error, if any.
	Err error
}

func (e *HTTPUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("http discovery unavailable: %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("http discovery unavailable: %s: %v", e.URL, e.Err)
}

func (e *HTTPUnavailableError) Unwrap() error {
	return e.Err
}

// IsHTTPUnavailable reports whether err indicates an unreachable HTTP
// discovery endpoint.
func IsHTTPUnavailable(err error) bool {
	var unavailable *HTTPUnavailableError
	return errors.As(err, &unavailable)
}
