package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrChunkTimeout is reported when the upstream body stays silent for longer
// than the configured chunk timeout.
var ErrChunkTimeout = errors.New("upstream chunk timeout")

// maxErrorBody bounds how much of a failed response body is kept on an
// HTTPError.
const maxErrorBody = 4 << 10

// HTTPError represents a failed upstream exchange: either a non-2xx status
// or a transport failure (connection refused, reset, timeout).
type HTTPError struct {
	// StatusCode is zero for transport failures.
	StatusCode int

	// Body is the beginning of the upstream error body. It is for logs only
	// and never sent downstream.
	Body string

	Err error
}

func (e *HTTPError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream API error (status %d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("upstream request failed: %v", e.Err)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// IsRateLimit returns true if the upstream rejected the call for rate limits.
func (e *HTTPError) IsRateLimit() bool { return e.StatusCode == http.StatusTooManyRequests }

// IsAuth returns true if the upstream rejected the API key.
func (e *HTTPError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}
