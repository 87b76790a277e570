package httpclient

import (
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody caps how much of a failed response is kept.
const maxErrorBody = 1 << 20

// StatusError is a completed HTTP exchange whose status the caller or the
// circuit breaker treated as a failure. The body has already been read and
// closed; Body and Header keep what the classifier needs.
type StatusError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// NewStatusError drains and closes resp and captures it as a StatusError.
func NewStatusError(resp *http.Response) *StatusError {
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

// IsServerError returns true for 5xx statuses.
func IsServerError(status int) bool {
	return status >= 500 && status < 600
}
