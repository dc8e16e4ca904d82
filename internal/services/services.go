// package services implements the I/O shells around the sync engine: Canvas listing, file transfer and SMTP delivery
package services

import (
	"fmt"
	"net/http"

	"github.com/desertthunder/cvsync/internal/shared"
)

// APIError is a non-2xx response from the remote API.
//
// It matches [shared.ErrAPIRequest]; 404 also matches [shared.ErrNotFound] and 503 [shared.ErrServiceUnavailable].
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: status %d from %s", shared.ErrAPIRequest, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("%v: status %d from %s: %s", shared.ErrAPIRequest, e.StatusCode, e.URL, e.Body)
}

func (e *APIError) Unwrap() []error {
	errs := []error{shared.ErrAPIRequest}
	switch e.StatusCode {
	case http.StatusNotFound:
		errs = append(errs, shared.ErrNotFound)
	case http.StatusServiceUnavailable:
		errs = append(errs, shared.ErrServiceUnavailable)
	}
	return errs
}

// Retryable reports whether a later attempt may succeed.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
