package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by stores when a lookup has no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by stores when a write loses a unique-constraint race.
// The dedup engine retries once as an explicit update.
var ErrConflict = errors.New("write conflict")

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}
