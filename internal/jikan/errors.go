package jikan

import (
	"fmt"
	"net/http"
)

// StatusError is a non-2xx response from the upstream API.
type StatusError struct {
	StatusCode int
	Body       string
	// RetryAfter is the server-provided wait in seconds (429 only, 0 if absent).
	RetryAfter int
}

func (e *StatusError) Error() string {
	if len(e.Body) > 200 {
		return fmt.Sprintf("jikan: status %d: %s...", e.StatusCode, e.Body[:200])
	}
	return fmt.Sprintf("jikan: status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status indicates a transient condition.
// Retries: 429 and 5xx. Other 4xx fail immediately.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// FetchExhaustedError is returned when a page fetch has used up all its
// retry attempts. It carries the last underlying cause; pagination for the query
// aborts, but pages already yielded are preserved by the caller.
type FetchExhaustedError struct {
	Page     int
	Attempts int
	Err      error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("jikan: page %d failed after %d attempts: %v", e.Page, e.Attempts, e.Err)
}

func (e *FetchExhaustedError) Unwrap() error { return e.Err }
