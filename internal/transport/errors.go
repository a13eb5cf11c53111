package transport

import (
	"fmt"
	"time"
)

// TimeoutError reports that the adapter's own timer elapsed before a response.
type TimeoutError struct {
	Endpoint string
	After    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out after %s", e.Endpoint, e.After)
}

// NetworkError reports a failure to reach the backend at all.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request %s: network error: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError reports a non-2xx response.
type HTTPError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request %s: http %d: %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("request %s: http %d", e.Endpoint, e.Status)
}

// ParseError reports a response body that is not the JSON we expected.
type ParseError struct {
	Endpoint string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("request %s: invalid response: %v", e.Endpoint, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// BackendError reports a transport-level success whose envelope says success=false.
type BackendError struct {
	Endpoint string
	Message  string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("request %s: backend error: %s", e.Endpoint, e.Message)
}
