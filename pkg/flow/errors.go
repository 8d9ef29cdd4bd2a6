package flow

import (
	"fmt"
	"time"
)

// ConnectionError indicates a network-level failure reaching the gateway:
// DNS resolution, refused connections, broken transport.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError indicates the gateway did not respond within the configured
// timeout.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.URL, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// HTTPError indicates the gateway answered with a 4xx or 5xx status.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d error for %s %s", e.StatusCode, e.Method, e.URL)
}

// ResponseError indicates the gateway answered with a malformed or
// unexpected body.
type ResponseError struct {
	Message string
	Data    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("invalid gateway response: %s", e.Message)
}

// AuthError indicates authentication against the gateway failed: rejected
// credentials or an unusable token.
type AuthError struct {
	Message    string
	StatusCode int
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// ConfigError indicates the client is missing required configuration.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Message)
}
