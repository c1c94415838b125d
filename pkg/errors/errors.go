// Package errors defines the engine's error taxonomy: a small set of
// stable Kinds, each bearing a process exit code, independent of the
// underlying Go error type that produced them.
package errors

import (
	"fmt"
	"strings"
)

// Kind classifies an error for exit-code mapping and user-facing
// reporting. It is not an exception hierarchy — ordinary errors are
// wrapped in a *Error only at the boundary where they need a Kind.
type Kind string

const (
	// Usage covers bad arguments, missing files, and a missing browser
	// executable.
	Usage Kind = "Usage"
	// Auth covers missing required cookies, an invalid session, or a
	// 401 the scraper could not recover from.
	Auth Kind = "Auth"
	// Partial marks a job that completed with at least one failure.
	Partial Kind = "Partial"
	// Internal covers everything else, including unexpected I/O errors.
	Internal Kind = "Internal"
)

// ExitCode returns the process exit code associated with a Kind.
// Success (0) is never represented by a Kind; callers return 0
// directly when a job has no failures.
func (k Kind) ExitCode() int {
	switch k {
	case Usage:
		return 2
	case Auth:
		return 3
	case Partial:
		return 4
	case Internal:
		return 5
	default:
		return 5
	}
}

// Error is an error carrying a stable Kind and, optionally, the HTTP
// status code that produced it.
type Error struct {
	Kind    Kind
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error of the given Kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind to an existing error without discarding it.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// WithCode attaches an HTTP status code to an *Error, returning a copy.
func (e *Error) WithCode(code int) *Error {
	cp := *e
	cp.Code = code
	return &cp
}

// MissingBrowserExecutable is the sentinel Usage error reported when the
// headless-browser scraper cannot locate a browser binary.
func MissingBrowserExecutable(detail string) *Error {
	return &Error{
		Kind:    Usage,
		Message: "no browser executable found; install a Chromium-based browser: " + detail,
	}
}

// IsRetryableStatusCode reports whether an HTTP status code (0 meaning
// "no status, transport failure") should be retried: network errors,
// 429, and 5xx are retryable; everything else is terminal.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0:
		return true
	case 429:
		return true
	default:
		return statusCode >= 500
	}
}

// IsRetryableMessage reports whether an error message (when no HTTP
// status is available) implies a transient transport issue.
func IsRetryableMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, needle := range []string{"network", "timeout", "fetch", "connection reset", "eof"} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}
