package gemini

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed generation call.
type ErrorKind string

const (
	ErrNotConfigured      ErrorKind = "not_configured"
	ErrConnection         ErrorKind = "connection_error"
	ErrTimeout            ErrorKind = "timeout"
	ErrRateLimited        ErrorKind = "rate_limited"
	ErrServer             ErrorKind = "server_error"
	ErrSafetyBlocked      ErrorKind = "safety_blocked"
	ErrPromptBlocked      ErrorKind = "prompt_blocked"
	ErrUnexpectedResponse ErrorKind = "unexpected_response"
	ErrModelNotFound      ErrorKind = "model_not_found"
)

// Error is the typed failure surfaced by the client. Callers branch on Kind;
// the client retries transient failures a bounded number of times and
// substitutes the fallback model at most once before surfacing this.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Model      string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gemini %s (http %d, model %s): %s", e.Kind, e.StatusCode, e.Model, e.Message)
	}
	return fmt.Sprintf("gemini %s (model %s): %s", e.Kind, e.Model, e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// KindOf extracts the error kind, or empty for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return ""
}
