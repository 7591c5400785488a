package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRetryExhausted matches a *RetryExhaustedError.
	ErrRetryExhausted = errors.New("retry budget exhausted")
	// ErrUnexpectedBody indicates a response body that is not JSON.
	ErrUnexpectedBody = errors.New("unexpected response body")
)

// RetryExhaustedError is returned when every attempt came back as a
// rejection payload.
type RetryExhaustedError struct {
	Method   string
	URL      string
	Attempts int
	Payload  any // last rejection payload
}

func (e *RetryExhaustedError) Error() string {
	msg := fmt.Sprintf("%s: %s %s after %d attempt(s)", ErrRetryExhausted, e.Method, e.URL, e.Attempts)
	if obj, ok := e.Payload.(map[string]any); ok {
		var parts []string
		for _, k := range []string{"name", "code", "message"} {
			if v, ok := obj[k]; ok && v != nil {
				parts = append(parts, fmt.Sprintf("%s=%v", k, v))
			}
		}
		if len(parts) > 0 {
			msg += " (" + strings.Join(parts, ", ") + ")"
		}
	}
	return msg
}

func (e *RetryExhaustedError) Unwrap() error {
	return ErrRetryExhausted
}
