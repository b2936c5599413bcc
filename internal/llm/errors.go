package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// TransientError represents a temporary failure that may succeed on retry:
// rate limiting, server errors and network faults.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }

func (e *TransientError) Unwrap() error { return e.err }

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// TokenLimitError means the request exceeded the model's context or output
// budget. Retrying the same request cannot help; callers shrink the prompt.
type TokenLimitError struct {
	err error
}

func (e *TokenLimitError) Error() string { return e.err.Error() }

func (e *TokenLimitError) Unwrap() error { return e.err }

// NewTokenLimitError wraps an error as a token-limit failure.
func NewTokenLimitError(err error) error {
	return &TokenLimitError{err: err}
}

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }

func (e *FatalError) Unwrap() error { return e.err }

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsTokenLimit returns true if the request was too large for the model.
func IsTokenLimit(err error) bool {
	var tl *TokenLimitError
	return errors.As(err, &tl)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// outcome names an attempt result for metrics and logs.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsTransient(err):
		return "transient"
	case IsTokenLimit(err):
		return "token_limit"
	default:
		return "fatal"
	}
}

var tokenLimitMarkers = []string{
	"context_length_exceeded",
	"maximum context length",
	"max_tokens",
	"token limit",
	"too many tokens",
	"exceeds the maximum number of tokens",
}

func mentionsTokenLimit(body string) bool {
	lower := strings.ToLower(body)
	for _, m := range tokenLimitMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// classifyHTTPError maps a non-200 status to an error class.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("generation API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	case (statusCode == http.StatusBadRequest || statusCode == http.StatusRequestEntityTooLarge) &&
		mentionsTokenLimit(string(body)):
		return NewTokenLimitError(err)
	case statusCode == http.StatusRequestEntityTooLarge:
		return NewTokenLimitError(err)
	default:
		return NewFatalError(err)
	}
}
