package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassNetwork represents unreachable endpoints and timeouts (status 0).
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassParse represents responses that could not be decoded.
	ErrorClassParse ErrorClass = "parse"

	// ErrorClassRateLimited represents requests denied by a rate limiter.
	ErrorClassRateLimited ErrorClass = "rate_limited"
)

// Machine codes set by the client itself.
const (
	CodeNetworkError = "NETWORK_ERROR"
	CodeRateLimited  = "RATE_LIMITED"
)

// ParseFailureMessage is the message of every ErrorClassParse error.
const ParseFailureMessage = "Failed to parse response"

// APIError is the single error shape for every request failure.
// It is never mutated after creation.
type APIError struct {
	// Message is the server-provided or client-generated message.
	Message string

	// StatusCode is the HTTP status, 0 when no response was received.
	StatusCode int

	// Code is an optional machine-readable code (e.g. "NETWORK_ERROR").
	Code string

	// Details holds optional field-level messages.
	Details map[string][]string

	// Class is the failure classification.
	Class ErrorClass

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether the endpoint answered 404.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// AsAPIError returns the *APIError in err's chain, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// ClassForStatus classifies an HTTP status code.
func ClassForStatus(status int) ErrorClass {
	switch {
	case status == 0:
		return ErrorClassNetwork
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimited
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// NewNetworkError wraps a failure where no response was received.
func NewNetworkError(err error) *APIError {
	msg := "network error"
	if err != nil {
		msg = err.Error()
	}
	return &APIError{
		Message:    msg,
		StatusCode: 0,
		Code:       CodeNetworkError,
		Class:      ErrorClassNetwork,
		Err:        err,
	}
}

// NewParseError wraps a response whose body could not be decoded.
func NewParseError(status int, err error) *APIError {
	return &APIError{
		Message:    ParseFailureMessage,
		StatusCode: status,
		Class:      ErrorClassParse,
		Err:        err,
	}
}

// NewStatusError builds the error for a failure status. Empty messages fall
// back to the HTTP status text.
func NewStatusError(status int, message, code string, details map[string][]string) *APIError {
	if message == "" {
		message = http.StatusText(status)
	}
	class := ClassForStatus(status)
	if class == "" {
		class = ErrorClassClient
	}
	return &APIError{
		Message:    message,
		StatusCode: status,
		Code:       code,
		Details:    details,
		Class:      class,
	}
}

// NewRateLimitedError builds the error for a request denied before dispatch.
func NewRateLimitedError(resetAt time.Time) *APIError {
	return &APIError{
		Message:    fmt.Sprintf("Too many requests. Try again after %s", resetAt.UTC().Format(time.RFC3339)),
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimited,
		Details:    map[string][]string{"resetAt": {resetAt.UTC().Format(time.RFC3339)}},
		Class:      ErrorClassRateLimited,
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer:
		// 5xx server errors should be retried
		return true
	case ErrorClassNetwork:
		// Network errors should be retried
		return true
	default:
		// Client, parse and rate limit errors will fail the same way again
		return false
	}
}
