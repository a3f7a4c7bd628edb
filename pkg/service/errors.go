package service

import (
	"errors"

	"github.com/Sternrassler/rsvp-client/pkg/client"
)

// OperationError is returned by every Service operation. Message is safe to
// show an end user; Err is the underlying cause.
type OperationError struct {
	// Op is the operation name (e.g., "fetchById").
	Op string

	// Message is the user-facing message.
	Message string

	// Err is the cause, usually a *client.APIError.
	Err error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Message
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// Message returns the user-facing message for any error returned by a
// Service, falling back to client.MessageFor for other errors.
func Message(err error) string {
	var opErr *OperationError
	if errors.As(err, &opErr) && opErr.Message != "" {
		return opErr.Message
	}
	return client.MessageFor(err)
}

// IsNotFound reports whether err was caused by a 404 from the endpoint.
func IsNotFound(err error) bool {
	apiErr, ok := client.AsAPIError(err)
	return ok && apiErr.IsNotFound()
}
