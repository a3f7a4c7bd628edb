package client

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// User-facing messages.
const (
	MessageNetwork      = "Unable to connect to the server. Please check your internet connection."
	MessageBadRequest   = "Invalid request. Please check your input."
	MessageUnauthorized = "Your session has expired. Please log in again."
	MessageForbidden    = "You do not have permission to perform this action."
	MessageNotFound     = "The requested resource was not found."
	MessageConflict     = "This action conflicts with existing data."
	MessageValidation   = "Validation failed. Please check your input."
	MessageRateLimited  = "Too many requests. Please try again later."
	MessageServer       = "Server error. Please try again later."
	MessageUnavailable  = "The service is temporarily unavailable. Please try again later."
	MessageParse        = "Received an unexpected response from the server."
	MessageGeneric      = "Something went wrong. Please try again."
)

// UserMessage maps an error to text safe to show an end user. It is total:
// every status code yields a non-empty message.
func UserMessage(e *APIError) string {
	if e == nil {
		return MessageGeneric
	}
	if e.Class == ErrorClassParse {
		return MessageParse
	}

	switch e.StatusCode {
	case 0:
		return MessageNetwork
	case http.StatusBadRequest:
		return validationSummary(e, MessageBadRequest)
	case http.StatusUnauthorized:
		return MessageUnauthorized
	case http.StatusForbidden:
		return MessageForbidden
	case http.StatusNotFound:
		return MessageNotFound
	case http.StatusConflict:
		return MessageConflict
	case http.StatusUnprocessableEntity:
		return validationSummary(e, MessageValidation)
	case http.StatusTooManyRequests:
		if e.Code == CodeRateLimited && e.Message != "" {
			return e.Message
		}
		return MessageRateLimited
	case http.StatusInternalServerError:
		return MessageServer
	}

	if e.StatusCode >= 500 {
		return MessageUnavailable
	}
	if e.Message != "" {
		return e.Message
	}
	return MessageGeneric
}

// MessageFor maps any error to a user-facing message.
func MessageFor(err error) string {
	if apiErr, ok := AsAPIError(err); ok {
		return UserMessage(apiErr)
	}
	return MessageGeneric
}

func validationSummary(e *APIError, fallback string) string {
	if len(e.Details) == 0 {
		if e.Message != "" && e.Message != http.StatusText(e.StatusCode) {
			return e.Message
		}
		return fallback
	}

	fields := make([]string, 0, len(e.Details))
	for field := range e.Details {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs := e.Details[field]
		if len(msgs) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(msgs, ", ")))
	}
	if len(parts) == 0 {
		return fallback
	}
	return "Please fix the following: " + strings.Join(parts, "; ")
}
