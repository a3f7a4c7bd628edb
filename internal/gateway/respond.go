package gateway

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/rsvp-client/pkg/client"
	"github.com/Sternrassler/rsvp-client/pkg/ratelimit"
	"github.com/Sternrassler/rsvp-client/pkg/service"
)

// Codes set by the gateway itself.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeDuplicate    = "DUPLICATE_RSVP"
	CodeInvalidJSON  = "INVALID_JSON"
)

// Messages for failures the gateway detects itself.
const (
	MessageInvalidCredentials = "Invalid username or password."
	MessageDuplicate          = "An RSVP for this email already exists."
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, data any, message string) {
	env, err := client.NewSuccessEnvelope(data, message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, env)
}

// writeError renders any error as a failure envelope. The message is always
// the user-facing mapping, never the raw cause.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	env := &client.Envelope{Success: new(bool), Error: service.Message(err)}

	if apiErr, ok := client.AsAPIError(err); ok {
		status = statusFor(apiErr)
		env.Code = apiErr.Code
		env.Details = apiErr.Details
	}

	writeJSON(w, status, env)
}

// writeFailure renders a failure whose message is already user-facing.
func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, &client.Envelope{Success: new(bool), Error: message, Code: code})
}

// writeAPIError renders a gateway-built error.
func writeAPIError(w http.ResponseWriter, apiErr *client.APIError) {
	writeJSON(w, statusFor(apiErr), client.NewFailureEnvelope(apiErr))
}

// statusFor maps an upstream failure to the gateway response status.
func statusFor(apiErr *client.APIError) int {
	switch {
	case apiErr.Class == client.ErrorClassParse:
		return http.StatusBadGateway
	case apiErr.StatusCode == 0:
		return http.StatusServiceUnavailable
	case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return apiErr.StatusCode
	case apiErr.StatusCode >= 500:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining()))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// writeRateLimited renders a denial with Retry-After in whole seconds.
func writeRateLimited(w http.ResponseWriter, d ratelimit.Decision, now time.Time) {
	retryAfter := int(math.Ceil(d.RetryAfter(now).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeAPIError(w, client.NewRateLimitedError(d.ResetAt))
}

func validationError(details map[string][]string) *client.APIError {
	return client.NewStatusError(http.StatusUnprocessableEntity, "Validation failed", CodeValidation, details)
}

func invalidJSON(err error) *client.APIError {
	return &client.APIError{
		Message:    "Request body must be valid JSON",
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidJSON,
		Class:      client.ErrorClassClient,
		Err:        err,
	}
}

func unauthorized() *client.APIError {
	return client.NewStatusError(http.StatusUnauthorized, "", CodeUnauthorized, nil)
}

func isStatus(err error, status int) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
