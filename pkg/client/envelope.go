package client

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// Envelope is the wire format of every endpoint response.
type Envelope struct {
	Success *bool               `json:"success,omitempty"`
	Data    json.RawMessage     `json:"data,omitempty"`
	Message string              `json:"message,omitempty"`
	Error   string              `json:"error,omitempty"`
	Code    string              `json:"code,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

// Response is a raw endpoint response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Result is a decoded success envelope.
type Result[T any] struct {
	Value   T
	Status  int
	Message string
}

// Decode normalizes the outcome of a transport call.
//
//   - err != nil (no response): network error, status 0
//   - status >= 400: status error with the envelope's message, code and details
//     (status text when the body is not an envelope)
//   - 2xx with an empty body (e.g. 204): success with the zero value
//   - 2xx with an undecodable body: parse error
//   - 2xx with "success": false: status error with the response status
//   - otherwise: the unwrapped data
func Decode[T any](resp *Response, err error) (*Result[T], error) {
	if err != nil {
		if apiErr, ok := AsAPIError(err); ok {
			return nil, observe(apiErr)
		}
		return nil, observe(NewNetworkError(err))
	}
	if resp == nil {
		return nil, observe(NewNetworkError(nil))
	}

	if resp.StatusCode < 400 && len(bytes.TrimSpace(resp.Body)) == 0 {
		return &Result[T]{Status: resp.StatusCode}, nil
	}

	var env Envelope
	parseErr := json.Unmarshal(resp.Body, &env)

	if resp.StatusCode >= 400 {
		if parseErr != nil {
			return nil, observe(NewStatusError(resp.StatusCode, "", "", nil))
		}
		return nil, observe(NewStatusError(resp.StatusCode, env.failureMessage(), env.Code, env.Details))
	}

	if parseErr != nil {
		return nil, observe(NewParseError(resp.StatusCode, parseErr))
	}

	if env.Success != nil && !*env.Success {
		apiErr := NewStatusError(resp.StatusCode, env.failureMessage(), env.Code, env.Details)
		return nil, observe(apiErr)
	}

	result := &Result[T]{
		Status:  resp.StatusCode,
		Message: env.Message,
	}
	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := json.Unmarshal(env.Data, &result.Value); err != nil {
			return nil, observe(NewParseError(resp.StatusCode, err))
		}
	}

	return result, nil
}

func (e *Envelope) failureMessage() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// NewSuccessEnvelope builds a success envelope around data.
func NewSuccessEnvelope(data any, message string) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	success := true
	return &Envelope{Success: &success, Data: raw, Message: message}, nil
}

// NewFailureEnvelope builds a failure envelope whose message is the
// user-facing text for apiErr.
func NewFailureEnvelope(apiErr *APIError) *Envelope {
	success := false
	return &Envelope{
		Success: &success,
		Error:   UserMessage(apiErr),
		Code:    apiErr.Code,
		Details: apiErr.Details,
	}
}

func observe(apiErr *APIError) *APIError {
	errorsTotal.WithLabelValues(string(apiErr.Class)).Inc()
	return apiErr
}
