package client

import (
	"errors"
	"net/http"
	"testing"
)

type rsvpFixture struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestDecode_Success(t *testing.T) {
	resp := &Response{
		StatusCode: 200,
		Body:       []byte(`{"success":true,"data":{"id":"r1","name":"Ada"},"message":"ok"}`),
	}

	result, err := Decode[rsvpFixture](resp, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if result.Value.ID != "r1" || result.Value.Name != "Ada" {
		t.Errorf("Value = %+v", result.Value)
	}
	if result.Status != 200 || result.Message != "ok" {
		t.Errorf("Status/Message = %d/%q", result.Status, result.Message)
	}
}

func TestDecode_NullData(t *testing.T) {
	resp := &Response{StatusCode: 200, Body: []byte(`{"success":true,"data":null}`)}

	result, err := Decode[*rsvpFixture](resp, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if result.Value != nil {
		t.Errorf("Value = %v, want nil", result.Value)
	}
}

func TestDecode_EmptySuccessBody(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
	}{
		{"no content", &Response{StatusCode: http.StatusNoContent}},
		{"ok with whitespace body", &Response{StatusCode: http.StatusOK, Body: []byte(" \n")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Decode[*rsvpFixture](tt.resp, nil)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if result.Value != nil || result.Status != tt.resp.StatusCode {
				t.Errorf("result = %+v", result)
			}
		})
	}

	// an empty error response is still a status error
	_, err := Decode[rsvpFixture](&Response{StatusCode: http.StatusServiceUnavailable}, nil)
	if apiErr, ok := AsAPIError(err); !ok || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Decode() error = %v, want 503 status error", err)
	}
}

func TestDecode_Failures(t *testing.T) {
	tests := []struct {
		name       string
		resp       *Response
		err        error
		wantStatus int
		wantClass  ErrorClass
		wantMsg    string
		wantCode   string
	}{
		{
			name:       "no response",
			err:        errors.New("dial tcp 127.0.0.1:1: connection refused"),
			wantStatus: 0,
			wantClass:  ErrorClassNetwork,
			wantMsg:    "dial tcp 127.0.0.1:1: connection refused",
			wantCode:   CodeNetworkError,
		},
		{
			name:       "failure envelope",
			resp:       &Response{StatusCode: 404, Body: []byte(`{"success":false,"error":"RSVP not found"}`)},
			wantStatus: 404,
			wantClass:  ErrorClassClient,
			wantMsg:    "RSVP not found",
		},
		{
			name:       "failure envelope with message only",
			resp:       &Response{StatusCode: 409, Body: []byte(`{"success":false,"message":"Duplicate email","code":"DUPLICATE"}`)},
			wantStatus: 409,
			wantClass:  ErrorClassClient,
			wantMsg:    "Duplicate email",
			wantCode:   "DUPLICATE",
		},
		{
			name:       "server error without envelope",
			resp:       &Response{StatusCode: 502, Body: []byte(`<html>bad gateway</html>`)},
			wantStatus: 502,
			wantClass:  ErrorClassServer,
			wantMsg:    "Bad Gateway",
		},
		{
			name:       "success status with unparseable body",
			resp:       &Response{StatusCode: 200, Body: []byte(`not json`)},
			wantStatus: 200,
			wantClass:  ErrorClassParse,
			wantMsg:    ParseFailureMessage,
		},
		{
			name:       "success status with data of wrong shape",
			resp:       &Response{StatusCode: 200, Body: []byte(`{"success":true,"data":[1,2]}`)},
			wantStatus: 200,
			wantClass:  ErrorClassParse,
			wantMsg:    ParseFailureMessage,
		},
		{
			name:       "success status with failure envelope",
			resp:       &Response{StatusCode: 200, Body: []byte(`{"success":false,"error":"Event is full"}`)},
			wantStatus: 200,
			wantClass:  ErrorClassClient,
			wantMsg:    "Event is full",
		},
		{
			name:       "rate limited upstream",
			resp:       &Response{StatusCode: 429, Body: []byte(`{"success":false,"error":"slow down"}`)},
			wantStatus: 429,
			wantClass:  ErrorClassRateLimited,
			wantMsg:    "slow down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode[rsvpFixture](tt.resp, tt.err)

			apiErr, ok := AsAPIError(err)
			if !ok {
				t.Fatalf("Decode() error = %v, want *APIError", err)
			}
			if apiErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.wantStatus)
			}
			if apiErr.Class != tt.wantClass {
				t.Errorf("Class = %q, want %q", apiErr.Class, tt.wantClass)
			}
			if apiErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.wantCode)
			}
		})
	}
}

func TestDecode_ValidationDetails(t *testing.T) {
	resp := &Response{
		StatusCode: http.StatusUnprocessableEntity,
		Body:       []byte(`{"success":false,"error":"Validation failed","details":{"email":["is invalid"]}}`),
	}

	_, err := Decode[rsvpFixture](resp, nil)

	apiErr, _ := AsAPIError(err)
	if apiErr == nil {
		t.Fatal("expected *APIError")
	}
	if got := apiErr.Details["email"]; len(got) != 1 || got[0] != "is invalid" {
		t.Errorf("Details = %v", apiErr.Details)
	}
}

func TestDecode_PassesThroughAPIError(t *testing.T) {
	original := NewRateLimitedError(fixedTime)

	_, err := Decode[rsvpFixture](nil, original)

	if apiErr, _ := AsAPIError(err); apiErr != original {
		t.Errorf("Decode() = %v, want original error", err)
	}
}

func TestFailureEnvelope(t *testing.T) {
	env := NewFailureEnvelope(NewStatusError(404, "rsvp 42 missing in table rsvps", "", nil))

	if env.Success == nil || *env.Success {
		t.Error("Success should be false")
	}
	if env.Error != MessageNotFound {
		t.Errorf("Error = %q, want %q", env.Error, MessageNotFound)
	}
}

func TestSuccessEnvelope(t *testing.T) {
	env, err := NewSuccessEnvelope(rsvpFixture{ID: "r1"}, "created")
	if err != nil {
		t.Fatalf("NewSuccessEnvelope() error = %v", err)
	}
	if env.Success == nil || !*env.Success {
		t.Error("Success should be true")
	}
	if string(env.Data) != `{"id":"r1","name":""}` {
		t.Errorf("Data = %s", env.Data)
	}
}
