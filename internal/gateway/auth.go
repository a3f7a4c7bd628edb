package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/Sternrassler/rsvp-client/pkg/client"
)

// Authenticator delegates credential checks to the auth endpoint. Token
// validity is whatever the endpoint reports.
type Authenticator struct {
	transport client.Transport
}

// NewAuthenticator creates an authenticator over transport.
func NewAuthenticator(transport client.Transport) *Authenticator {
	return &Authenticator{transport: transport}
}

type loginResult struct {
	Token string `json:"token"`
}

type verifyResult struct {
	Valid bool `json:"valid"`
}

// Login exchanges credentials for a token.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, error) {
	result, err := client.Call[loginResult](ctx, a.transport, client.Request{
		Method: http.MethodPost,
		Path:   "auth/login",
		Body:   map[string]string{"username": username, "password": password},
	})
	if err != nil {
		return "", err
	}
	return result.Value.Token, nil
}

// Verify reports whether token is valid.
func (a *Authenticator) Verify(ctx context.Context, token string) (bool, error) {
	result, err := client.Call[verifyResult](ctx, a.transport, client.Request{
		Path:   "auth/verify",
		Header: http.Header{"Authorization": {"Bearer " + token}},
	})
	if err != nil {
		return false, err
	}
	return result.Value.Valid, nil
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
