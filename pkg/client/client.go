// Package client provides the HTTP transport for envelope-style JSON
// endpoints and the error normalizer that turns every failure into an
// *APIError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rsvp_transport_requests_total",
		Help: "Total transport requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rsvp_transport_request_duration_seconds",
		Help:    "Transport request duration in seconds by method",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rsvp_errors_total",
		Help: "Total normalized errors by class",
	}, []string{"class"})
)

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// errRetriableStatus signals a 5xx response to the retry loop.
var errRetriableStatus = errors.New("retriable status")

// Transport issues a single request against an endpoint. A nil error means a
// response was received, whatever its status.
type Transport interface {
	Issue(ctx context.Context, method, path string, body []byte, header http.Header) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, method, path string, body []byte, header http.Header) (*Response, error)

// Issue calls f.
func (f TransportFunc) Issue(ctx context.Context, method, path string, body []byte, header http.Header) (*Response, error) {
	return f(ctx, method, path, body, header)
}

// Config holds the HTTP transport configuration.
type Config struct {
	// BaseURL is the origin every request path is joined to.
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// Retry applies to GET requests failing with a network or server error.
	Retry RetryConfig

	// HTTPClient overrides the default client (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// HTTPTransport is a Transport over net/http.
type HTTPTransport struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	logger     zerolog.Logger
}

// NewHTTPTransport creates a new HTTP transport.
func NewHTTPTransport(cfg Config) (*HTTPTransport, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &HTTPTransport{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		config:     cfg,
		logger:     log.With().Str("component", "http-transport").Logger(),
	}, nil
}

// Issue performs the request. GET requests are retried with backoff on
// network and server errors. The last response is returned when retries are
// exhausted on a server error.
func (t *HTTPTransport) Issue(ctx context.Context, method, path string, body []byte, header http.Header) (*Response, error) {
	target := t.baseURL + "/" + strings.TrimLeft(path, "/")
	requestID := uuid.NewString()

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	retryCfg := t.config.Retry
	if method != http.MethodGet {
		retryCfg = NoRetry()
	}

	var lastResp *Response
	var lastErr error

	retryErr := retryWithBackoff(ctx, retryCfg, t.logger, func() (ErrorClass, error) {
		lastResp, lastErr = t.do(ctx, method, target, body, header, requestID)
		if lastErr != nil {
			t.logger.Warn().
				Err(lastErr).
				Str("method", method).
				Str("path", path).
				Str("request_id", requestID).
				Msg("HTTP request failed")
			requestsTotal.WithLabelValues(method, "network_error").Inc()
			return ErrorClassNetwork, lastErr
		}

		requestsTotal.WithLabelValues(method, strconv.Itoa(lastResp.StatusCode)).Inc()

		if lastResp.StatusCode >= 500 {
			t.logger.Warn().
				Str("method", method).
				Str("path", path).
				Int("status", lastResp.StatusCode).
				Str("request_id", requestID).
				Msg("Server error response")
			return ErrorClassServer, errRetriableStatus
		}

		return "", nil
	})

	if lastResp != nil {
		return lastResp, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, retryErr
}

func (t *HTTPTransport) do(ctx context.Context, method, target string, body []byte, header http.Header, requestID string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for name, values := range header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("User-Agent", t.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, requestID)
	}

	t.logger.Debug().
		Str("method", method).
		Str("url", target).
		Str("request_id", requestID).
		Msg("Executing request")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// Request describes one endpoint call.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// Body is JSON-encoded when non-nil.
	Body any

	Header http.Header

	// Timeout bounds the whole call, retries included. Zero means no bound
	// beyond the context.
	Timeout time.Duration
}

// URL returns the path with its encoded query.
func (r Request) URL() string {
	if len(r.Query) == 0 {
		return r.Path
	}
	return r.Path + "?" + r.Query.Encode()
}

// Call issues req and decodes the envelope's data into T.
// Every failure is returned as an *APIError.
func Call[T any](ctx context.Context, t Transport, req Request) (*Result[T], error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, observe(&APIError{
				Message: "Failed to encode request",
				Class:   ErrorClassClient,
				Err:     err,
			})
		}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	return Decode[T](t.Issue(ctx, method, req.URL(), body, req.Header))
}
