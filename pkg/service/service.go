// Package service provides Service, the single dispatcher through which every
// resource operation passes. Reads go through an expiring cache, writes
// invalidate it, and every failure is returned as an *OperationError carrying
// a user-facing message.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/rsvp-client/pkg/cache"
	"github.com/Sternrassler/rsvp-client/pkg/client"
	"github.com/Sternrassler/rsvp-client/pkg/logging"
	"github.com/Sternrassler/rsvp-client/pkg/pagination"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/Sternrassler/rsvp-client/pkg/service"

// SearchTTLDivisor shortens the TTL of search results relative to CacheTTL.
const SearchTTLDivisor = 12

// SharedCallTimeout bounds a coalesced cache-miss call. The call outlives
// the caller that started it, so it cannot rely on that caller's context.
const SharedCallTimeout = 30 * time.Second

// Operation names, used in cache keys, spans, logs and metrics.
const (
	OpFetchAll      = "fetchAll"
	OpFetchByID     = "fetchById"
	OpCreate        = "create"
	OpUpdate        = "update"
	OpPartialUpdate = "partialUpdate"
	OpDelete        = "delete"
	OpBulkCreate    = "bulkCreate"
	OpBulkUpdate    = "bulkUpdate"
	OpBulkDelete    = "bulkDelete"
	OpExists        = "exists"
	OpSearch        = "search"
	OpGetPaginated  = "getPaginated"
)

// Config holds the service configuration. It is copied at construction.
type Config struct {
	// Endpoint is the resource endpoint path (e.g., "rsvps").
	Endpoint string

	// CacheTTL is the lifetime of cached reads.
	CacheTTL time.Duration

	// CachingEnabled turns cache reads and writes on.
	CachingEnabled bool
}

// DefaultConfig returns a configuration with caching enabled.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:       endpoint,
		CacheTTL:       cache.DefaultTTL,
		CachingEnabled: true,
	}
}

// Option customises a Service.
type Option func(*options)

type options struct {
	cache  *cache.Cache
	tracer trace.Tracer
	logger *zerolog.Logger
}

// WithCache sets the cache owned by the service. By default each service gets
// a private in-memory cache.
func WithCache(c *cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// Page is one page of a paginated read.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
}

// Update is one element of a bulk update.
type Update struct {
	ID   string `json:"id"`
	Data any    `json:"data"`
}

// Service dispatches operations on resources of type T.
type Service[T any] struct {
	transport client.Transport
	cache     *cache.Cache
	config    Config
	endpoint  string
	tracer    trace.Tracer
	logger    zerolog.Logger
	group     singleflight.Group
}

// New creates a service for one endpoint.
func New[T any](transport client.Transport, cfg Config, opts ...Option) (*Service[T], error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	endpoint := strings.Trim(cfg.Endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	if cfg.CachingEnabled && cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("cache_ttl must be > 0 when caching is enabled (got %s)", cfg.CacheTTL)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.NewLogger("service")
	if o.logger != nil {
		logger = *o.logger
	}
	logger = logger.With().Str("endpoint", endpoint).Logger()

	if o.cache == nil {
		cacheLogger := logging.NewLogger("cache").With().Str("endpoint", endpoint).Logger()
		o.cache = cache.NewMemory(cache.Config{DefaultTTL: cfg.CacheTTL}, cacheLogger)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}

	return &Service[T]{
		transport: transport,
		cache:     o.cache,
		config:    cfg,
		endpoint:  endpoint,
		tracer:    o.tracer,
		logger:    logger,
	}, nil
}

// Config returns the service configuration.
func (s *Service[T]) Config() Config {
	return s.config
}

// Cache returns the cache owned by the service.
func (s *Service[T]) Cache() *cache.Cache {
	return s.cache
}

// FetchAll returns every item matching filters.
func (s *Service[T]) FetchAll(ctx context.Context, filters Filters) (items []T, err error) {
	ctx, span := s.start(ctx, OpFetchAll)
	defer func() { err = s.finish(span, OpFetchAll, "Failed to fetch "+s.endpoint, err) }()

	key := s.key(OpFetchAll, filters.params())
	req := client.Request{Path: s.endpoint, Query: filters.Values()}

	items, err = readThrough[[]T](ctx, s, key, s.config.CacheTTL, req)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// FetchByID returns one item. A missing id yields a not-found error.
func (s *Service[T]) FetchByID(ctx context.Context, id string) (item T, err error) {
	ctx, span := s.start(ctx, OpFetchByID, attribute.String("rsvp.id", id))
	defer func() { err = s.finish(span, OpFetchByID, "Failed to fetch item with ID "+id, err) }()

	key := s.key(OpFetchByID, map[string]any{"id": id})
	req := client.Request{Path: s.itemPath(id)}

	return readThrough[T](ctx, s, key, s.config.CacheTTL, req)
}

// Create creates an item and returns it with server-assigned fields.
// Cached fetchAll variants are invalidated; cached items are kept.
func (s *Service[T]) Create(ctx context.Context, payload T) (item T, err error) {
	ctx, span := s.start(ctx, OpCreate)
	defer func() { err = s.finish(span, OpCreate, "Failed to create item", err) }()

	item, err = call[T](ctx, s, client.Request{Method: http.MethodPost, Path: s.endpoint, Body: payload})
	if err != nil {
		return item, err
	}

	s.invalidateList(ctx)
	return item, nil
}

// Update replaces an item. The whole cache is invalidated.
func (s *Service[T]) Update(ctx context.Context, id string, payload T) (item T, err error) {
	ctx, span := s.start(ctx, OpUpdate, attribute.String("rsvp.id", id))
	defer func() { err = s.finish(span, OpUpdate, "Failed to update item with ID "+id, err) }()

	item, err = call[T](ctx, s, client.Request{Method: http.MethodPut, Path: s.itemPath(id), Body: payload})
	if err != nil {
		return item, err
	}

	s.invalidateAll(ctx)
	return item, nil
}

// PartialUpdate updates the given fields of an item. The whole cache is
// invalidated.
func (s *Service[T]) PartialUpdate(ctx context.Context, id string, fields map[string]any) (item T, err error) {
	ctx, span := s.start(ctx, OpPartialUpdate, attribute.String("rsvp.id", id))
	defer func() { err = s.finish(span, OpPartialUpdate, "Failed to update item with ID "+id, err) }()

	item, err = call[T](ctx, s, client.Request{Method: http.MethodPatch, Path: s.itemPath(id), Body: fields})
	if err != nil {
		return item, err
	}

	s.invalidateAll(ctx)
	return item, nil
}

// Delete removes an item. The whole cache is invalidated.
func (s *Service[T]) Delete(ctx context.Context, id string) (err error) {
	ctx, span := s.start(ctx, OpDelete, attribute.String("rsvp.id", id))
	defer func() { err = s.finish(span, OpDelete, "Failed to delete item with ID "+id, err) }()

	if _, err = call[json.RawMessage](ctx, s, client.Request{Method: http.MethodDelete, Path: s.itemPath(id)}); err != nil {
		return err
	}

	s.invalidateAll(ctx)
	return nil
}

// BulkCreate creates items in one call with one fetchAll invalidation.
func (s *Service[T]) BulkCreate(ctx context.Context, items []T) (created []T, err error) {
	ctx, span := s.start(ctx, OpBulkCreate, attribute.Int("rsvp.count", len(items)))
	defer func() { err = s.finish(span, OpBulkCreate, "Failed to create items in bulk", err) }()

	body := map[string]any{"items": items}
	created, err = call[[]T](ctx, s, client.Request{Method: http.MethodPost, Path: s.bulkPath(), Body: body})
	if err != nil {
		return nil, err
	}

	s.invalidateList(ctx)
	return created, nil
}

// BulkUpdate applies updates in one call with one full invalidation.
func (s *Service[T]) BulkUpdate(ctx context.Context, updates []Update) (updated []T, err error) {
	ctx, span := s.start(ctx, OpBulkUpdate, attribute.Int("rsvp.count", len(updates)))
	defer func() { err = s.finish(span, OpBulkUpdate, "Failed to update items in bulk", err) }()

	body := map[string]any{"updates": updates}
	updated, err = call[[]T](ctx, s, client.Request{Method: http.MethodPut, Path: s.bulkPath(), Body: body})
	if err != nil {
		return nil, err
	}

	s.invalidateAll(ctx)
	return updated, nil
}

// BulkDelete removes items in one call with one full invalidation.
func (s *Service[T]) BulkDelete(ctx context.Context, ids []string) (err error) {
	ctx, span := s.start(ctx, OpBulkDelete, attribute.Int("rsvp.count", len(ids)))
	defer func() { err = s.finish(span, OpBulkDelete, "Failed to delete items in bulk", err) }()

	body := map[string]any{"ids": ids}
	if _, err = call[json.RawMessage](ctx, s, client.Request{Method: http.MethodDelete, Path: s.bulkPath(), Body: body}); err != nil {
		return err
	}

	s.invalidateAll(ctx)
	return nil
}

// Exists reports whether an item exists. Only a not-found failure yields
// false; other failures are returned.
func (s *Service[T]) Exists(ctx context.Context, id string) (bool, error) {
	ctx, span := s.start(ctx, OpExists, attribute.String("rsvp.id", id))
	defer span.End()

	_, err := s.FetchByID(ctx, id)
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
		return true, nil
	case IsNotFound(err):
		span.SetStatus(codes.Ok, "")
		return false, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
}

// Search returns items matching query. Results are cached for
// CacheTTL / SearchTTLDivisor.
func (s *Service[T]) Search(ctx context.Context, query string, filters Filters) (items []T, err error) {
	ctx, span := s.start(ctx, OpSearch, attribute.String("rsvp.query", query))
	defer func() { err = s.finish(span, OpSearch, "Failed to search "+s.endpoint, err) }()

	params := map[string]any{"q": query}
	if fp := filters.params(); fp != nil {
		params["filters"] = fp
	}
	values := filters.Values()
	values.Set("q", query)

	key := s.key(OpSearch, params)
	req := client.Request{Path: s.endpoint + "/search", Query: values}

	items, err = readThrough[[]T](ctx, s, key, s.SearchTTL(), req)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// SearchTTL returns the TTL of cached search results.
func (s *Service[T]) SearchTTL() time.Duration {
	return s.config.CacheTTL / SearchTTLDivisor
}

// GetPaginated returns one page. Each (page, limit, filters) tuple is cached
// separately.
func (s *Service[T]) GetPaginated(ctx context.Context, page, limit int, filters Filters) (result *Page[T], err error) {
	ctx, span := s.start(ctx, OpGetPaginated,
		attribute.Int("rsvp.page", page),
		attribute.Int("rsvp.limit", limit),
	)
	defer func() { err = s.finish(span, OpGetPaginated, fmt.Sprintf("Failed to fetch page %d", page), err) }()

	if page < 1 || limit < 1 {
		return nil, fmt.Errorf("page and limit must be >= 1 (got page=%d limit=%d)", page, limit)
	}

	params := map[string]any{"page": page, "limit": limit}
	if fp := filters.params(); fp != nil {
		params["filters"] = fp
	}
	values := filters.Values()
	values.Set("page", strconv.Itoa(page))
	values.Set("limit", strconv.Itoa(limit))

	key := s.key(OpGetPaginated, params)
	req := client.Request{Path: s.endpoint, Query: values}

	p, err := readThrough[Page[T]](ctx, s, key, s.config.CacheTTL, req)
	if err != nil {
		return nil, err
	}
	if p.Items == nil {
		p.Items = []T{}
	}
	return &p, nil
}

// Pages adapts the service to a pagination.PageFetcher over GetPaginated.
func (s *Service[T]) Pages(filters Filters, limit int) pagination.PageFetcher[T] {
	return pagination.PageFetcherFunc[T](func(ctx context.Context, page int) ([]T, int, error) {
		p, err := s.GetPaginated(ctx, page, limit, filters)
		if err != nil {
			return nil, 0, err
		}
		return p.Items, p.TotalPages, nil
	})
}

// InvalidateCache deletes every cached entry containing pattern, or the whole
// cache when pattern is empty.
func (s *Service[T]) InvalidateCache(ctx context.Context, pattern string) int {
	return s.cache.Invalidate(ctx, pattern)
}

func (s *Service[T]) key(op string, params map[string]any) cache.Key {
	return cache.Key{Endpoint: s.endpoint, Operation: op, Params: params}
}

func (s *Service[T]) itemPath(id string) string {
	return s.endpoint + "/" + url.PathEscape(id)
}

func (s *Service[T]) bulkPath() string {
	return s.endpoint + "/bulk"
}

// invalidateList drops every cached fetchAll variant.
func (s *Service[T]) invalidateList(ctx context.Context) {
	if !s.config.CachingEnabled {
		return
	}
	s.cache.Invalidate(ctx, s.key(OpFetchAll, nil).Prefix())
}

func (s *Service[T]) invalidateAll(ctx context.Context) {
	if !s.config.CachingEnabled {
		return
	}
	s.cache.Invalidate(ctx, "")
}

func (s *Service[T]) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("rsvp.endpoint", s.endpoint),
		attribute.String("rsvp.operation", op),
	)
	return s.tracer.Start(ctx, "service."+op,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// finish ends the span and wraps err in an *OperationError. Typed failures
// carry their user message; anything else gets fallback.
func (s *Service[T]) finish(span trace.Span, op, fallback string, err error) error {
	defer span.End()

	if err == nil {
		span.SetStatus(codes.Ok, "")
		OperationsTotal.WithLabelValues(s.endpoint, op, "success").Inc()
		return nil
	}

	OperationsTotal.WithLabelValues(s.endpoint, op, "error").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var opErr *OperationError
	if errors.As(err, &opErr) {
		return err
	}

	if apiErr, ok := client.AsAPIError(err); ok {
		msg := client.UserMessage(apiErr)
		s.logger.Warn().
			Err(err).
			Str("operation", op).
			Int("status_code", apiErr.StatusCode).
			Str("error_class", string(apiErr.Class)).
			Msg(msg)
		return &OperationError{Op: op, Message: msg, Err: err}
	}

	s.logger.Error().
		Err(err).
		Str("operation", op).
		Msg(fallback)
	return &OperationError{Op: op, Message: fallback, Err: err}
}

// call issues a request without touching the cache.
func call[R any](ctx context.Context, s cacheOwner, req client.Request) (R, error) {
	result, err := client.Call[R](ctx, s.transportOf(), req)
	if err != nil {
		var zero R
		return zero, err
	}
	return result.Value, nil
}

// readThrough serves req from the cache under key, or issues it and caches
// the raw data for ttl. Concurrent misses on one key share a single call.
func readThrough[R any](ctx context.Context, s cacheOwner, key cache.Key, ttl time.Duration, req client.Request) (R, error) {
	var zero R
	if !s.cachingEnabled() {
		return call[R](ctx, s, req)
	}

	k := key.String()
	span := trace.SpanFromContext(ctx)

	if data, ok := s.cacheOf().Get(ctx, k); ok {
		var v R
		if err := json.Unmarshal(data, &v); err == nil {
			span.SetAttributes(attribute.Bool("rsvp.cache_hit", true))
			return v, nil
		}
		s.cacheOf().Delete(ctx, k)
	}
	span.SetAttributes(attribute.Bool("rsvp.cache_hit", false))

	ch := s.flight().DoChan(k, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SharedCallTimeout)
		defer cancel()

		raw, err := call[json.RawMessage](callCtx, s, req)
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		s.cacheOf().SetWithTTL(callCtx, k, raw, ttl)
		return []byte(raw), nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return zero, client.NewNetworkError(ctx.Err())
	}
	if res.Err != nil {
		return zero, res.Err
	}

	var v R
	if err := json.Unmarshal(res.Val.([]byte), &v); err != nil {
		return zero, client.NewParseError(http.StatusOK, err)
	}
	return v, nil
}

// cacheOwner is the non-generic part of a Service used by the generic
// helpers, which cannot be methods.
type cacheOwner interface {
	transportOf() client.Transport
	cacheOf() *cache.Cache
	cachingEnabled() bool
	flight() *singleflight.Group
}

func (s *Service[T]) transportOf() client.Transport { return s.transport }
func (s *Service[T]) cacheOf() *cache.Cache         { return s.cache }
func (s *Service[T]) cachingEnabled() bool          { return s.config.CachingEnabled }
func (s *Service[T]) flight() *singleflight.Group   { return &s.group }
