// Package gateway is the HTTP boundary of the RSVP service. It enforces rate
// limits on sensitive operations, validates input and dispatches to the RSVP
// service.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/rsvp-client/pkg/cache"
	"github.com/Sternrassler/rsvp-client/pkg/client"
	"github.com/Sternrassler/rsvp-client/pkg/logging"
	"github.com/Sternrassler/rsvp-client/pkg/metrics"
	"github.com/Sternrassler/rsvp-client/pkg/pagination"
	"github.com/Sternrassler/rsvp-client/pkg/ratelimit"
	"github.com/Sternrassler/rsvp-client/pkg/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Listing defaults.
const (
	DefaultPageSize   = 20
	MaxPageSize       = 100
	DefaultExportSize = 100
	maxBodyBytes      = 1 << 20
)

// Config holds the gateway dependencies.
type Config struct {
	// RSVPs dispatches RSVP operations (required).
	RSVPs *service.Service[RSVP]

	// Auth checks admin credentials and tokens (required).
	Auth *Authenticator

	// Limiter guards submissions and logins (required).
	Limiter *ratelimit.Limiter

	// Redis is pinged by /ready when set.
	Redis *redis.Client

	// ExportPageSize is the page size used by the export fan-out.
	ExportPageSize int

	// Pagination configures the export fan-out.
	Pagination pagination.Config

	// Logger defaults to the "gateway" component logger.
	Logger *zerolog.Logger
}

type handler struct {
	rsvps      *service.Service[RSVP]
	auth       *Authenticator
	limiter    *ratelimit.Limiter
	redis      *redis.Client
	exportSize int
	pagination pagination.Config
	logger     zerolog.Logger
	mux        *http.ServeMux

	// submitMu makes the duplicate check and the create one step.
	submitMu sync.Mutex
}

// NewHandler builds the gateway router.
func NewHandler(cfg Config) (http.Handler, error) {
	if cfg.RSVPs == nil {
		return nil, errors.New("rsvp service is required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	if cfg.ExportPageSize <= 0 {
		cfg.ExportPageSize = DefaultExportSize
	}

	logger := logging.NewLogger("gateway")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	h := &handler{
		rsvps:      cfg.RSVPs,
		auth:       cfg.Auth,
		limiter:    cfg.Limiter,
		redis:      cfg.Redis,
		exportSize: cfg.ExportPageSize,
		pagination: cfg.Pagination,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /ready", h.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/rsvps", h.handleSubmit)
	mux.HandleFunc("POST /api/admin/login", h.handleLogin)

	mux.Handle("GET /api/admin/rsvps", h.requireAdmin(h.handleList))
	mux.Handle("GET /api/admin/rsvps/export", h.requireAdmin(h.handleExport))
	mux.Handle("GET /api/admin/rsvps/stats", h.requireAdmin(h.handleStats))
	mux.Handle("POST /api/admin/rsvps/bulk-delete", h.requireAdmin(h.handleBulkDelete))
	mux.Handle("GET /api/admin/rsvps/{id}", h.requireAdmin(h.handleGet))
	mux.Handle("PATCH /api/admin/rsvps/{id}", h.requireAdmin(h.handlePatch))
	mux.Handle("DELETE /api/admin/rsvps/{id}", h.requireAdmin(h.handleDelete))
	h.mux = mux

	return withRequestLogging(h.logger, h), nil
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.redis.Ping(ctx).Err(); err != nil {
			h.logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

// allow consults policy for the caller and writes the denial when refused.
func (h *handler) allow(w http.ResponseWriter, r *http.Request, policy ratelimit.Policy) bool {
	identity := ratelimit.ClientIdentity(r)
	decision := h.limiter.AllowPolicy(r.Context(), identity, policy)
	setRateLimitHeaders(w, decision)

	if !decision.Allowed {
		h.logger.Warn().
			Str("policy", policy.Name).
			Str("identity", identity).
			Time("reset_at", decision.ResetAt).
			Msg("Request rate limited")
		writeRateLimited(w, decision, h.limiter.Now())
		return false
	}
	return true
}

func (h *handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, ratelimit.SubmissionPolicy) {
		return
	}

	var sub Submission
	if err := decodeBody(w, r, &sub); err != nil {
		writeAPIError(w, invalidJSON(err))
		return
	}
	sub.Normalize()
	if details := sub.Validate(); details != nil {
		writeAPIError(w, validationError(details))
		return
	}

	created, err := h.createUnique(r.Context(), sub)
	switch {
	case errors.Is(err, errDuplicate), isStatus(err, http.StatusConflict):
		writeFailure(w, http.StatusConflict, CodeDuplicate, MessageDuplicate)
		return
	case err != nil:
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, created, "Thank you for your RSVP!")
}

var errDuplicate = errors.New("rsvp already exists for email")

// createUnique creates the RSVP unless one exists for the same email. A 409
// from the endpoint is passed through for the caller to map.
func (h *handler) createUnique(ctx context.Context, sub Submission) (RSVP, error) {
	h.submitMu.Lock()
	defer h.submitMu.Unlock()

	existing, err := h.rsvps.FetchAll(ctx, service.Filters{"email": sub.Email})
	if err != nil {
		return RSVP{}, err
	}
	if len(existing) > 0 {
		return RSVP{}, errDuplicate
	}

	created, err := h.rsvps.Create(ctx, sub.RSVP())
	if err != nil {
		return RSVP{}, err
	}
	h.dropListings(ctx)
	return created, nil
}

// dropListings removes cached pages and search results so the admin views
// include a new submission right away. Create itself only drops fetchAll
// variants.
func (h *handler) dropListings(ctx context.Context) {
	endpoint := h.rsvps.Config().Endpoint
	for _, op := range []string{service.OpGetPaginated, service.OpSearch} {
		h.rsvps.InvalidateCache(ctx, cache.Key{Endpoint: endpoint, Operation: op}.Prefix())
	}
}

func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, ratelimit.LoginPolicy) {
		return
	}

	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(w, r, &creds); err != nil {
		writeAPIError(w, invalidJSON(err))
		return
	}

	details := map[string][]string{}
	if strings.TrimSpace(creds.Username) == "" {
		details["username"] = []string{"is required"}
	}
	if creds.Password == "" {
		details["password"] = []string{"is required"}
	}
	if len(details) > 0 {
		writeAPIError(w, client.NewStatusError(http.StatusBadRequest, "", CodeValidation, details))
		return
	}

	token, err := h.auth.Login(r.Context(), strings.TrimSpace(creds.Username), creds.Password)
	if err != nil {
		if isStatus(err, http.StatusUnauthorized) {
			writeFailure(w, http.StatusUnauthorized, CodeUnauthorized, MessageInvalidCredentials)
			return
		}
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{"token": token}, "")
}

// requireAdmin admits requests carrying a bearer token the auth endpoint
// reports as valid.
func (h *handler) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok || token == "" {
			writeAPIError(w, unauthorized())
			return
		}

		valid, err := h.auth.Verify(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		if !valid {
			writeAPIError(w, unauthorized())
			return
		}

		next(w, r)
	})
}

func (h *handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := listFilters(query)

	if q := strings.TrimSpace(query.Get("q")); q != "" {
		items, err := h.rsvps.Search(r.Context(), q, filters)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, items, "")
		return
	}

	page, err := intParam(query.Get("page"), 1)
	if err != nil || page < 1 {
		writeAPIError(w, validationError(map[string][]string{"page": {"must be a positive integer"}}))
		return
	}
	limit, err := intParam(query.Get("limit"), DefaultPageSize)
	if err != nil || limit < 1 || limit > MaxPageSize {
		writeAPIError(w, validationError(map[string][]string{"limit": {"must be between 1 and " + strconv.Itoa(MaxPageSize)}}))
		return
	}

	result, err := h.rsvps.GetPaginated(r.Context(), page, limit, filters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, result, "")
}

func (h *handler) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := h.rsvps.FetchByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, item, "")
}

func (h *handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	var patch Patch
	if err := decodeBody(w, r, &patch); err != nil {
		writeAPIError(w, invalidJSON(err))
		return
	}
	if details := patch.Validate(); details != nil {
		writeAPIError(w, validationError(details))
		return
	}
	fields := patch.Fields()
	if len(fields) == 0 {
		writeAPIError(w, client.NewStatusError(http.StatusBadRequest, "No fields to update", CodeValidation, nil))
		return
	}

	updated, err := h.rsvps.PartialUpdate(r.Context(), r.PathValue("id"), fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, updated, "RSVP updated")
}

func (h *handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.rsvps.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil, "RSVP deleted")
}

func (h *handler) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeAPIError(w, invalidJSON(err))
		return
	}

	ids := make([]string, 0, len(body.IDs))
	seen := make(map[string]bool, len(body.IDs))
	for _, id := range body.IDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		writeAPIError(w, validationError(map[string][]string{"ids": {"must contain at least one id"}}))
		return
	}

	if err := h.rsvps.BulkDelete(r.Context(), ids); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]int{"deleted": len(ids)}, "RSVPs deleted")
}

func (h *handler) handleExport(w http.ResponseWriter, r *http.Request) {
	all, err := h.fetchAll(r.Context(), listFilters(r.URL.Query()))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="rsvps.json"`)
	writeSuccess(w, http.StatusOK, all, "")
}

func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	all, err := h.fetchAll(r.Context(), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, Summarize(all), "")
}

// fetchAll reads every page concurrently.
func (h *handler) fetchAll(ctx context.Context, filters service.Filters) ([]RSVP, error) {
	fetcher := pagination.NewBatchFetcher(h.rsvps.Pages(filters, h.exportSize), h.pagination)
	return fetcher.FetchAllPages(ctx)
}

// listFilters picks the supported filters from a query.
func listFilters(query map[string][]string) service.Filters {
	filters := service.Filters{}
	if v := first(query["attending"]); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filters["attending"] = b
		}
	}
	if v := first(query["email"]); v != "" {
		filters["email"] = strings.ToLower(v)
	}
	if len(filters) == 0 {
		return nil
	}
	return filters
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
