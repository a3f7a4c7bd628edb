// Package testutil provides testing utilities for the RSVP client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Default credentials accepted by the mock auth endpoints.
const (
	MockUsername = "admin"
	MockPassword = "secret"
	MockToken    = "mock-token"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is an in-memory resource endpoint speaking the envelope format.
//
// Any first path segment is a resource collection:
//
//	GET    /<ep>                 list (query params filter by field, page+limit paginate)
//	POST   /<ep>                 create
//	GET    /<ep>/search?q=       case-insensitive substring search
//	POST   /<ep>/bulk            {"items": [...]}
//	PUT    /<ep>/bulk            {"updates": [{"id", "data"}]}
//	DELETE /<ep>/bulk            {"ids": [...]}
//	GET    /<ep>/<id>            fetch
//	PUT    /<ep>/<id>            replace
//	PATCH  /<ep>/<id>            merge fields
//	DELETE /<ep>/<id>            delete
//	POST   /auth/login           {"username","password"} -> {"token"}
//	GET    /auth/verify          bearer token -> {"valid"}
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	collections map[string]*collection
	nextID      int
	now         func() time.Time

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	counts            map[string]int
}

type collection struct {
	order []string
	items map[string]map[string]any
}

// NewMockAPI creates a new mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers:    make(map[string]http.HandlerFunc),
		collections: make(map[string]*collection),
		counts:      make(map[string]int),
		now:         time.Now,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.counts[r.Method+" "+r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.Method+" "+r.URL.Path]
		if !exists {
			handler, exists = mock.handlers[r.URL.Path]
		}
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.route(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.counts = make(map[string]int)
}

// SetHandler overrides a route. key is either "METHOD /path" or "/path".
func (m *MockAPI) SetHandler(key string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[key] = handler
}

// SetResponse configures a fixed response for a route.
func (m *MockAPI) SetResponse(key string, resp MockResponse) {
	m.SetHandler(key, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	})
}

// Seed stores items in a collection. Items without an "id" get one.
func (m *MockAPI) Seed(endpoint string, items ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collection(endpoint)
	for _, item := range items {
		m.insert(c, item)
	}
}

// Items returns a copy of a collection in insertion order.
func (m *MockAPI) Items(endpoint string) []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[endpoint]
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, copyItem(c.items[id]))
	}
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// Count returns the number of requests for one method and path.
func (m *MockAPI) Count(method, path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[method+" "+path]
}

// WriteSuccess writes a success envelope.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

// WriteFailure writes a failure envelope.
func WriteFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"success":false,"error":"Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewValidationErrorResponse creates a 422 response with field details.
func NewValidationErrorResponse(field, message string) MockResponse {
	body, _ := json.Marshal(map[string]any{
		"success": false,
		"error":   "Validation failed",
		"details": map[string][]string{field: {message}},
	})
	return MockResponse{
		StatusCode: http.StatusUnprocessableEntity,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

func (m *MockAPI) route(w http.ResponseWriter, r *http.Request) {
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		WriteFailure(w, http.StatusNotFound, "Not found")
		return
	}

	if segments[0] == "auth" && len(segments) == 2 {
		m.auth(w, r, segments[1])
		return
	}

	endpoint := segments[0]
	switch {
	case len(segments) == 1:
		m.collectionRoute(w, r, endpoint)
	case len(segments) == 2 && segments[1] == "search" && r.Method == http.MethodGet:
		m.search(w, r, endpoint)
	case len(segments) == 2 && segments[1] == "bulk":
		m.bulk(w, r, endpoint)
	case len(segments) == 2:
		m.itemRoute(w, r, endpoint, segments[1])
	default:
		WriteFailure(w, http.StatusNotFound, "Not found")
	}
}

func (m *MockAPI) auth(w http.ResponseWriter, r *http.Request, action string) {
	switch {
	case action == "login" && r.Method == http.MethodPost:
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			WriteFailure(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if creds.Username != MockUsername || creds.Password != MockPassword {
			WriteFailure(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		WriteSuccess(w, http.StatusOK, map[string]any{"token": MockToken})
	case action == "verify" && r.Method == http.MethodGet:
		valid := r.Header.Get("Authorization") == "Bearer "+MockToken
		WriteSuccess(w, http.StatusOK, map[string]any{"valid": valid})
	default:
		WriteFailure(w, http.StatusNotFound, "Not found")
	}
}

func (m *MockAPI) collectionRoute(w http.ResponseWriter, r *http.Request, endpoint string) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		page, limit := query.Get("page"), query.Get("limit")
		query.Del("page")
		query.Del("limit")

		m.mu.RLock()
		items := m.filtered(endpoint, func(item map[string]any) bool { return matches(item, query) })
		m.mu.RUnlock()

		if page == "" && limit == "" {
			WriteSuccess(w, http.StatusOK, items)
			return
		}
		m.paginate(w, items, page, limit)

	case http.MethodPost:
		var item map[string]any
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			WriteFailure(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		m.mu.Lock()
		created := m.insert(m.collection(endpoint), item)
		m.mu.Unlock()
		WriteSuccess(w, http.StatusCreated, created)

	default:
		WriteFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (m *MockAPI) paginate(w http.ResponseWriter, items []map[string]any, pageStr, limitStr string) {
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		WriteFailure(w, http.StatusBadRequest, "Invalid page")
		return
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 {
		WriteFailure(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	total := len(items)
	totalPages := (total + limit - 1) / limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	WriteSuccess(w, http.StatusOK, map[string]any{
		"items":      items[start:end],
		"total":      total,
		"page":       page,
		"totalPages": totalPages,
	})
}

func (m *MockAPI) search(w http.ResponseWriter, r *http.Request, endpoint string) {
	query := r.URL.Query()
	q := strings.ToLower(query.Get("q"))
	query.Del("q")

	m.mu.RLock()
	items := m.filtered(endpoint, func(item map[string]any) bool {
		if !matches(item, query) {
			return false
		}
		for _, v := range item {
			if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), q) {
				return true
			}
		}
		return false
	})
	m.mu.RUnlock()

	WriteSuccess(w, http.StatusOK, items)
}

func (m *MockAPI) bulk(w http.ResponseWriter, r *http.Request, endpoint string) {
	var body struct {
		Items   []map[string]any `json:"items"`
		Updates []struct {
			ID   string         `json:"id"`
			Data map[string]any `json:"data"`
		} `json:"updates"`
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteFailure(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collection(endpoint)

	switch r.Method {
	case http.MethodPost:
		created := make([]map[string]any, 0, len(body.Items))
		for _, item := range body.Items {
			created = append(created, m.insert(c, item))
		}
		WriteSuccess(w, http.StatusCreated, created)

	case http.MethodPut:
		updated := make([]map[string]any, 0, len(body.Updates))
		for _, u := range body.Updates {
			item, ok := c.items[u.ID]
			if !ok {
				WriteFailure(w, http.StatusNotFound, fmt.Sprintf("Item %s not found", u.ID))
				return
			}
			for k, v := range u.Data {
				item[k] = v
			}
			item["updatedAt"] = m.now().UTC().Format(time.RFC3339)
			updated = append(updated, copyItem(item))
		}
		WriteSuccess(w, http.StatusOK, updated)

	case http.MethodDelete:
		for _, id := range body.IDs {
			m.remove(c, id)
		}
		WriteSuccess(w, http.StatusOK, nil)

	default:
		WriteFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (m *MockAPI) itemRoute(w http.ResponseWriter, r *http.Request, endpoint, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collection(endpoint)

	item, ok := c.items[id]
	if !ok {
		WriteFailure(w, http.StatusNotFound, fmt.Sprintf("Item %s not found", id))
		return
	}

	switch r.Method {
	case http.MethodGet:
		WriteSuccess(w, http.StatusOK, copyItem(item))

	case http.MethodPut, http.MethodPatch:
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			WriteFailure(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if r.Method == http.MethodPut {
			item = map[string]any{"id": id, "createdAt": item["createdAt"]}
			c.items[id] = item
		}
		for k, v := range fields {
			if k == "id" {
				continue
			}
			item[k] = v
		}
		item["updatedAt"] = m.now().UTC().Format(time.RFC3339)
		WriteSuccess(w, http.StatusOK, copyItem(item))

	case http.MethodDelete:
		m.remove(c, id)
		WriteSuccess(w, http.StatusOK, nil)

	default:
		WriteFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// collection returns the named collection, creating it. Caller holds mu.
func (m *MockAPI) collection(endpoint string) *collection {
	c, ok := m.collections[endpoint]
	if !ok {
		c = &collection{items: make(map[string]map[string]any)}
		m.collections[endpoint] = c
	}
	return c
}

// insert stores a copy of item with server-assigned fields. Caller holds mu.
func (m *MockAPI) insert(c *collection, item map[string]any) map[string]any {
	stored := copyItem(item)
	id, _ := stored["id"].(string)
	if id == "" {
		id = m.newID(c)
		stored["id"] = id
	}
	if _, ok := stored["createdAt"]; !ok {
		stored["createdAt"] = m.now().UTC().Format(time.RFC3339)
	}
	if _, exists := c.items[id]; !exists {
		c.order = append(c.order, id)
	}
	c.items[id] = stored
	return copyItem(stored)
}

// newID returns the next numeric id not already used in c. Caller holds mu.
func (m *MockAPI) newID(c *collection) string {
	for {
		m.nextID++
		id := strconv.Itoa(m.nextID)
		if _, taken := c.items[id]; !taken {
			return id
		}
	}
}

// remove deletes an item. Caller holds mu.
func (m *MockAPI) remove(c *collection, id string) {
	if _, ok := c.items[id]; !ok {
		return
	}
	delete(c.items, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// filtered returns copies of matching items. Caller holds mu.
func (m *MockAPI) filtered(endpoint string, keep func(map[string]any) bool) []map[string]any {
	items := []map[string]any{}
	c, ok := m.collections[endpoint]
	if !ok {
		return items
	}
	for _, id := range c.order {
		if keep(c.items[id]) {
			items = append(items, copyItem(c.items[id]))
		}
	}
	return items
}

func matches(item map[string]any, query map[string][]string) bool {
	for name, want := range query {
		got := fmt.Sprint(item[name])
		found := false
		for _, w := range want {
			if got == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func copyItem(item map[string]any) map[string]any {
	out := make(map[string]any, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
