package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/memory/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fluxbase-eu/tabulate/internal/auth"
	"github.com/fluxbase-eu/tabulate/internal/config"
	"github.com/fluxbase-eu/tabulate/internal/database"
	"github.com/fluxbase-eu/tabulate/internal/observability"
	"github.com/fluxbase-eu/tabulate/internal/pagination"
	"github.com/fluxbase-eu/tabulate/internal/resource"
	"github.com/fluxbase-eu/tabulate/internal/scope"
)

const testCatalog = `
resources:
  users:
    schema: public
    filters:
      - name: email
        kind: string
      - name: age
        kind: integer
        strict: true
    sorts:
      - name: created_at
      - name: email
    search:
      mode: ilike
      columns: [email]
  orders:
    schema: public
    filters:
      - name: total
        kind: decimal
`

// fakeStore answers with canned rows and remembers the SQL it was given.
type fakeStore struct {
	mu        sync.Mutex
	total     int
	rows      []database.Row
	selectErr error
	healthErr error
	selects   []string
	args      [][]any
}

func (f *fakeStore) Count(_ context.Context, s scope.Scope) (int, error) {
	return f.total, nil
}

func (f *fakeStore) Select(_ context.Context, s scope.Scope) ([]database.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sql, args := s.BuildSelect()
	f.selects = append(f.selects, sql)
	f.args = append(f.args, args)
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return f.rows, nil
}

func (f *fakeStore) Health(context.Context) error {
	return f.healthErr
}

func (f *fakeStore) lastSelect() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.selects) == 0 {
		return ""
	}
	return f.selects[len(f.selects)-1]
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Address:       ":0",
			ReadTimeout:   time.Second,
			WriteTimeout:  time.Second,
			IdleTimeout:   time.Second,
			BodyLimit:     1024,
			SlowThreshold: time.Second,
		},
		Pagination: pagination.DefaultLimits(),
		Search:     config.SearchConfig{Param: "q"},
		Metrics:    config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, store *fakeStore) *Server {
	t.Helper()
	catalog, err := resource.Parse([]byte(testCatalog), resource.Defaults{
		Limits:      cfg.Pagination,
		SearchParam: cfg.Search.Param,
	})
	require.NoError(t, err)
	return NewServer(cfg, catalog, store, observability.NewMetrics())
}

func doGet(t *testing.T, s *Server, target string, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.App().Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp, body
}

// =============================================================================
// Health
// =============================================================================

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		healthErr  error
		wantStatus int
		wantState  string
	}{
		{"healthy", nil, 200, "ok"},
		{"database down", errors.New("connection refused"), 503, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig(), &fakeStore{healthErr: tt.healthErr})
			resp, body := doGet(t, s, "/health")

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantState, body["status"])
			assert.Equal(t, float64(2), body["resources"])
			assert.Equal(t, tt.healthErr == nil, body["services"].(map[string]any)["database"])
		})
	}
}

// =============================================================================
// Resource catalogue
// =============================================================================

func TestHandleListResources(t *testing.T) {
	s := newTestServer(t, testConfig(), &fakeStore{})
	resp, body := doGet(t, s, "/api/v1/tables")
	require.Equal(t, 200, resp.StatusCode)

	data := body["data"].([]any)
	require.Len(t, data, 2)

	orders := data[0].(map[string]any)
	assert.Equal(t, "orders", orders["name"])
	assert.Equal(t, []any{"total"}, orders["filters"])

	users := data[1].(map[string]any)
	assert.Equal(t, "users", users["name"])
	assert.ElementsMatch(t, []any{"email", "age"}, users["filters"])
	assert.Equal(t, "q", users["search_param"])
	assert.Equal(t, "id desc", users["default_sort"])
	assert.Equal(t, float64(pagination.DefaultPerPage), users["per_page"])
}

// =============================================================================
// Listing
// =============================================================================

func TestHandleTable_Listing(t *testing.T) {
	store := &fakeStore{
		total: 25,
		rows:  []database.Row{{"id": int64(1), "email": "a@example.com"}},
	}
	s := newTestServer(t, testConfig(), store)

	resp, body := doGet(t, s, "/api/v1/tables/users?email=example&email.rel=contains&sort_key=email&sort_direction=asc&page=2&per_page=10")
	require.Equal(t, 200, resp.StatusCode)

	sql := store.lastSelect()
	assert.Contains(t, sql, `"users"."email" ILIKE`)
	assert.Contains(t, sql, `ORDER BY "users"."email" ASC`)
	assert.Contains(t, sql, "LIMIT 10 OFFSET 10")

	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "a@example.com", data[0].(map[string]any)["email"])

	meta := body["meta"].(map[string]any)
	page := meta["pagination"].(map[string]any)
	assert.Equal(t, float64(25), page["total_count"])
	assert.Equal(t, float64(3), page["total_pages"])
	assert.Equal(t, float64(2), page["page"])
	assert.Len(t, meta["filters"], 1)

	links := body["links"].(map[string]any)
	assert.Contains(t, links["self"], "/api/v1/tables/users?")
	assert.Contains(t, links["self"], "page=2")
	assert.Contains(t, links["next"], "page=3")
	assert.Contains(t, links["prev"], "page=1")
	assert.Contains(t, links["last"], "page=3")
	assert.Contains(t, links["next"], "email.rel=contains")
	assert.Contains(t, links["next"], "sort_key=email")
}

func TestHandleTable_HugePage(t *testing.T) {
	store := &fakeStore{total: 3, rows: []database.Row{}}
	s := newTestServer(t, testConfig(), store)

	resp, body := doGet(t, s, "/api/v1/tables/users?page=9223372036854775807&per_page=100")
	require.Equal(t, 200, resp.StatusCode)

	assert.Contains(t, store.lastSelect(), "LIMIT 100 OFFSET 9223372036854775800")
	assert.NotContains(t, store.lastSelect(), "OFFSET -")
	assert.NotNil(t, body["meta"])
}

func TestHandleTable_EmptyResult(t *testing.T) {
	s := newTestServer(t, testConfig(), &fakeStore{rows: []database.Row{}})

	resp, body := doGet(t, s, "/api/v1/tables/orders")
	require.Equal(t, 200, resp.StatusCode)

	assert.Equal(t, []any{}, body["data"])
	links := body["links"].(map[string]any)
	assert.Contains(t, links["last"], "page=1")
	assert.NotContains(t, links, "next")
	assert.NotContains(t, links, "prev")
}

func TestHandleTable_LegacyGreaterThan(t *testing.T) {
	tests := []struct {
		name   string
		legacy bool
		want   string
	}{
		{"strict", false, `"users"."age" > $1`},
		{"legacy", true, `NOT ("users"."age" < $1)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Filter.LegacyGreaterThan = tt.legacy
			store := &fakeStore{total: 1}
			s := newTestServer(t, cfg, store)

			resp, _ := doGet(t, s, "/api/v1/tables/users?age=30&age.rel=gt")
			require.Equal(t, 200, resp.StatusCode)
			assert.Contains(t, store.lastSelect(), tt.want)
		})
	}
}

// =============================================================================
// Errors
// =============================================================================

func TestHandleTable_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		selectErr  error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown resource",
			target:     "/api/v1/tables/invoices",
			wantStatus: 404,
			wantCode:   CodeResourceNotFound,
		},
		{
			name:       "malformed query string",
			target:     "/api/v1/tables/users?email=%zz",
			wantStatus: 400,
			wantCode:   CodeInvalidQuery,
		},
		{
			name:       "strict filter value",
			target:     "/api/v1/tables/users?age=abc",
			wantStatus: 400,
			wantCode:   "INVALID_FILTER_VALUE",
		},
		{
			name:       "strict filter relation",
			target:     "/api/v1/tables/users?age=3&age.rel=starts_with",
			wantStatus: 400,
			wantCode:   "INVALID_FILTER_RELATION",
		},
		{
			name:       "unknown sort key",
			target:     "/api/v1/tables/users?sort_key=password",
			wantStatus: 400,
			wantCode:   "INVALID_SORT_KEY",
		},
		{
			name:       "bad sort direction",
			target:     "/api/v1/tables/users?sort_key=email&sort_direction=sideways",
			wantStatus: 400,
			wantCode:   "INVALID_SORT_DIRECTION",
		},
		{
			name:       "undefined column",
			target:     "/api/v1/tables/orders",
			selectErr:  fmt.Errorf("select on orders failed: %w", &pgconn.PgError{Code: database.ErrCodeUndefinedColumn}),
			wantStatus: 400,
			wantCode:   CodeInvalidColumn,
		},
		{
			name:       "value rejected by column type",
			target:     "/api/v1/tables/orders?total=abc",
			selectErr:  &pgconn.PgError{Code: database.ErrCodeInvalidTextRepresentation},
			wantStatus: 400,
			wantCode:   CodeInvalidValue,
		},
		{
			name:       "offset rejected by database",
			target:     "/api/v1/tables/orders?page=2",
			selectErr:  &pgconn.PgError{Code: database.ErrCodeInvalidRowCountInOffset},
			wantStatus: 400,
			wantCode:   CodeInvalidValue,
		},
		{
			name:       "statement timeout",
			target:     "/api/v1/tables/orders",
			selectErr:  &pgconn.PgError{Code: database.ErrCodeQueryCanceled},
			wantStatus: 504,
			wantCode:   CodeQueryTimeout,
		},
		{
			name:       "context deadline",
			target:     "/api/v1/tables/orders",
			selectErr:  fmt.Errorf("select: %w", context.DeadlineExceeded),
			wantStatus: 504,
			wantCode:   CodeQueryTimeout,
		},
		{
			name:       "anything else",
			target:     "/api/v1/tables/orders",
			selectErr:  errors.New("connection reset by peer"),
			wantStatus: 500,
			wantCode:   CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig(), &fakeStore{selectErr: tt.selectErr})
			resp, body := doGet(t, s, tt.target, "X-Request-ID", "req-42")

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, body["code"])
			assert.Equal(t, "req-42", body["request_id"])
			assert.NotContains(t, body["message"], "connection reset")
		})
	}
}

func TestCustomErrorHandler_UnknownRoute(t *testing.T) {
	s := newTestServer(t, testConfig(), &fakeStore{})
	resp, body := doGet(t, s, "/nope")

	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "Cannot GET /nope", body["error"])
	assert.NotEmpty(t, body["request_id"])
}

// =============================================================================
// Middleware wiring
// =============================================================================

func TestHandleTable_ETag(t *testing.T) {
	s := newTestServer(t, testConfig(), &fakeStore{total: 1, rows: []database.Row{{"id": int64(1)}}})

	resp, _ := doGet(t, s, "/api/v1/tables/users")
	require.Equal(t, 200, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	resp, _ = doGet(t, s, "/api/v1/tables/users", "If-None-Match", etag)
	assert.Equal(t, 304, resp.StatusCode)
}

func TestHandleTable_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimitMax = 1
	cfg.Server.RateLimitWindow = time.Minute
	s := newTestServer(t, cfg, &fakeStore{})

	resp, _ := doGet(t, s, "/api/v1/tables/users")
	assert.Equal(t, 200, resp.StatusCode)

	resp, body := doGet(t, s, "/api/v1/tables/users")
	assert.Equal(t, 429, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", body["code"])

	resp, _ = doGet(t, s, "/api/v1/tables/orders")
	assert.Equal(t, 200, resp.StatusCode)
}

func TestHandleTable_SharedRateLimitStorage(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimitMax = 1
	cfg.Server.RateLimitWindow = time.Minute
	storage := memory.New()
	t.Cleanup(func() { _ = storage.Close() })

	catalog, err := resource.Parse([]byte(testCatalog), resource.Defaults{Limits: cfg.Pagination, SearchParam: "q"})
	require.NoError(t, err)
	first := NewServer(cfg, catalog, &fakeStore{}, nil, WithRateLimitStorage(storage))
	second := NewServer(cfg, catalog, &fakeStore{}, nil, WithRateLimitStorage(storage))

	resp, _ := doGet(t, first, "/api/v1/tables/users")
	assert.Equal(t, 200, resp.StatusCode)

	resp, _ = doGet(t, second, "/api/v1/tables/users")
	assert.Equal(t, 429, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig(), &fakeStore{total: 3})

	resp, _ := doGet(t, s, "/api/v1/tables/users?email=a")
	require.Equal(t, 200, resp.StatusCode)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(raw)
	assert.Contains(t, text, `tabulate_http_requests_total{method="GET",path="/api/v1/tables/:resource",status="2xx"} 1`)
	assert.Contains(t, text, `tabulate_stages_total{outcome="success",stage="filter"} 1`)
	assert.Contains(t, text, "tabulate_uptime_seconds")
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	s := newTestServer(t, cfg, &fakeStore{})

	resp, _ := doGet(t, s, "/metrics")
	assert.Equal(t, 404, resp.StatusCode)
}

// =============================================================================
// Export
// =============================================================================

func TestHandleExport_CSV(t *testing.T) {
	store := &fakeStore{
		total: 1,
		rows:  []database.Row{{"id": int64(7), "email": "a@example.com"}},
	}
	s := newTestServer(t, testConfig(), store)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/v1/tables/users/export?email=a&sort_key=email", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="users.csv"`)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "id,email\n7,a@example.com\n", string(raw))

	assert.Contains(t, store.lastSelect(), `ORDER BY "users"."email" DESC`)
}

func TestHandleExport_XLSX(t *testing.T) {
	store := &fakeStore{
		total: 1,
		rows:  []database.Row{{"id": int64(7), "email": "a@example.com"}},
	}
	s := newTestServer(t, testConfig(), store)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/v1/tables/users/export?format=xlsx", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="users.xlsx"`)

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("users")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "email"}, {"7", "a@example.com"}}, rows)

	// format is not a filter
	assert.NotContains(t, store.lastSelect(), "WHERE")
}

func TestHandleExport_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCode   string
	}{
		{"bad format", "/api/v1/tables/users/export?format=pdf", 400, CodeInvalidQuery},
		{"unknown resource", "/api/v1/tables/nope/export", 404, CodeResourceNotFound},
		{"bad sort key", "/api/v1/tables/users/export?sort_key=password", 400, "INVALID_SORT_KEY"},
	}

	s := newTestServer(t, testConfig(), &fakeStore{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doGet(t, s, tt.target)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}
}

// =============================================================================
// Auth
// =============================================================================

const testJWTSecret = "this-is-a-very-secure-secret-key-for-testing"

func authConfig() *config.Config {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, JWTSecret: testJWTSecret, Issuer: "tabulate"}
	return cfg
}

func bearer(t *testing.T, resources ...string) string {
	t.Helper()
	token, _, err := auth.NewVerifier(testJWTSecret, "tabulate", "").Issue("reporting", resources, time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuth_Tables(t *testing.T) {
	s := newTestServer(t, authConfig(), &fakeStore{total: 1, rows: []database.Row{{"id": int64(1)}}})

	tests := []struct {
		name       string
		target     string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"no token", "/api/v1/tables/users", "", 401, "UNAUTHORIZED"},
		{"granted", "/api/v1/tables/users", bearer(t, "users"), 200, ""},
		{"wildcard", "/api/v1/tables/orders", bearer(t, auth.AllResources), 200, ""},
		{"not granted", "/api/v1/tables/orders", bearer(t, "users"), 403, "FORBIDDEN"},
		{"export not granted", "/api/v1/tables/orders/export", bearer(t, "users"), 403, "FORBIDDEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.header != "" {
				headers = []string{fiber.HeaderAuthorization, tt.header}
			}
			resp, body := doGet(t, s, tt.target, headers...)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["code"])
			}
		})
	}
}

func TestAuth_ListResourcesFiltersByGrant(t *testing.T) {
	s := newTestServer(t, authConfig(), &fakeStore{})

	resp, body := doGet(t, s, "/api/v1/tables", fiber.HeaderAuthorization, bearer(t, "orders"))
	require.Equal(t, 200, resp.StatusCode)

	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "orders", data[0].(map[string]any)["name"])
}

func TestAuth_HealthIsPublic(t *testing.T) {
	s := newTestServer(t, authConfig(), &fakeStore{})
	resp, _ := doGet(t, s, "/health")
	assert.Equal(t, 200, resp.StatusCode)
}

// =============================================================================
// Reload
// =============================================================================

func TestServer_Reload(t *testing.T) {
	s := newTestServer(t, testConfig(), &fakeStore{total: 1, rows: []database.Row{}})

	resp, _ := doGet(t, s, "/api/v1/tables/invoices")
	require.Equal(t, 404, resp.StatusCode)

	catalog, err := resource.Parse([]byte(`
resources:
  invoices:
    schema: billing
    filters:
      - name: status
`), resource.Defaults{Limits: pagination.DefaultLimits(), SearchParam: "q"})
	require.NoError(t, err)
	s.Reload(catalog)

	resp, _ = doGet(t, s, "/api/v1/tables/invoices?status=open")
	assert.Equal(t, 200, resp.StatusCode)

	resp, _ = doGet(t, s, "/api/v1/tables/users")
	assert.Equal(t, 404, resp.StatusCode)

	_, body := doGet(t, s, "/health")
	assert.Equal(t, float64(1), body["resources"])
}
