package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	httpadapter "github.com/couchcryptid/nlhi-service/internal/adapter/http"
	"github.com/couchcryptid/nlhi-service/internal/domain"
	"github.com/couchcryptid/nlhi-service/internal/engine"
	"github.com/couchcryptid/nlhi-service/internal/observability"
	"github.com/couchcryptid/nlhi-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type memoryRepo struct {
	saveErr error
}

func (m *memoryRepo) Load(_ context.Context) (*domain.RegionStore, error) {
	return domain.NewRegionStore(), nil
}

func (m *memoryRepo) Save(_ context.Context, _ *domain.RegionStore, _ storage.Change) error {
	return m.saveErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, repo storage.Repository) *engine.Engine {
	t.Helper()
	e := engine.New(repo, nil, discardLogger(), observability.NewMetricsForTesting(), 8)
	require.NoError(t, e.Open(context.Background()))
	return e
}

func newTestServer(t *testing.T, readyErr error) *httpadapter.Server {
	t.Helper()
	return httpadapter.NewServer(":0", newTestEngine(t, &memoryRepo{}), &mockReadiness{err: readyErr}, discardLogger())
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const recordBody = `{
	"mean_age": 40,
	"population": 1000,
	"life_expectancy": 80,
	"domains": [
		{"name": "A", "tliphs": 100, "unit": "Year(s)", "mortality": 0},
		{"name": "B", "tliphs": 200, "unit": "Year(s)", "mortality": 0}
	]
}`

func TestHealthzReturns200(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decodeBody(t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := do(t, newTestServer(t, fmt.Errorf("not ready yet")), http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRegions(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/regions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"regions":[]}`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/api/v1/regions", `{"name":" Lyonesse "}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"name":"Lyonesse","created":true}`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/api/v1/regions", `{"name":"Lyonesse"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/regions", `{"name":"Avalon"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/regions", "")
	assert.JSONEq(t, `{"regions":["Avalon","Lyonesse"]}`, rec.Body.String())
}

func TestCreateRegion_Errors(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/api/v1/regions", `{"name":"   "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "region")

	rec = do(t, srv, http.MethodPost, "/api/v1/regions", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutAndGetRecord(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPut, "/api/v1/regions/North%20Shore/records/2025-01-15", recordBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "North Shore", body["region"])
	assert.Equal(t, "2025-01-15", body["date"])
	record, ok := body["record"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.375, record["NLHI"], 1e-12)

	rec = do(t, srv, http.MethodGet, "/api/v1/regions/North%20Shore/records/2025-01-15", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"MeanAge": 40, "Population": 1000, "AvgLifeExpectancy": 80,
		"domains": {
			"A": {"TLIPHS": 100, "TLIPHS_unit": "Year(s)", "Mortality": 0, "TLIPHS_years": 100, "DSTLYA": 100, "DSAV": 0.25},
			"B": {"TLIPHS": 200, "TLIPHS_unit": "Year(s)", "Mortality": 0, "TLIPHS_years": 200, "DSTLYA": 200, "DSAV": 0.5}
		},
		"DSAV": {"A": 0.25, "B": 0.5},
		"NLHI": 0.375
	}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/v1/regions/North%20Shore/dates", "")
	assert.JSONEq(t, `{"dates":["2025-01-15"]}`, rec.Body.String())
}

func TestPutRecord_ReturnsWarnings(t *testing.T) {
	srv := newTestServer(t, nil)

	body := `{"mean_age": 80, "population": 10, "life_expectancy": 70,
		"domains": [{"name": "A", "tliphs": 1, "unit": "Year(s)", "mortality": 0.5}]}`
	rec := do(t, srv, http.MethodPut, "/api/v1/regions/Avalon/records/2025-01-15", body)
	require.Equal(t, http.StatusOK, rec.Code)

	warnings, ok := decodeBody(t, rec)["warnings"].([]any)
	require.True(t, ok)
	assert.Len(t, warnings, 1)
}

func TestPutRecord_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"malformed body", "/api/v1/regions/Avalon/records/2025-01-15", `{`, http.StatusBadRequest},
		{"bad date", "/api/v1/regions/Avalon/records/15-01-2025", recordBody, http.StatusUnprocessableEntity},
		{"zero population", "/api/v1/regions/Avalon/records/2025-01-15",
			`{"mean_age": 40, "population": 0, "life_expectancy": 80, "domains": [{"name": "A"}]}`,
			http.StatusUnprocessableEntity},
		{"no domains", "/api/v1/regions/Avalon/records/2025-01-15",
			`{"mean_age": 40, "population": 10, "life_expectancy": 80, "domains": []}`,
			http.StatusUnprocessableEntity},
		{"overflowing scores", "/api/v1/regions/Avalon/records/2025-01-15",
			`{"mean_age": 40, "population": 1000, "life_expectancy": 80,
			  "domains": [{"name": "A", "tliphs": 1e308, "unit": "Year(s)", "mortality": 1e308}]}`,
			http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil)
			rec := do(t, srv, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, decodeBody(t, rec)["error"])

			rec = do(t, srv, http.MethodGet, "/api/v1/regions", "")
			assert.JSONEq(t, `{"regions":[]}`, rec.Body.String())
		})
	}
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{
		"/api/v1/regions/Nowhere/dates",
		"/api/v1/regions/Nowhere/series",
		"/api/v1/regions/Nowhere/records/2025-01-15",
	} {
		rec := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec := do(t, srv, http.MethodDelete, "/api/v1/regions/Nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRegion(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPut, "/api/v1/regions/Avalon/records/2025-01-15", recordBody)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/api/v1/regions/Avalon", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/regions", "")
	assert.JSONEq(t, `{"regions":[]}`, rec.Body.String())
}

func TestSeriesAndDashboard(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/dashboard", "")
	assert.JSONEq(t, `{"regions":[]}`, rec.Body.String())

	require.Equal(t, http.StatusOK,
		do(t, srv, http.MethodPut, "/api/v1/regions/Avalon/records/2025-02-01", recordBody).Code)
	require.Equal(t, http.StatusCreated,
		do(t, srv, http.MethodPost, "/api/v1/regions", `{"name":"Empty"}`).Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/regions/Avalon/series", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"region": "Avalon",
		"dates": ["2025-02-01"],
		"nlhi": [0.375],
		"domains": ["A", "B"],
		"dsav": [[0.25, 0.5]]
	}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/v1/regions/Empty/series", "")
	assert.JSONEq(t, `{"region":"Empty","dates":[],"nlhi":[],"domains":[],"dsav":[]}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/v1/dashboard", "")
	var dash struct {
		Regions []domain.Series `json:"regions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dash))
	require.Len(t, dash.Regions, 1)
	assert.Equal(t, "Avalon", dash.Regions[0].Region)
}

func TestPersistFailureReturns500(t *testing.T) {
	e := newTestEngine(t, &memoryRepo{saveErr: errors.New("disk full")})
	srv := httpadapter.NewServer(":0", e, &mockReadiness{}, discardLogger())

	rec := do(t, srv, http.MethodPut, "/api/v1/regions/Avalon/records/2025-01-15", recordBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decodeBody(t, rec)["error"])
}
