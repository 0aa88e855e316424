package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/bunbase/bunlog/internal/config"
	"github.com/kartikbazzad/bunbase/bunlog/logquery"
	"github.com/kartikbazzad/bunbase/bunlog/query"
	"github.com/kartikbazzad/bunbase/bunlog/transport"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func testConfig() config.Server {
	cfg := config.Default()
	cfg.Batch.Interval = time.Hour
	return cfg
}

func newTestServer(t *testing.T, cfg config.Server) *Server {
	t.Helper()
	s, err := New(cfg, transport.NewMemoryTransport(0), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

type queryResult struct {
	Count   int               `json:"count"`
	Records []json.RawMessage `json:"records"`
}

func decodeQuery(t *testing.T, rec *httptest.ResponseRecorder) []query.Value {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res queryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, res.Count, len(res.Records))
	out := make([]query.Value, len(res.Records))
	for i, raw := range res.Records {
		v, err := query.ParseJSON(raw)
		require.NoError(t, err)
		out[i] = v
	}
	return out
}

func messages(records []query.Value) []string {
	var out []string
	for _, r := range records {
		v, _ := r.Get("message")
		s, _ := v.AsString()
		out = append(out, s)
	}
	return out
}

const seed = `[
  {"level": "info",  "message": "boot",   "timestamp": "2024-06-01T08:00:00Z", "user": {"age": 30}},
  {"level": "error", "message": "db down", "timestamp": "2024-06-01T08:00:05Z", "user": {"age": 17}},
  {"level": "warn",  "message": "slow",   "timestamp": "2024-06-01T08:00:10Z"},
  {"level": "error", "message": "db up",   "timestamp": "2024-06-01T08:00:15Z", "user": {"age": 45}}
]`

func TestHealthz(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIngestAndQuery(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(t, s, http.MethodPost, "/v1/logs", seed)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var ing ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ing))
	assert.Equal(t, 4, ing.Accepted)
	require.Len(t, ing.IDs, 4)

	rec = do(t, s, http.MethodPost, "/v1/query", `{
		"filter": {"$or": [{"level": {"$eq": "error"}}, {"user.age": {"$gte": 18}}]},
		"order": "desc",
		"limit": 2
	}`)
	records := decodeQuery(t, rec)
	assert.Equal(t, []string{"db up", "db down"}, messages(records))

	id, ok := records[0].Get(IDKey)
	require.True(t, ok)
	assert.Equal(t, query.String(ing.IDs[3]), id)
	assert.Equal(t, []string{"level", "message", "timestamp", "id", "user"}, records[0].Keys())
}

func TestIngestSingleEntryDefaults(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(t, s, http.MethodPost, "/v1/logs", `{"message": "hello", "id": "fixed"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"accepted":1,"ids":["fixed"]}`, rec.Body.String())

	records := decodeQuery(t, do(t, s, http.MethodPost, "/v1/query", ``))
	require.Len(t, records, 1)
	level, _ := records[0].Get("level")
	assert.Equal(t, query.String("info"), level)
	_, ok := logquery.RecordTime(records[0])
	assert.True(t, ok, "timestamp is filled in")
}

func TestIngestRejectsBadBodies(t *testing.T) {
	s := newTestServer(t, testConfig())
	for _, body := range []string{
		`not json`,
		`[]`,
		`{"level": "info"}`,
		`{"message": 3}`,
		`[{"message": "ok"}, {"message": "bad", "timestamp": true}]`,
		`{"message": "x", "timestamp": "yesterday-ish"}`,
	} {
		rec := do(t, s, http.MethodPost, "/v1/logs", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		var appErr AppError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appErr), body)
		assert.Equal(t, http.StatusBadRequest, appErr.Code)
		assert.NotEmpty(t, appErr.Message)
	}
}

func TestQueryErrors(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		name    string
		body    string
		message string
		detail  string
	}{
		{"unknown property", `{"filters": {}}`, "request body does not match schema", "filters"},
		{"negative limit", `{"limit": -1}`, "request body does not match schema", "limit"},
		{"unknown operator", `{"filter": {"user.age": {"$near": 3}}}`, "invalid filter", "user.age"},
		{"nested locator", `{"filter": {"$and": [{"a": {"$eq": 1}}, {"b": {"$in": 2}}]}}`, "invalid filter", "$and[1].b"},
		{"bad order", `{"order": "sideways"}`, "invalid query", "sideways"},
		{"bad regexp", `{"search": "("}`, "invalid query", "search"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/query", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var appErr AppError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appErr))
			assert.Equal(t, tt.message, appErr.Message)
			assert.Contains(t, strings.Join(appErr.Details, "\n"), tt.detail)
		})
	}
}

func TestSearchParams(t *testing.T) {
	s := newTestServer(t, testConfig())
	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/v1/logs", seed).Code)

	params := url.Values{
		"levels": {"error,warn"},
		"order":  {"asc"},
		"start":  {"1"},
		"fields": {"message"},
		"filter": {`{"message": {"$ne": "db up"}}`},
	}
	records := decodeQuery(t, do(t, s, http.MethodGet, "/v1/logs?"+params.Encode(), ""))
	require.Len(t, records, 1)
	assert.Equal(t, `{"message":"slow"}`, records[0].String())

	rec := do(t, s, http.MethodGet, "/v1/logs?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.Rate = 0.001
	cfg.HTTP.Burst = 5
	s := newTestServer(t, cfg)

	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/v1/logs", seed).Code)
	rec := do(t, s, http.MethodPost, "/v1/logs", `[{"message": "a"}, {"message": "b"}]`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	rec = do(t, s, http.MethodPost, "/v1/logs", `{"message": "fits"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestMetricsAndCache(t *testing.T) {
	s := newTestServer(t, testConfig())
	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/v1/logs", seed).Code)

	body := `{"filter": {"level": {"$eq": "error"}}}`
	for i := 0; i < 3; i++ {
		assert.Len(t, decodeQuery(t, do(t, s, http.MethodPost, "/v1/query", body)), 2)
	}
	hits, misses := s.cache.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(1), misses)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	text := rec.Body.String()
	assert.Contains(t, text, `bunlog_entries_total{level="error",transport="memory"} 2`)
	assert.Contains(t, text, `bunlog_query_cache_hits_total 2`)
	assert.Contains(t, text, `bunlog_http_requests_total{code="200",route="/v1/query"} 3`)

	n, err := testutil.GatherAndCount(s.Registry(), "bunlog_batch_size")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type brokenStore struct{ *transport.MemoryTransport }

func (brokenStore) Query(context.Context, *logquery.LogQuery) ([]query.Value, error) {
	return nil, errors.New("disk on fire")
}

func TestStoreFailureIs500(t *testing.T) {
	s, err := New(testConfig(), brokenStore{transport.NewMemoryTransport(0)}, nil)
	require.NoError(t, err)
	defer s.Close()

	rec := do(t, s, http.MethodPost, "/v1/query", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestOpenSQLiteStore(t *testing.T) {
	cfg := testConfig()
	cfg.Store = config.Store{Kind: "sqlite", Path: filepath.Join(t.TempDir(), "logs.db")}
	s, err := Open(cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/v1/logs", seed).Code)
	records := decodeQuery(t, do(t, s, http.MethodPost, "/v1/query", `{"levels": ["error"], "from": "2024-06-01T08:00:10Z"}`))
	assert.Equal(t, []string{"db up"}, messages(records))
}

func TestOpenUnknownStore(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Kind = "tape"
	_, err := Open(cfg, nil)
	assert.Error(t, err)
}
