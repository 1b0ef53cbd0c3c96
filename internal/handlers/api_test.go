package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embedbot/internal/config"
	"embedbot/internal/metrics"
	"embedbot/internal/models"
	"embedbot/internal/queue"
	"embedbot/internal/store"
)

type fakeTool struct {
	name    string
	version string
	err     error
}

func (f fakeTool) Tool() string { return f.name }
func (f fakeTool) Version(context.Context) (string, error) {
	return f.version, f.err
}

type pingStore struct {
	*store.MemoryStore
	err error
}

func (p pingStore) Ping(context.Context) error { return p.err }

func newTestAPI(t *testing.T, cfg *config.OpsConfig, tracker store.RequestStore) (*API, *metrics.Registry) {
	t.Helper()
	if cfg == nil {
		cfg = &config.OpsConfig{AllowedOrigins: []string{"*"}}
	}
	reg := metrics.NewRegistry()
	sp := queue.NewUnbounded(reg, zerolog.Nop())
	t.Cleanup(func() { _ = sp.Shutdown(context.Background()) })
	api := NewAPI(cfg, tracker, reg, sp, zerolog.Nop(),
		fakeTool{name: "yt-dlp", version: "2024.08.06"},
		fakeTool{name: "ffprobe", err: errors.New("executable file not found in $PATH")},
	)
	return api, reg
}

func get(t *testing.T, h http.Handler, path string, hdr ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func seed(t *testing.T, s store.RequestStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &models.RequestRecord{Token: "AAAAAAAAAAA1", URL: "https://v.redd.it/a", ChatID: 1, State: models.StateFetching}))
	require.NoError(t, s.Put(ctx, &models.RequestRecord{Token: "AAAAAAAAAAA2", URL: "https://v.redd.it/b", ChatID: 2, State: models.StateUploading}))
}

func TestHealth(t *testing.T) {
	api, reg := newTestAPI(t, nil, store.NewMemoryStore())
	reg.CompletedJobs.Add(3)

	rec, body := get(t, api.Router(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(3), body["completed"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestHealth_TrackerDown(t *testing.T) {
	api, _ := newTestAPI(t, nil, pingStore{MemoryStore: store.NewMemoryStore(), err: errors.New("connection refused")})

	rec, body := get(t, api.Router(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
}

func TestMetrics(t *testing.T) {
	api, reg := newTestAPI(t, nil, store.NewMemoryStore())
	reg.Started.Add(4)
	reg.FetchFailures.Add(1)

	rec, body := get(t, api.Router(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(4), body["started"])
	assert.Equal(t, float64(1), body["fetch_failures"])
}

func TestRequests(t *testing.T) {
	tracker := store.NewMemoryStore()
	seed(t, tracker)
	api, _ := newTestAPI(t, nil, tracker)
	h := api.Router()

	_, body := get(t, h, "/requests")
	assert.Equal(t, float64(2), body["count"])

	_, body = get(t, h, "/requests?chat_id=2")
	assert.Equal(t, float64(1), body["count"])

	_, body = get(t, h, "/requests?state=fetching")
	assert.Equal(t, float64(1), body["count"])

	rec, _ := get(t, h, "/requests?chat_id=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequest(t *testing.T) {
	tracker := store.NewMemoryStore()
	seed(t, tracker)
	api, _ := newTestAPI(t, nil, tracker)
	h := api.Router()

	rec, body := get(t, h, "/requests/AAAAAAAAAAA1")
	require.Equal(t, http.StatusOK, rec.Code)
	req := body["request"].(map[string]any)
	assert.Equal(t, "https://v.redd.it/a", req["url"])
	assert.Equal(t, "fetching", req["state"])

	rec, _ = get(t, h, "/requests/ZZZZZZZZZZZ9")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = get(t, h, "/requests/not-a-token")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelfTest(t *testing.T) {
	api, _ := newTestAPI(t, nil, store.NewMemoryStore())

	rec, body := get(t, api.Router(), "/selftest")
	require.Equal(t, http.StatusOK, rec.Code)
	tools := body["tools"].([]any)
	require.Len(t, tools, 2)
	first := tools[0].(map[string]any)
	assert.Equal(t, "yt-dlp", first["name"])
	assert.Equal(t, "2024.08.06", first["version"])
	second := tools[1].(map[string]any)
	assert.Contains(t, second["error"], "not found")
}

func TestAPIKeyProtectsAllButHealth(t *testing.T) {
	cfg := &config.OpsConfig{
		AllowedOrigins: []string{"*"},
		RequireAPIKey:  true,
		APIKeys:        []string{"secret"},
	}
	api, _ := newTestAPI(t, cfg, store.NewMemoryStore())
	h := api.Router()

	rec, _ := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = get(t, h, "/metrics")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = get(t, h, "/metrics", "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)
}
