package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

func serve(h http.Handler, remote string, hdr map[string]string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestGlobalRateLimiter(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }
	h := globalRateLimiter(1, 2, clock)(ok)

	assert.Equal(t, http.StatusOK, serve(h, "", nil))
	assert.Equal(t, http.StatusOK, serve(h, "", nil))
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "", nil), "burst exhausted")

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, serve(h, "", nil), "refilled one token")
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "", nil))
}

func TestGlobalRateLimiter_Disabled(t *testing.T) {
	h := GlobalRateLimiter(0, 0)(ok)
	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, serve(h, "", nil))
	}
}

func TestAPIKey(t *testing.T) {
	keys := map[string]struct{}{"k1": {}}

	open := APIKey(false, keys)(ok)
	assert.Equal(t, http.StatusOK, serve(open, "", nil))

	closed := APIKey(true, keys)(ok)
	assert.Equal(t, http.StatusUnauthorized, serve(closed, "", nil))
	assert.Equal(t, http.StatusUnauthorized, serve(closed, "", map[string]string{"X-API-Key": "nope"}))
	assert.Equal(t, http.StatusOK, serve(closed, "", map[string]string{"X-API-Key": "k1"}))
}

func TestIPAllowlist(t *testing.T) {
	assert.Equal(t, http.StatusOK, serve(IPAllowlist(nil)(ok), "10.0.0.9:1234", nil))

	h := IPAllowlist([]string{" 10.0.0.1 ", "::1"})(ok)
	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:5555", nil))
	assert.Equal(t, http.StatusOK, serve(h, "[::1]:5555", nil))
	assert.Equal(t, http.StatusForbidden, serve(h, "10.0.0.2:5555", nil))
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}
