package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	})
}

func TestLimiterAllowsWithinBurst(t *testing.T) {
	l := NewLimiter(1, 3, 1)

	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "/api/peers/", nil)
		r.RemoteAddr = "10.0.0.1:5000"
		assert.True(t, l.Allow(r), "request %d should be within burst", i)
	}
}

func TestLimiterMiddlewareRejectsExhaustedClient(t *testing.T) {
	l := NewLimiter(0.001, 1, 1)
	h := l.Middleware(okHandler())

	first := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/peers/", nil)
	r.RemoteAddr = "10.0.0.2:5000"
	h.ServeHTTP(first, r)
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	r2 := httptest.NewRequest(http.MethodGet, "/api/peers/", nil)
	r2.RemoteAddr = "10.0.0.2:5001"
	h.ServeHTTP(second, r2)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.JSONEq(t, `{"success":false,"error":"rate limit exceeded"}`, second.Body.String())
}

func TestLimiterTracksClientsIndependently(t *testing.T) {
	l := NewLimiter(0.001, 1, 1)

	a := httptest.NewRequest(http.MethodGet, "/", nil)
	a.RemoteAddr = "10.0.0.3:5000"
	require.True(t, l.Allow(a))
	require.False(t, l.Allow(a))

	b := httptest.NewRequest(http.MethodGet, "/", nil)
	b.RemoteAddr = "10.0.0.4:5000"
	assert.True(t, l.Allow(b))
}

func TestSecurityMiddlewareSetsBaselineHeaders(t *testing.T) {
	h := SecurityMiddleware(SecurityConfig{}, okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/peers/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestSecurityMiddlewareEnforcesAPIKey(t *testing.T) {
	cfg := SecurityConfig{
		APIKey:        "sekret",
		RequireKeyFor: map[string]bool{"/api/peers/get": true},
	}
	h := SecurityMiddleware(cfg, okHandler())

	missing := httptest.NewRecorder()
	h.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/api/peers/get", nil))
	assert.Equal(t, http.StatusUnauthorized, missing.Code)

	withKey := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/peers/get", nil)
	r.Header.Set("X-API-Key", "sekret")
	h.ServeHTTP(withKey, r)
	assert.Equal(t, http.StatusOK, withKey.Code)

	unguarded := httptest.NewRecorder()
	h.ServeHTTP(unguarded, httptest.NewRequest(http.MethodGet, "/api/peers/", nil))
	assert.Equal(t, http.StatusOK, unguarded.Code)
}

func TestSecurityMiddlewareCORS(t *testing.T) {
	cfg := SecurityConfig{AllowedOrigins: []string{"https://wallet.example"}}
	h := SecurityMiddleware(cfg, okHandler())

	preflight := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodOptions, "/api/peers/", nil)
	r.Header.Set("Origin", "https://wallet.example")
	h.ServeHTTP(preflight, r)
	assert.Equal(t, http.StatusNoContent, preflight.Code)
	assert.Equal(t, "https://wallet.example", preflight.Header().Get("Access-Control-Allow-Origin"))

	denied := httptest.NewRecorder()
	r2 := httptest.NewRequest(http.MethodGet, "/api/peers/", nil)
	r2.Header.Set("Origin", "https://evil.example")
	h.ServeHTTP(denied, r2)
	assert.Empty(t, denied.Header().Get("Access-Control-Allow-Origin"))
}
