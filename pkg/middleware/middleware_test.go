package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bitechdev/ServeSpec/pkg/config"
	"github.com/bitechdev/ServeSpec/pkg/logger"
	"github.com/bitechdev/ServeSpec/pkg/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "http://example.com/", nil))

	assert.Equal(t, "SAMEORIGIN", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer-when-downgrade", rr.Header().Get("Referrer-Policy"))
	assert.Contains(t, rr.Header().Get("Content-Security-Policy"), "default-src 'self'")
	assert.Contains(t, rr.Header().Get("Feature-Policy"), "camera 'none'")
}

func TestCORSWhitelistedOrigin(t *testing.T) {
	handler := CORS(config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		MaxAge:         600,
	})(okHandler())

	req := httptest.NewRequest("GET", "http://example.com/widgets", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "600", rr.Header().Get("Access-Control-Max-Age"))
}

func TestCORSUnknownOrigin(t *testing.T) {
	handler := CORS(config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
	})(okHandler())

	req := httptest.NewRequest("GET", "http://example.com/widgets", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(config.CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	})(okHandler())

	req := httptest.NewRequest("OPTIONS", "http://example.com/widgets", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://anywhere.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

type panicMetrics struct {
	metrics.NoOpProvider
	recorded bool
	location string
}

func (m *panicMetrics) RecordPanic(location string) {
	m.recorded = true
	m.location = location
}

func TestPanicRecovery(t *testing.T) {
	logger.Init(true)

	provider := &panicMetrics{}
	original := metrics.GetProvider()
	metrics.SetProvider(provider)
	defer metrics.SetProvider(original)

	handler := PanicRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "http://example.com/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "panic in PanicMiddleware: boom")
	assert.True(t, provider.recorded)
	assert.Equal(t, "PanicMiddleware", provider.location)
}
