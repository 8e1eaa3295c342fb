package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lrcom/signal-core/config"
)

func newTestLimiter(rps int, burst int) *RateLimiter {
	return NewRateLimiter(config.RateLimitConfig{RequestsPerMinute: rps, Burst: burst})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := newTestLimiter(60, 2)
	wrapped := rl.Limit(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login-init", nil)
		req.RemoteAddr = "203.0.113.5:1234"
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiterRejectsOverBurst(t *testing.T) {
	rl := newTestLimiter(60, 1)
	wrapped := rl.Limit(okHandler())

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login-init", nil)
		r.RemoteAddr = "203.0.113.9:1234"
		return r
	}

	rec1 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec1, req())
	assert.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec2, req())
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestRateLimiterIsolatesByIP(t *testing.T) {
	rl := newTestLimiter(60, 1)
	wrapped := rl.Limit(okHandler())

	reqA := httptest.NewRequest(http.MethodPost, "/api/auth/login-init", nil)
	reqA.RemoteAddr = "198.51.100.1:1111"
	recA := httptest.NewRecorder()
	wrapped.ServeHTTP(recA, reqA)
	assert.Equal(t, http.StatusOK, recA.Code)

	reqB := httptest.NewRequest(http.MethodPost, "/api/auth/login-init", nil)
	reqB.RemoteAddr = "198.51.100.2:2222"
	recB := httptest.NewRecorder()
	wrapped.ServeHTTP(recB, reqB)
	assert.Equal(t, http.StatusOK, recB.Code, "a distinct IP must have its own bucket")
}
