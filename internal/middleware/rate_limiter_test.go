package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 5, BurstSize: 5})
	for i := 0; i < 5; i++ {
		require.True(t, rl.Allow("1.2.3.4"))
	}
}

func TestRateLimiter_BlocksPastBurstSize(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 2, BurstSize: 3})
	require.True(t, rl.Allow("5.6.7.8"))
	require.True(t, rl.Allow("5.6.7.8"))
	require.True(t, rl.Allow("5.6.7.8"))
	require.False(t, rl.Allow("5.6.7.8"), "fourth call exceeds burst size of 3")
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 1, BurstSize: 1})
	require.True(t, rl.Allow("9.9.9.9"))
	require.False(t, rl.Allow("9.9.9.9"))
	require.True(t, rl.Allow("8.8.8.8"), "a different key must have its own window")
}

func TestMiddleware_RejectsWithTooManyRequests(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 1, BurstSize: 1})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/epochs/current", nil)
	req.RemoteAddr = "10.0.0.1:54321"

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req)
	require.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestMiddleware_KeysByHostWithoutPort(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 1, BurstSize: 1})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/epochs/current", nil)
	req1.RemoteAddr = "10.0.0.2:1111"
	handler.ServeHTTP(httptest.NewRecorder(), req1)

	req2 := httptest.NewRequest(http.MethodGet, "/epochs/current", nil)
	req2.RemoteAddr = "10.0.0.2:2222"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req2)
	require.Equal(t, http.StatusTooManyRequests, rec.Code,
		"same host on a different port must share the same rate-limit key")
}
