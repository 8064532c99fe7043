package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// NODE HEALTH PROBE
// ============================================================================

func TestCheckNodeHealth_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckNodeHealth(context.Background(), srv.URL, time.Second)
	assert.True(t, result.IsHealthy)
	assert.Empty(t, result.ErrorMessage)
	assert.NotNil(t, result.ResponseTimeMs)
}

func TestCheckNodeHealth_NonTwoXX(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	result := CheckNodeHealth(context.Background(), srv.URL, time.Second)
	assert.False(t, result.IsHealthy)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestCheckNodeHealth_Unreachable(t *testing.T) {
	result := CheckNodeHealth(context.Background(), "http://127.0.0.1:1", 200*time.Millisecond)
	assert.False(t, result.IsHealthy)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestCheckNodeHealth_EmptyURL(t *testing.T) {
	result := CheckNodeHealth(context.Background(), "", time.Second)
	assert.False(t, result.IsHealthy)
	assert.Equal(t, "No inference URL", result.ErrorMessage)
}

func TestCheckNodeHealth_NeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		CheckNodeHealth(context.Background(), "not a url at all", time.Second)
	})
}
