package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUpstreamBreakers_TripsAfterConsecutiveFailures(t *testing.T) {
	u := NewUpstreamBreakers()
	const url = "http://node-a"

	require.True(t, u.Allow(url))

	u.Record(url, false)
	u.Record(url, false)
	require.True(t, u.Allow(url), "should still allow before the trip threshold")

	u.Record(url, false)
	require.False(t, u.Allow(url), "three consecutive failures should trip the breaker open")
}

func TestUpstreamBreakers_SuccessResetsConsecutiveFailures(t *testing.T) {
	u := NewUpstreamBreakers()
	const url = "http://node-b"

	u.Record(url, false)
	u.Record(url, false)
	u.Record(url, true)
	u.Record(url, false)
	u.Record(url, false)
	require.True(t, u.Allow(url), "a success should reset the consecutive-failure count")
}

func TestUpstreamBreakers_KeyedIndependentlyPerURL(t *testing.T) {
	u := NewUpstreamBreakers()

	for i := 0; i < 3; i++ {
		u.Record("http://node-c", false)
	}
	require.False(t, u.Allow("http://node-c"))
	require.True(t, u.Allow("http://node-d"), "a different base URL must have its own breaker")
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := New(&Config{
		Name:        "test",
		MaxRequests: 1,
		Timeout:     10 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool {
			return c.ConsecutiveFailures >= 1
		},
	})

	cb.RecordResult(false)
	require.Equal(t, StateOpen, cb.State())
	require.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	time.Sleep(15 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Allow())
}
