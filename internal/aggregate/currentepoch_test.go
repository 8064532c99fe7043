package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gonka-ai/inferencecache/internal/upstream"
)

func baselineUpstream() *fakeUpstream {
	up := newFakeUpstream()
	up.latestHeight = 100
	up.latestBlock = &upstream.BlockHeader{Height: 100}
	up.currentGroup = &upstream.EpochGroup{}
	up.currentGroup.ActiveParticipants.EpochGroupID = 1
	up.currentGroup.ActiveParticipants.Participants = []upstream.EpochParticipant{
		{Index: "p1", Weight: 10, InferenceURL: "http://p1", Models: []string{"m1"}},
	}
	up.participants = []upstream.ParticipantWire{
		{Index: "p1", Address: "addr1", InferenceURL: "http://p1", Status: "active",
			CurrentEpochStats: upstream.CurrentEpochStatsWire{InferenceCount: "10", MissedRequests: "0"}},
	}
	return up
}

// ==================== CurrentEpochStats ====================

func TestCurrentEpochStats_FusesActiveParticipants(t *testing.T) {
	up := baselineUpstream()
	st := newFakeStore()
	svc := New(up, st)

	resp, err := svc.CurrentEpochStats(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, uint64(1), resp.EpochID)
	require.Len(t, resp.Participants, 1)
	require.Equal(t, "p1", resp.Participants[0].Index)
	require.Equal(t, int64(10), resp.Participants[0].Weight)
}

func TestCurrentEpochStats_ExcludesInactiveParticipants(t *testing.T) {
	up := baselineUpstream()
	up.participants = append(up.participants, upstream.ParticipantWire{Index: "not-active"})
	st := newFakeStore()
	svc := New(up, st)

	resp, err := svc.CurrentEpochStats(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, resp.Participants, 1)
}

func TestCurrentEpochStats_ServesFromCacheWithinTTL(t *testing.T) {
	up := baselineUpstream()
	st := newFakeStore()
	svc := New(up, st)

	first, err := svc.CurrentEpochStats(context.Background(), false)
	require.NoError(t, err)

	// Mutate upstream data; a cached response should still be served.
	up.participants[0].CurrentEpochStats.InferenceCount = "999"

	second, err := svc.CurrentEpochStats(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, first.Participants[0].CurrentEpochStats.InferenceCount, second.Participants[0].CurrentEpochStats.InferenceCount)
}

func TestCurrentEpochStats_ReloadBypassesCache(t *testing.T) {
	up := baselineUpstream()
	st := newFakeStore()
	svc := New(up, st)

	_, err := svc.CurrentEpochStats(context.Background(), false)
	require.NoError(t, err)

	up.participants[0].CurrentEpochStats.InferenceCount = "999"

	second, err := svc.CurrentEpochStats(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, "999", second.Participants[0].CurrentEpochStats.InferenceCount)
}

func TestCurrentEpochStats_FallsBackToCacheOnUpstreamFailure(t *testing.T) {
	up := baselineUpstream()
	st := newFakeStore()
	svc := New(up, st)

	first, err := svc.CurrentEpochStats(context.Background(), false)
	require.NoError(t, err)

	up.errOnLatestHeight = errors.New("upstream down")
	svc.currentEpochCache.Load().fetchedAt = time.Now().Add(-2 * currentEpochTTL)

	second, err := svc.CurrentEpochStats(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, first.EpochID, second.EpochID)
}

func TestCurrentEpochStats_NoUpstreamAndNoCacheReturnsError(t *testing.T) {
	up := baselineUpstream()
	up.errOnLatestHeight = errors.New("upstream down")
	st := newFakeStore()
	svc := New(up, st)

	_, err := svc.CurrentEpochStats(context.Background(), false)
	require.Error(t, err)
}
