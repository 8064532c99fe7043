package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gonka-ai/inferencecache/internal/upstream"
)

// ==================== CanonicalHeight: current epoch ====================

func TestCanonicalHeight_CurrentEpoch_UsesRequestedHeight(t *testing.T) {
	up := newFakeUpstream()
	up.latestEpoch = &upstream.LatestEpochInfo{}
	up.latestEpoch.LatestEpoch.Index = 10
	st := newFakeStore()
	svc := New(up, st)

	requested := int64(555)
	h, err := svc.CanonicalHeight(context.Background(), 10, &requested)
	require.NoError(t, err)
	require.Equal(t, int64(555), h)
}

func TestCanonicalHeight_CurrentEpoch_NilHeightUsesChainTip(t *testing.T) {
	up := newFakeUpstream()
	up.latestEpoch = &upstream.LatestEpochInfo{}
	up.latestEpoch.LatestEpoch.Index = 10
	up.latestHeight = 9001
	up.latestBlock = &upstream.BlockHeader{Height: 9001}
	st := newFakeStore()
	svc := New(up, st)

	h, err := svc.CanonicalHeight(context.Background(), 10, nil)
	require.NoError(t, err)
	require.Equal(t, int64(9001), h)
}

// ==================== CanonicalHeight: historical epoch ====================

func TestCanonicalHeight_Historical_ClampsToCanonical(t *testing.T) {
	up := newFakeUpstream()
	up.latestEpoch = &upstream.LatestEpochInfo{}
	up.latestEpoch.LatestEpoch.Index = 12
	up.epochGroups[5] = &upstream.EpochGroup{}
	up.epochGroups[5].ActiveParticipants.EffectiveBlockHeight = 1000
	up.epochGroups[6] = &upstream.EpochGroup{}
	up.epochGroups[6].ActiveParticipants.EffectiveBlockHeight = 2000
	st := newFakeStore()
	svc := New(up, st)

	requested := int64(5000) // well past the next epoch's effective height
	h, err := svc.CanonicalHeight(context.Background(), 5, &requested)
	require.NoError(t, err)
	require.Equal(t, int64(1990), h) // 2000 - 10
}

func TestCanonicalHeight_Historical_BeforeEffectiveHeightErrors(t *testing.T) {
	up := newFakeUpstream()
	up.latestEpoch = &upstream.LatestEpochInfo{}
	up.latestEpoch.LatestEpoch.Index = 12
	up.epochGroups[5] = &upstream.EpochGroup{}
	up.epochGroups[5].ActiveParticipants.EffectiveBlockHeight = 1000
	st := newFakeStore()
	svc := New(up, st)

	requested := int64(1)
	_, err := svc.CanonicalHeight(context.Background(), 5, &requested)
	require.Error(t, err)
}

func TestCanonicalHeight_Historical_WithinRangePassesThrough(t *testing.T) {
	up := newFakeUpstream()
	up.latestEpoch = &upstream.LatestEpochInfo{}
	up.latestEpoch.LatestEpoch.Index = 12
	up.epochGroups[5] = &upstream.EpochGroup{}
	up.epochGroups[5].ActiveParticipants.EffectiveBlockHeight = 1000
	up.epochGroups[6] = &upstream.EpochGroup{}
	up.epochGroups[6].ActiveParticipants.EffectiveBlockHeight = 2000
	st := newFakeStore()
	svc := New(up, st)

	requested := int64(1500)
	h, err := svc.CanonicalHeight(context.Background(), 5, &requested)
	require.NoError(t, err)
	require.Equal(t, int64(1500), h)
}

func TestCanonicalHeight_Historical_FallsBackToNextPoCStart(t *testing.T) {
	up := newFakeUpstream()
	up.latestEpoch = &upstream.LatestEpochInfo{}
	up.latestEpoch.LatestEpoch.Index = 12
	up.latestEpoch.EpochStages.NextPoCStart = 3000
	up.epochGroups[5] = &upstream.EpochGroup{}
	up.epochGroups[5].ActiveParticipants.EffectiveBlockHeight = 1000
	// epoch 6 not registered -> EffectiveBlockHeight resolves to 0
	st := newFakeStore()
	svc := New(up, st)

	h, err := svc.CanonicalHeight(context.Background(), 5, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2990), h) // 3000 - 10
}
