package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gonka-ai/inferencecache/internal/store"
	"github.com/gonka-ai/inferencecache/internal/upstream"
)

func TestParticipantInferences_FetchesAndCachesOnMiss(t *testing.T) {
	up := newFakeUpstream()
	up.inferences = map[string]*upstream.InferencesPage{
		"p1": {
			Successful:  []upstream.InferenceWire{{InferenceID: "i1", Model: "llama-3"}},
			Expired:     []upstream.InferenceWire{{InferenceID: "i2"}},
			Invalidated: []upstream.InferenceWire{{InferenceID: "i3"}},
		},
	}
	st := newFakeStore()
	s := New(up, st)

	resp, err := s.ParticipantInferences(context.Background(), 7, "p1")
	require.NoError(t, err)
	require.Len(t, resp.Successful, 1)
	require.Equal(t, "i1", resp.Successful[0].InferenceID)
	require.Len(t, resp.Expired, 1)
	require.Len(t, resp.Invalidated, 1)

	cached, ok, err := st.GetParticipantInferences(context.Background(), 7, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cached, 3)
}

func TestParticipantInferences_ServesFromCacheWithoutRefetch(t *testing.T) {
	st := newFakeStore()
	require.NoError(t, st.UpsertInferences(context.Background(), 7, "p1", []store.InferenceRow{
		{EpochID: 7, ParticipantIndex: "p1", InferenceID: "cached-1", Status: "successful"},
	}))

	up := newFakeUpstream()
	up.inferences = map[string]*upstream.InferencesPage{
		"p1": {Successful: []upstream.InferenceWire{{InferenceID: "should-not-be-fetched"}}},
	}
	s := New(up, st)

	resp, err := s.ParticipantInferences(context.Background(), 7, "p1")
	require.NoError(t, err)
	require.Len(t, resp.Successful, 1)
	require.Equal(t, "cached-1", resp.Successful[0].InferenceID)
}

func TestParticipantInferences_EmptyPageCachesEmptySlices(t *testing.T) {
	up := newFakeUpstream()
	up.inferences = map[string]*upstream.InferencesPage{}
	st := newFakeStore()
	s := New(up, st)

	resp, err := s.ParticipantInferences(context.Background(), 1, "p2")
	require.NoError(t, err)
	require.Empty(t, resp.Successful)
	require.Empty(t, resp.Expired)
	require.Empty(t, resp.Invalidated)

	_, ok, err := st.GetParticipantInferences(context.Background(), 1, "p2")
	require.NoError(t, err)
	require.True(t, ok, "an empty upstream page must still be persisted so the next call isn't treated as a cache miss")
}
