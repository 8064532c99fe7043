package aggregate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gonka-ai/inferencecache/internal/store"
	"github.com/gonka-ai/inferencecache/internal/upstream"
)

func TestAggregateModels_SumsWeightAndDedupesParticipants(t *testing.T) {
	s := New(newFakeUpstream(), newFakeStore())
	active := []upstream.EpochParticipant{
		{
			Index:  "p1",
			Models: []string{"llama-3"},
			MLNodes: []upstream.MLNodeWrapper{
				{MLNodes: []upstream.MLNodeEntry{{NodeID: "n1", PoCWeight: 10}, {NodeID: "n2", PoCWeight: 5}}},
			},
		},
		{
			Index:  "p2",
			Models: []string{"llama-3", "mixtral"},
			MLNodes: []upstream.MLNodeWrapper{
				{MLNodes: []upstream.MLNodeEntry{{NodeID: "n3", PoCWeight: 20}}},
				{MLNodes: []upstream.MLNodeEntry{{NodeID: "n4", PoCWeight: 7}}},
			},
		},
	}

	result, err := s.AggregateModels(context.Background(), 5, active)
	require.NoError(t, err)

	byID := make(map[string]ModelAggregate, len(result))
	for _, m := range result {
		byID[m.ModelID] = m
	}

	require.Equal(t, int64(35), byID["llama-3"].TotalWeight)
	require.Equal(t, int64(2), byID["llama-3"].ParticipantCount)
	require.Equal(t, int64(7), byID["mixtral"].TotalWeight)
	require.Equal(t, int64(1), byID["mixtral"].ParticipantCount)

	cached, ok, err := s.store.GetModels(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cached, 2)
}

func TestAggregateModels_SkipsEmptyModelIDs(t *testing.T) {
	s := New(newFakeUpstream(), newFakeStore())
	active := []upstream.EpochParticipant{
		{Index: "p1", Models: []string{"", "llama-3"}},
	}

	result, err := s.AggregateModels(context.Background(), 1, active)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, "llama-3", result[0].ModelID)
}

func TestModelAggregatesFor_PrefersCacheOverRecompute(t *testing.T) {
	st := newFakeStore()
	s := New(newFakeUpstream(), st)

	require.NoError(t, st.UpsertModelsBatch(context.Background(), 9, []store.ModelAggregateRow{
		{EpochID: 9, ModelID: "cached-model", TotalWeight: 99, ParticipantCount: 3},
	}))

	active := []upstream.EpochParticipant{{Index: "p1", Models: []string{"fresh-model"}}}
	result, err := s.modelAggregatesFor(context.Background(), 9, active)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, "cached-model", result[0].ModelID)
}

func TestCurrentModels_MergesCatalogWithWeightAggregate(t *testing.T) {
	up := newFakeUpstream()
	up.latestHeight = 100
	up.currentGroup = &upstream.EpochGroup{ActiveParticipants: upstream.ActiveParticipants{
		EpochGroupID: 3,
		Participants: []upstream.EpochParticipant{
			{Index: "p1", Models: []string{"llama-3"}, MLNodes: []upstream.MLNodeWrapper{
				{MLNodes: []upstream.MLNodeEntry{{NodeID: "n1", PoCWeight: 42}}},
			}},
		},
	}}
	up.models = []upstream.ModelDescriptor{{ID: "llama-3", ProposedBy: "p1"}}
	up.modelsStats = []upstream.ModelStat{{Model: "llama-3", Inferences: 7}}

	s := New(up, newFakeStore())
	resp, err := s.CurrentModels(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(3), resp.EpochID)
	require.True(t, resp.IsCurrent)
	require.Len(t, resp.Models, 1)
	require.Equal(t, int64(42), resp.Models[0].TotalWeight)
	require.Equal(t, int64(1), resp.Models[0].ParticipantCount)
	require.Len(t, resp.Stats, 1)
	require.Equal(t, int64(7), resp.Stats[0].Inferences)
}

func TestCurrentModels_FallsBackToCachedResponseOnUpstreamFailure(t *testing.T) {
	up := newFakeUpstream()
	up.latestHeight = 100
	up.currentGroup = &upstream.EpochGroup{ActiveParticipants: upstream.ActiveParticipants{
		EpochGroupID: 3,
		Participants: []upstream.EpochParticipant{{Index: "p1", Models: []string{"llama-3"}}},
	}}
	up.models = []upstream.ModelDescriptor{{ID: "llama-3", ProposedBy: "p1"}}
	up.modelsStats = []upstream.ModelStat{{Model: "llama-3", Inferences: 1}}

	s := New(up, newFakeStore())
	first, err := s.CurrentModels(context.Background())
	require.NoError(t, err)

	up.errOnModels = errors.New("upstream down")
	second, err := s.CurrentModels(context.Background())
	require.NoError(t, err)
	require.Equal(t, first.Models[0].ID, second.Models[0].ID)
}
