package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gonka-ai/inferencecache/internal/store"
	"github.com/gonka-ai/inferencecache/internal/upstream"
)

const modelsAPICacheTable = "models_api_cache"

// modelsAPICacheTTL bounds how long a cached models response (live
// catalog/stats merged with the weight aggregate) is served as a
// fallback before a stale value is refused; the catalog and
// per-model stats otherwise come straight from upstream on every call.
const modelsAPICacheTTL = 60 * time.Second

func modelsCacheKey(epochID uint64, isCurrent bool) string {
	if isCurrent {
		return "current"
	}
	return fmt.Sprintf("epoch:%d", epochID)
}

// AggregateModels sums each model's total poc_weight and the number of
// distinct participants contributing to it, from the positional zip of
// a participant's models[] and ml_nodes[] lists, then persists the
// result for the epoch.
func (s *Service) AggregateModels(ctx context.Context, epochID uint64, active []upstream.EpochParticipant) ([]ModelAggregate, error) {
	totalWeight := make(map[string]int64)
	participantsByModel := make(map[string]map[string]struct{})

	for _, p := range active {
		for i, modelID := range p.Models {
			if modelID == "" {
				continue
			}
			if participantsByModel[modelID] == nil {
				participantsByModel[modelID] = make(map[string]struct{})
			}
			participantsByModel[modelID][p.Index] = struct{}{}

			if i < len(p.MLNodes) {
				for _, node := range p.MLNodes[i].MLNodes {
					totalWeight[modelID] += node.PoCWeight
				}
			} else {
				s.logger.Printf("participant %s: model %s at index %d has no matching ml_nodes entry, skipping weight contribution", p.Index, modelID, i)
			}
		}
	}

	var result []ModelAggregate
	var rows []store.ModelAggregateRow
	for modelID, participants := range participantsByModel {
		agg := ModelAggregate{
			ModelID:          modelID,
			TotalWeight:      totalWeight[modelID],
			ParticipantCount: int64(len(participants)),
		}
		result = append(result, agg)
		rows = append(rows, store.ModelAggregateRow{
			EpochID: epochID, ModelID: agg.ModelID,
			TotalWeight: agg.TotalWeight, ParticipantCount: agg.ParticipantCount,
		})
	}

	if err := s.store.UpsertModelsBatch(ctx, epochID, rows); err != nil {
		s.logger.Printf("failed to persist model aggregates for epoch %d: %v", epochID, err)
	}
	return result, nil
}

// modelAggregatesFor returns the cached per-epoch model weight/count
// aggregate, computing and persisting it from a fresh participant
// fetch when absent.
func (s *Service) modelAggregatesFor(ctx context.Context, epochID uint64, active []upstream.EpochParticipant) ([]ModelAggregate, error) {
	if cached, ok, err := s.store.GetModels(ctx, epochID); err == nil && ok {
		out := make([]ModelAggregate, 0, len(cached))
		for _, c := range cached {
			out = append(out, ModelAggregate{ModelID: c.ModelID, TotalWeight: c.TotalWeight, ParticipantCount: c.ParticipantCount})
		}
		return out, nil
	}
	return s.AggregateModels(ctx, epochID, active)
}

// buildModelsResponse fetches live catalog/stats data and merges it
// with the epoch's persisted weight aggregates. The merged response is
// cached under modelsAPICacheTable so a transient upstream failure can
// serve the last known-good view instead of erroring outright, the
// same fallback policy Timeline uses for timeline_cache.
func (s *Service) buildModelsResponse(ctx context.Context, epochID uint64, height int64, isCurrent bool, aggregates []ModelAggregate) (*ModelsResponse, error) {
	cacheKey := modelsCacheKey(epochID, isCurrent)

	resp, err := s.computeModelsResponse(ctx, epochID, height, isCurrent, aggregates)
	if err != nil {
		if cached, fetchedAt, ok, cerr := s.getModelsAPICache(ctx, cacheKey); cerr == nil && ok && time.Since(fetchedAt) < modelsAPICacheTTL {
			s.logger.Printf("models response computation failed for %s, serving cached value: %v", cacheKey, err)
			return cached, nil
		}
		return nil, err
	}

	if payload, merr := json.Marshal(resp); merr == nil {
		if err := s.store.UpsertAPICache(ctx, modelsAPICacheTable, cacheKey, string(payload)); err != nil {
			s.logger.Printf("failed to persist models cache for %s: %v", cacheKey, err)
		}
	}

	return resp, nil
}

// getModelsAPICache unmarshals a cached models response, if present.
func (s *Service) getModelsAPICache(ctx context.Context, cacheKey string) (*ModelsResponse, time.Time, bool, error) {
	payload, ok, err := s.store.GetAPICache(ctx, modelsAPICacheTable, cacheKey)
	if err != nil || !ok {
		return nil, time.Time{}, ok, err
	}
	var resp ModelsResponse
	if jerr := json.Unmarshal([]byte(payload), &resp); jerr != nil {
		return nil, time.Time{}, false, jerr
	}
	fetchedAt, perr := time.Parse(time.RFC3339, resp.CachedAt)
	if perr != nil {
		fetchedAt = time.Now().UTC()
	}
	return &resp, fetchedAt, true, nil
}

// computeModelsResponse fetches live catalog/stats data from upstream
// and merges it with the epoch's weight aggregates.
func (s *Service) computeModelsResponse(ctx context.Context, epochID uint64, height int64, isCurrent bool, aggregates []ModelAggregate) (*ModelsResponse, error) {
	catalog, err := s.client.Models(ctx)
	if err != nil {
		return nil, err
	}
	statsWire, err := s.client.ModelsStats(ctx)
	if err != nil {
		return nil, err
	}

	aggByID := make(map[string]ModelAggregate, len(aggregates))
	for _, a := range aggregates {
		aggByID[a.ModelID] = a
	}

	models := make([]ModelInfo, 0, len(catalog))
	for _, m := range catalog {
		agg := aggByID[m.ID]
		models = append(models, ModelInfo{
			ID:                     m.ID,
			TotalWeight:            agg.TotalWeight,
			ParticipantCount:       agg.ParticipantCount,
			ProposedBy:             m.ProposedBy,
			VRAM:                   m.VRAM,
			ThroughputPerNonce:     m.ThroughputPerNonce,
			UnitsOfComputePerToken: m.UnitsOfComputePerToken,
			HFRepo:                 m.HFRepo,
			HFCommit:               m.HFCommit,
			ModelArgs:              m.ModelArgs,
			ValidationThreshold:    m.ValidationThreshold,
		})
	}

	stats := make([]ModelStats, 0, len(statsWire))
	for _, st := range statsWire {
		stats = append(stats, ModelStats{Model: st.Model, AITokens: st.AITokens, Inferences: st.Inferences})
	}

	return &ModelsResponse{
		EpochID:   epochID,
		Height:    height,
		Models:    models,
		Stats:     stats,
		CachedAt:  time.Now().UTC().Format(time.RFC3339),
		IsCurrent: isCurrent,
	}, nil
}

// CurrentModels returns the live model catalog/stats merged with the
// current epoch's weight aggregate.
func (s *Service) CurrentModels(ctx context.Context) (*ModelsResponse, error) {
	height, err := s.client.LatestHeight(ctx)
	if err != nil {
		return nil, err
	}
	epochData, err := s.client.CurrentEpochParticipants(ctx)
	if err != nil {
		return nil, err
	}
	epochID := epochData.ActiveParticipants.EpochGroupID

	aggregates, err := s.modelAggregatesFor(ctx, epochID, epochData.ActiveParticipants.Participants)
	if err != nil {
		return nil, err
	}
	return s.buildModelsResponse(ctx, epochID, height, true, aggregates)
}

// HistoricalModels returns the model catalog/stats merged with a past
// epoch's cached (or freshly computed) weight aggregate.
func (s *Service) HistoricalModels(ctx context.Context, epochID uint64, requestedHeight *int64) (*ModelsResponse, error) {
	height, err := s.CanonicalHeight(ctx, epochID, requestedHeight)
	if err != nil {
		return nil, err
	}

	var active []upstream.EpochParticipant
	if _, ok, err := s.store.GetModels(ctx, epochID); err != nil || !ok {
		epochData, err := s.client.EpochParticipants(ctx, epochID)
		if err != nil {
			return nil, err
		}
		active = epochData.ActiveParticipants.Participants
	}

	aggregates, err := s.modelAggregatesFor(ctx, epochID, active)
	if err != nil {
		return nil, err
	}
	return s.buildModelsResponse(ctx, epochID, height, false, aggregates)
}
