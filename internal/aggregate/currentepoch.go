package aggregate

import (
	"context"
	"time"

	"github.com/gonka-ai/inferencecache/internal/store"
	"github.com/gonka-ai/inferencecache/internal/upstream"
)

type epochParticipantInfo struct {
	weight        int64
	models        []string
	validatorKey  string
	seedSignature string
	mlNodesMap    map[string]int64
}

func buildEpochParticipantIndex(active []upstream.EpochParticipant) map[string]epochParticipantInfo {
	idx := make(map[string]epochParticipantInfo, len(active))
	for _, p := range active {
		idx[p.Index] = epochParticipantInfo{
			weight:        p.Weight,
			models:        p.Models,
			validatorKey:  p.ValidatorKey,
			seedSignature: p.Seed.Signature,
			mlNodesMap:    extractMLNodesMap(p.MLNodes),
		}
	}
	return idx
}

// buildParticipantStats fuses one upstream participant record with
// its epoch-membership attributes into the fused ParticipantStats
// shape. It always returns a record: missing or unparseable counters
// are carried through as-is and only degrade the derived rates to 0.
func buildParticipantStats(wire upstream.ParticipantWire, epochInfo epochParticipantInfo) ParticipantStats {
	stats := CurrentEpochStatsWire(wire.CurrentEpochStats)
	missedRate, invalidationRate := computeRates(stats)

	return ParticipantStats{
		Index:              wire.Index,
		Address:            wire.Address,
		Weight:             epochInfo.weight,
		ValidatorKey:       epochInfo.validatorKey,
		InferenceURL:       wire.InferenceURL,
		Status:             wire.Status,
		Models:             epochInfo.models,
		CurrentEpochStats:  stats,
		MissedRate:         missedRate,
		InvalidationRate:   invalidationRate,
		seedSignature:      epochInfo.seedSignature,
		mlNodesMap:         epochInfo.mlNodesMap,
	}
}

func statsRowFromParticipant(epochID uint64, height int64, p ParticipantStats) store.StatsRow {
	return store.StatsRow{
		EpochID:               epochID,
		Height:                height,
		ParticipantIndex:      p.Index,
		Weight:                p.Weight,
		InferenceURL:          p.InferenceURL,
		ModelsJSON:            joinCSV(p.Models),
		ValidatorKey:          p.ValidatorKey,
		SeedSignature:         p.seedSignature,
		InferenceCount:        p.CurrentEpochStats.InferenceCount,
		MissedRequests:        p.CurrentEpochStats.MissedRequests,
		EarnedCoins:           p.CurrentEpochStats.EarnedCoins,
		RewardedCoins:         p.CurrentEpochStats.RewardedCoins,
		BurnedCoins:           p.CurrentEpochStats.BurnedCoins,
		ValidatedInferences:   p.CurrentEpochStats.ValidatedInferences,
		InvalidatedInferences: p.CurrentEpochStats.InvalidatedInferences,
	}
}

// CurrentEpochStats returns the current epoch's fused participant
// view, served from the 300s publish-style cache unless reload is set
// or the cache is cold/expired.
func (s *Service) CurrentEpochStats(ctx context.Context, reload bool) (*InferenceResponse, error) {
	if !reload {
		if cached := s.currentEpochCache.Load(); cached != nil && time.Since(cached.fetchedAt) < currentEpochTTL {
			return cached.response, nil
		}
		if resp, _, _, ok := s.redisLoadCurrentEpoch(ctx); ok {
			return resp, nil
		}
	}

	height, err := s.client.LatestHeight(ctx)
	if err != nil {
		return s.fallbackOrError(err)
	}

	epochData, err := s.client.CurrentEpochParticipants(ctx)
	if err != nil {
		return s.fallbackOrError(err)
	}
	epochID := epochData.ActiveParticipants.EpochGroupID

	s.markEpochFinishedIfNeeded(ctx, epochID)

	allParticipants, err := s.client.AllParticipants(ctx, height)
	if err != nil {
		return s.fallbackOrError(err)
	}

	active := epochData.ActiveParticipants.Participants
	epochIndex := buildEpochParticipantIndex(active)
	activeSet := make(map[string]struct{}, len(active))
	for _, p := range active {
		activeSet[p.Index] = struct{}{}
	}

	var participants []ParticipantStats
	var rowsToSave []store.StatsRow
	for _, wire := range allParticipants {
		if _, ok := activeSet[wire.Index]; !ok {
			continue
		}
		info := epochIndex[wire.Index]
		p := buildParticipantStats(wire, info)
		participants = append(participants, p)
		rowsToSave = append(rowsToSave, statsRowFromParticipant(epochID, height, p))
	}

	participants = s.mergeJailAndHealth(ctx, epochID, participants, height, active)

	response := &InferenceResponse{
		EpochID:      epochID,
		Height:       height,
		Participants: participants,
		CachedAt:     time.Now().UTC().Format(time.RFC3339),
		IsCurrent:    true,
	}

	if err := s.store.UpsertStatsBatch(ctx, rowsToSave); err != nil {
		s.logger.Printf("failed to persist current epoch stats batch: %v", err)
	}
	if err := s.store.UpsertEpoch(ctx, store.EpochRow{
		EpochID:              epochID,
		PoCStartBlockHeight:  epochData.ActiveParticipants.PoCStartBlockHeight,
		EffectiveBlockHeight: epochData.ActiveParticipants.EffectiveBlockHeight,
	}); err != nil {
		s.logger.Printf("failed to upsert epoch status %d: %v", epochID, err)
	}

	fetchedAt := time.Now()
	s.currentEpochCache.Store(&currentEpochCache{response: response, epochID: epochID, fetchedAt: fetchedAt})
	s.redisStoreCurrentEpoch(ctx, response, epochID, fetchedAt)
	s.currentEpochID.Store(epochID)
	s.haveSeenEpoch.Store(true)

	go s.ensureParticipantCaches(context.WithoutCancel(ctx), epochID, height, participants)

	return response, nil
}

// fallbackOrError returns the last cached current-epoch response on a
// fetch failure, or the error itself if no cache exists — spec.md §7,
// scenario E.
func (s *Service) fallbackOrError(err error) (*InferenceResponse, error) {
	if cached := s.currentEpochCache.Load(); cached != nil {
		s.logger.Printf("upstream fetch failed, returning cached current epoch data: %v", err)
		return cached.response, nil
	}
	if resp, _, _, ok := s.redisLoadCurrentEpoch(context.Background()); ok {
		s.logger.Printf("upstream fetch failed, returning redis-cached current epoch data: %v", err)
		return resp, nil
	}
	return nil, err
}

// markEpochFinishedIfNeeded detects an epoch transition (the
// previously observed current epoch id advancing) and, the first time
// it does, finalizes the old epoch: marks it finished and computes its
// total rewards synchronously. This is the only path that writes
// epoch_status's finished flag from the current-epoch task.
func (s *Service) markEpochFinishedIfNeeded(ctx context.Context, newEpochID uint64) {
	if !s.haveSeenEpoch.Load() {
		return
	}
	oldEpochID := s.currentEpochID.Load()
	if newEpochID <= oldEpochID {
		return
	}

	row, ok, err := s.store.GetEpoch(ctx, oldEpochID)
	if err == nil && ok && row.Finished {
		return
	}

	s.logger.Printf("epoch transition detected: %d -> %d", oldEpochID, newEpochID)
	if _, err := s.HistoricalEpochStats(ctx, oldEpochID, nil, true); err != nil {
		s.logger.Printf("failed to mark epoch %d as finished: %v", oldEpochID, err)
		return
	}
	s.logger.Printf("marked epoch %d as finished and cached final stats with total rewards", oldEpochID)
}

func joinCSV(items []string) string {
	if len(items) == 0 {
		return ""
	}
	out := items[0]
	for _, it := range items[1:] {
		out += "," + it
	}
	return out
}
