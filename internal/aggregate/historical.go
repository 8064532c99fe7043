package aggregate

import (
	"context"
	"time"

	"github.com/gonka-ai/inferencecache/internal/store"
)

// participantStatsFromRow reconstructs the fused view from a persisted
// StatsRow, without any of the upstream wire fields a fresh fetch would
// carry (Address, Status are only ever populated by a live fetch).
func participantStatsFromRow(r store.StatsRow) ParticipantStats {
	stats := CurrentEpochStatsWire{
		InferenceCount:        r.InferenceCount,
		MissedRequests:        r.MissedRequests,
		EarnedCoins:           r.EarnedCoins,
		RewardedCoins:         r.RewardedCoins,
		BurnedCoins:           r.BurnedCoins,
		ValidatedInferences:   r.ValidatedInferences,
		InvalidatedInferences: r.InvalidatedInferences,
	}
	missedRate, invalidationRate := computeRates(stats)
	return ParticipantStats{
		Index:             r.ParticipantIndex,
		Weight:            r.Weight,
		ValidatorKey:      r.ValidatorKey,
		InferenceURL:      r.InferenceURL,
		Models:            splitCSV(r.ModelsJSON),
		CurrentEpochStats: stats,
		MissedRate:        missedRate,
		InvalidationRate:  invalidationRate,
		seedSignature:     r.SeedSignature,
	}
}

// HistoricalEpochStats returns a finished (or in-progress-but-not-current)
// epoch's fused participant view at its canonical height, served from
// cache whenever present. requestedHeight nil means "the epoch's
// canonical height"; calculateRewardsSync forces a synchronous rewards
// computation rather than leaving it to the background scheduler —
// used by markEpochFinishedIfNeeded so a just-finished epoch's totals
// are available immediately.
func (s *Service) HistoricalEpochStats(ctx context.Context, epochID uint64, requestedHeight *int64, calculateRewardsSync bool) (*InferenceResponse, error) {
	height, err := s.CanonicalHeight(ctx, epochID, requestedHeight)
	if err != nil {
		return nil, err
	}

	cachedRows, ok, err := s.store.GetStats(ctx, epochID, height)
	if err != nil {
		s.logger.Printf("failed to read cached stats for epoch %d height %d: %v", epochID, height, err)
	}

	var participants []ParticipantStats
	fromCache := ok

	if ok {
		for _, row := range cachedRows {
			participants = append(participants, participantStatsFromRow(row))
		}
	} else {
		epochData, err := s.client.EpochParticipants(ctx, epochID)
		if err != nil {
			return nil, err
		}
		allParticipants, err := s.client.AllParticipants(ctx, height)
		if err != nil {
			return nil, err
		}

		activeList := epochData.ActiveParticipants.Participants
		epochIndex := buildEpochParticipantIndex(activeList)
		activeSet := make(map[string]struct{}, len(activeList))
		for _, p := range activeList {
			activeSet[p.Index] = struct{}{}
		}

		var rowsToSave []store.StatsRow
		for _, wire := range allParticipants {
			if _, ok := activeSet[wire.Index]; !ok {
				continue
			}
			p := buildParticipantStats(wire, epochIndex[wire.Index])
			participants = append(participants, p)
			rowsToSave = append(rowsToSave, statsRowFromParticipant(epochID, height, p))
		}

		if err := s.store.UpsertStatsBatch(ctx, rowsToSave); err != nil {
			s.logger.Printf("failed to persist historical stats for epoch %d: %v", epochID, err)
		}
		if err := s.store.UpsertEpoch(ctx, store.EpochRow{
			EpochID:              epochID,
			PoCStartBlockHeight:  epochData.ActiveParticipants.PoCStartBlockHeight,
			EffectiveBlockHeight: epochData.ActiveParticipants.EffectiveBlockHeight,
		}); err != nil {
			s.logger.Printf("failed to upsert epoch status %d: %v", epochID, err)
		}

		participants = s.mergeJailAndHealth(ctx, epochID, participants, height, activeList)
	}

	if fromCache {
		participants = s.mergeCachedOverlaysOnly(ctx, epochID, participants)
	}

	var totalRewards *int64
	if total, ok, err := s.store.GetEpochTotalRewards(ctx, epochID); err == nil && ok {
		totalRewards = ptr(total)
	} else if calculateRewardsSync {
		if err := s.calculateTotalRewards(ctx, epochID); err != nil {
			s.logger.Printf("failed to calculate total rewards for epoch %d: %v", epochID, err)
		} else if total, ok, err := s.store.GetEpochTotalRewards(ctx, epochID); err == nil && ok {
			totalRewards = ptr(total)
		}
	}

	if requestedHeight == nil {
		if row, ok, err := s.store.GetEpoch(ctx, epochID); err == nil && ok && !row.Finished {
			if err := s.store.MarkEpochFinished(ctx, epochID); err != nil {
				s.logger.Printf("failed to mark epoch %d finished: %v", epochID, err)
			}
			if !calculateRewardsSync {
				go func() {
					bgCtx := context.WithoutCancel(ctx)
					if err := s.calculateTotalRewards(bgCtx, epochID); err != nil {
						s.logger.Printf("background total-rewards computation failed for epoch %d: %v", epochID, err)
					}
				}()
			}
		}
	}

	return &InferenceResponse{
		EpochID:                 epochID,
		Height:                  height,
		Participants:            participants,
		CachedAt:                time.Now().UTC().Format(time.RFC3339),
		IsCurrent:               false,
		TotalAssignedRewardsGnk: totalRewards,
	}, nil
}

