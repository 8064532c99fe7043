package aggregate

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/gonka-ai/inferencecache/internal/store"
)

const ugnkPerGnk = 1_000_000_000

// calculateTotalRewards sums rewarded_coins (in ugnk) across every
// active participant of an epoch and caches the gnk total. A genuine
// sum of zero from successful fetches is not an error, but it must
// never be cached — it is indistinguishable downstream from "not yet
// computed" and would wrongly suppress a later retry.
func (s *Service) calculateTotalRewards(ctx context.Context, epochID uint64) error {
	height, err := s.CanonicalHeight(ctx, epochID, nil)
	if err != nil {
		return err
	}
	epochData, err := s.client.EpochParticipants(ctx, epochID)
	if err != nil {
		return err
	}
	active := epochData.ActiveParticipants.Participants

	total := new(big.Int)
	fetchedCount := 0
	participantsWithRewards := 0

	for _, p := range active {
		summary, err := s.client.EpochPerformanceSummary(ctx, epochID, p.Index, height)
		if err != nil {
			s.logger.Printf("failed to fetch performance summary for %s in epoch %d: %v", p.Index, epochID, err)
			continue
		}
		fetchedCount++

		ugnk, ok := new(big.Int).SetString(summary.RewardedCoins, 10)
		if !ok {
			ugnk = big.NewInt(0)
		}
		if ugnk.Sign() > 0 {
			participantsWithRewards++
		}
		total.Add(total, ugnk)

		if err := s.store.UpsertReward(ctx, store.RewardRow{
			EpochID:          epochID,
			ParticipantIndex: p.Index,
			RewardedCoins:    summary.RewardedCoins,
			Claimed:          summary.Claimed,
		}); err != nil {
			s.logger.Printf("failed to persist reward for %s in epoch %d: %v", p.Index, epochID, err)
		}
	}

	if total.Sign() == 0 && fetchedCount > 0 {
		s.logger.Printf("epoch %d summed to zero total rewards across %d fetched participants, not caching", epochID, fetchedCount)
		return nil
	}

	totalGnk := new(big.Int).Quo(total, big.NewInt(ugnkPerGnk))
	if err := s.store.UpsertEpochTotalRewards(ctx, store.EpochTotalRewardsRow{
		EpochID:         epochID,
		TotalRewardsGnk: totalGnk.Int64(),
	}); err != nil {
		return err
	}
	s.logger.Printf("cached total rewards for epoch %d: %s gnk across %d/%d rewarded participants", epochID, totalGnk.String(), participantsWithRewards, fetchedCount)
	return nil
}

// ensureParticipantCaches inline-fetches and persists whichever of a
// participant's reward/warm-keys/hardware-nodes caches are still cold,
// after a fresh current-epoch fetch. Failures are logged and skipped
// per-item so one participant's upstream trouble never blocks another's.
func (s *Service) ensureParticipantCaches(ctx context.Context, epochID uint64, height int64, participants []ParticipantStats) {
	for _, p := range participants {
		if _, ok, err := s.store.GetReward(ctx, epochID, p.Index); err == nil && !ok {
			summary, err := s.client.EpochPerformanceSummary(ctx, epochID, p.Index, height)
			if err != nil {
				s.logger.Printf("ensureParticipantCaches: reward fetch failed for %s: %v", p.Index, err)
			} else if err := s.store.UpsertReward(ctx, store.RewardRow{
				EpochID: epochID, ParticipantIndex: p.Index,
				RewardedCoins: summary.RewardedCoins, Claimed: summary.Claimed,
			}); err != nil {
				s.logger.Printf("ensureParticipantCaches: reward save failed for %s: %v", p.Index, err)
			}
		}

		if _, ok, err := s.store.GetWarmKeys(ctx, epochID, p.Index); err == nil && !ok {
			grants, err := s.client.AuthzGrants(ctx, p.Address)
			if err != nil {
				s.logger.Printf("ensureParticipantCaches: warm keys fetch failed for %s: %v", p.Index, err)
			} else {
				rows := make([]store.WarmKeyRow, 0, len(grants))
				for _, g := range grants {
					rows = append(rows, store.WarmKeyRow{
						EpochID: epochID, ParticipantIndex: p.Index,
						GranteeAddress: g.GranteeAddress, GrantedAt: g.GrantedAt,
					})
				}
				if err := s.store.UpsertWarmKeys(ctx, epochID, p.Index, rows); err != nil {
					s.logger.Printf("ensureParticipantCaches: warm keys save failed for %s: %v", p.Index, err)
				}
			}
		}

		if _, ok, err := s.store.GetHardwareNodes(ctx, epochID, p.Index); err == nil && !ok {
			nodes, err := s.client.HardwareNodes(ctx, p.Index)
			if err != nil {
				s.logger.Printf("ensureParticipantCaches: hardware nodes fetch failed for %s: %v", p.Index, err)
			} else if err := s.store.UpsertHardwareNodes(ctx, epochID, p.Index, hardwareRowsFromWire(epochID, p.Index, nodes)); err != nil {
				s.logger.Printf("ensureParticipantCaches: hardware nodes save failed for %s: %v", p.Index, err)
			}
		}
	}
}

func marshalOrEmptyArray(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
