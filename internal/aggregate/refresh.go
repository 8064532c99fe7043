package aggregate

import (
	"context"

	"github.com/gonka-ai/inferencecache/internal/store"
	"github.com/gonka-ai/inferencecache/internal/upstream"
)

// rewardSweepDepth is how many completed epochs behind the current one
// the rewards and epoch_total_rewards background tasks sweep looking
// for unclaimed or uncached totals.
const rewardSweepDepth = 5

// currentActiveParticipants resolves the current epoch id, height, and
// active participant list shared by every background refresh task, so
// each task reads upstream exactly once per tick.
func (s *Service) currentActiveParticipants(ctx context.Context) (epochID uint64, height int64, active []upstream.EpochParticipant, err error) {
	height, err = s.client.LatestHeight(ctx)
	if err != nil {
		return 0, 0, nil, err
	}
	epochData, err := s.client.CurrentEpochParticipants(ctx)
	if err != nil {
		return 0, 0, nil, err
	}
	return epochData.ActiveParticipants.EpochGroupID, height, epochData.ActiveParticipants.Participants, nil
}

// RefreshJailStatuses recomputes the jail/identity overlay for every
// active participant of the current epoch. Grounded on spec.md §5.4's
// jail_status task.
func (s *Service) RefreshJailStatuses(ctx context.Context) error {
	epochID, height, active, err := s.currentActiveParticipants(ctx)
	if err != nil {
		return err
	}
	return s.computeJailOverlay(ctx, epochID, height, active)
}

// RefreshNodeHealth probes every active participant's inference node
// and overwrites its cached health row. Grounded on spec.md §5.4's
// node_health task.
func (s *Service) RefreshNodeHealth(ctx context.Context) error {
	_, _, active, err := s.currentActiveParticipants(ctx)
	if err != nil {
		return err
	}
	s.fetchAndCacheNodeHealth(ctx, active)
	return nil
}

// addressesByIndex maps each active participant's index to its bech32
// address, fetched from the full participant roster since the active
// list itself carries no address field.
func (s *Service) addressesByIndex(ctx context.Context, height int64, active []upstream.EpochParticipant) map[string]string {
	all, err := s.client.AllParticipants(ctx, height)
	if err != nil {
		s.logger.Printf("addressesByIndex: fetch failed: %v", err)
		return nil
	}
	byIndex := make(map[string]string, len(all))
	for _, w := range all {
		byIndex[w.Index] = w.Address
	}
	out := make(map[string]string, len(active))
	for _, p := range active {
		out[p.Index] = byIndex[p.Index]
	}
	return out
}

// RefreshWarmKeys re-fetches and overwrites the authz warm-key grants
// of every active participant of the current epoch. Grounded on
// spec.md §5.4's warm_keys task.
func (s *Service) RefreshWarmKeys(ctx context.Context) error {
	epochID, height, active, err := s.currentActiveParticipants(ctx)
	if err != nil {
		return err
	}
	addresses := s.addressesByIndex(ctx, height, active)
	for _, p := range active {
		grants, ferr := s.client.AuthzGrants(ctx, addresses[p.Index])
		if ferr != nil {
			s.logger.Printf("RefreshWarmKeys: fetch failed for %s: %v", p.Index, ferr)
			continue
		}
		rows := make([]store.WarmKeyRow, 0, len(grants))
		for _, g := range grants {
			rows = append(rows, store.WarmKeyRow{
				EpochID: epochID, ParticipantIndex: p.Index,
				GranteeAddress: g.GranteeAddress, GrantedAt: g.GrantedAt,
			})
		}
		if err := s.store.UpsertWarmKeys(ctx, epochID, p.Index, rows); err != nil {
			s.logger.Printf("RefreshWarmKeys: save failed for %s: %v", p.Index, err)
		}
	}
	return nil
}

// RefreshHardwareNodes re-fetches and overwrites the hardware node
// inventory of every active participant of the current epoch.
// Grounded on spec.md §5.4's hardware_nodes task.
func (s *Service) RefreshHardwareNodes(ctx context.Context) error {
	epochID, _, active, err := s.currentActiveParticipants(ctx)
	if err != nil {
		return err
	}
	for _, p := range active {
		nodes, ferr := s.client.HardwareNodes(ctx, p.Index)
		if ferr != nil {
			s.logger.Printf("RefreshHardwareNodes: fetch failed for %s: %v", p.Index, ferr)
			continue
		}
		if err := s.store.UpsertHardwareNodes(ctx, epochID, p.Index, hardwareRowsFromWire(epochID, p.Index, nodes)); err != nil {
			s.logger.Printf("RefreshHardwareNodes: save failed for %s: %v", p.Index, err)
		}
	}
	return nil
}

// PollParticipantRewards sweeps the last rewardSweepDepth completed
// epochs and refreshes every active participant's reward row that is
// not yet marked claimed, since an unclaimed reward can still change
// upstream. Grounded on spec.md §5.4's rewards task.
func (s *Service) PollParticipantRewards(ctx context.Context) error {
	epochID, _, active, err := s.currentActiveParticipants(ctx)
	if err != nil {
		return err
	}

	for back := uint64(1); back <= rewardSweepDepth; back++ {
		if epochID <= back {
			continue
		}
		sweepEpoch := epochID - back
		height, herr := s.CanonicalHeight(ctx, sweepEpoch, nil)
		if herr != nil {
			s.logger.Printf("PollParticipantRewards: canonical height failed for epoch %d: %v", sweepEpoch, herr)
			continue
		}
		for _, p := range active {
			row, ok, gerr := s.store.GetReward(ctx, sweepEpoch, p.Index)
			if gerr == nil && ok && row.Claimed {
				continue
			}
			summary, ferr := s.client.EpochPerformanceSummary(ctx, sweepEpoch, p.Index, height)
			if ferr != nil {
				s.logger.Printf("PollParticipantRewards: fetch failed for %s/%d: %v", p.Index, sweepEpoch, ferr)
				continue
			}
			if err := s.store.UpsertReward(ctx, store.RewardRow{
				EpochID: sweepEpoch, ParticipantIndex: p.Index,
				RewardedCoins: summary.RewardedCoins, Claimed: summary.Claimed,
			}); err != nil {
				s.logger.Printf("PollParticipantRewards: save failed for %s/%d: %v", p.Index, sweepEpoch, err)
			}
		}
	}
	return nil
}

// RefreshEpochTotalRewards sweeps the last rewardSweepDepth completed
// epochs, recomputing any epoch whose total is either missing or
// still zero, since a prior attempt may have hit the zero-sum
// sentinel before upstream had finished settling rewards. Grounded on
// spec.md §5.4's epoch_total_rewards task.
func (s *Service) RefreshEpochTotalRewards(ctx context.Context) error {
	latest, err := s.client.LatestEpoch(ctx)
	if err != nil {
		return err
	}
	currentEpochID := latest.LatestEpoch.Index

	for back := uint64(1); back <= rewardSweepDepth; back++ {
		if currentEpochID <= back {
			continue
		}
		sweepEpoch := currentEpochID - back
		total, ok, gerr := s.store.GetEpochTotalRewards(ctx, sweepEpoch)
		if gerr == nil && ok && total != 0 {
			continue
		}
		if gerr == nil && ok {
			if err := s.store.DeleteEpochTotalRewards(ctx, sweepEpoch); err != nil {
				s.logger.Printf("RefreshEpochTotalRewards: evicting zero total for epoch %d failed: %v", sweepEpoch, err)
			}
		}
		if err := s.calculateTotalRewards(ctx, sweepEpoch); err != nil {
			s.logger.Printf("RefreshEpochTotalRewards: epoch %d failed: %v", sweepEpoch, err)
		}
	}
	return nil
}
