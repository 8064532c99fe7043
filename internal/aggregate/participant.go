package aggregate

import (
	"context"
	"encoding/json"
	"math/big"
	"sort"

	"github.com/gonka-ai/inferencecache/internal/store"
)

const rewardWindowSize = 5

// ParticipantDetails resolves one participant's fused view, recent
// reward history, PoC seed, warm-key grants, and hardware nodes for a
// given epoch.
func (s *Service) ParticipantDetails(ctx context.Context, participantID string, epochID uint64, height *int64) (*ParticipantDetailsResponse, error) {
	latest, err := s.client.LatestEpoch(ctx)
	if err != nil {
		return nil, err
	}
	isCurrent := epochID == latest.LatestEpoch.Index

	var response *InferenceResponse
	if isCurrent {
		response, err = s.CurrentEpochStats(ctx, false)
	} else {
		response, err = s.HistoricalEpochStats(ctx, epochID, height, false)
	}
	if err != nil {
		return nil, err
	}

	var participant *ParticipantStats
	for i := range response.Participants {
		if response.Participants[i].Index == participantID {
			participant = &response.Participants[i]
			break
		}
	}
	if participant == nil {
		participant = &ParticipantStats{Index: participantID}
	}

	epochIDs := rewardWindow(epochID, isCurrent, latest.LatestEpoch.Index)

	rewards := s.collectRewardHistory(ctx, epochIDs, participantID)

	var seed *SeedInfo
	if statsRows, ok, err := s.store.GetStats(ctx, epochID, response.Height); err == nil && ok {
		for _, row := range statsRows {
			if row.ParticipantIndex == participantID && row.SeedSignature != "" {
				seed = &SeedInfo{Participant: participantID, EpochIndex: epochID, Signature: row.SeedSignature}
				break
			}
		}
	}

	warmKeys := s.collectWarmKeys(ctx, epochID, participant)
	mlNodes := s.collectMLNodes(ctx, epochID, participant)

	return &ParticipantDetailsResponse{
		Participant: *participant,
		Rewards:     rewards,
		Seed:        seed,
		WarmKeys:    warmKeys,
		MLNodes:     mlNodes,
	}, nil
}

// rewardWindow builds the epoch ids whose reward history should be
// surfaced: the five epochs preceding the current one for a current
// participant, or the six epochs e-5..e ending at (and including) a
// historical one e — always clipped to positive ids, empty for a
// not-yet-started future epoch.
func rewardWindow(epochID uint64, isCurrent bool, currentEpochID uint64) []uint64 {
	if isCurrent {
		var ids []uint64
		for i := uint64(1); i <= rewardWindowSize; i++ {
			if epochID <= i {
				break
			}
			ids = append(ids, epochID-i)
		}
		return ids
	}
	if epochID > currentEpochID {
		return nil
	}
	var ids []uint64
	for i := rewardWindowSize; i >= 0; i-- {
		if epochID < uint64(i) {
			continue
		}
		if id := epochID - uint64(i); id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Service) collectRewardHistory(ctx context.Context, epochIDs []uint64, participantID string) []RewardInfo {
	var rewards []RewardInfo
	for _, eid := range epochIDs {
		row, ok, err := s.store.GetReward(ctx, eid, participantID)
		if err != nil || !ok {
			height, cherr := s.CanonicalHeight(ctx, eid, nil)
			if cherr != nil {
				continue
			}
			summary, ferr := s.client.EpochPerformanceSummary(ctx, eid, participantID, height)
			if ferr != nil {
				continue
			}
			row = store.RewardRow{EpochID: eid, ParticipantIndex: participantID, RewardedCoins: summary.RewardedCoins, Claimed: summary.Claimed}
			if err := s.store.UpsertReward(ctx, row); err != nil {
				s.logger.Printf("failed to persist reward %d/%s: %v", eid, participantID, err)
			}
		}

		gnk := int64(0)
		if row.RewardedCoins != "0" && row.RewardedCoins != "" {
			if ugnk, ok := new(big.Int).SetString(row.RewardedCoins, 10); ok {
				gnk = new(big.Int).Quo(ugnk, big.NewInt(ugnkPerGnk)).Int64()
			}
		}
		rewards = append(rewards, RewardInfo{EpochID: eid, AssignedRewardGnk: gnk, Claimed: row.Claimed})
	}

	sort.Slice(rewards, func(i, j int) bool { return rewards[i].EpochID > rewards[j].EpochID })
	return rewards
}

func (s *Service) collectWarmKeys(ctx context.Context, epochID uint64, p *ParticipantStats) []WarmKeyInfo {
	rows, ok, err := s.store.GetWarmKeys(ctx, epochID, p.Index)
	if err != nil || !ok {
		grants, ferr := s.client.AuthzGrants(ctx, p.Address)
		if ferr != nil {
			return nil
		}
		rows = make([]store.WarmKeyRow, 0, len(grants))
		for _, g := range grants {
			rows = append(rows, store.WarmKeyRow{EpochID: epochID, ParticipantIndex: p.Index, GranteeAddress: g.GranteeAddress, GrantedAt: g.GrantedAt})
		}
		if err := s.store.UpsertWarmKeys(ctx, epochID, p.Index, rows); err != nil {
			s.logger.Printf("failed to persist warm keys %d/%s: %v", epochID, p.Index, err)
		}
	}
	out := make([]WarmKeyInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, WarmKeyInfo{GranteeAddress: r.GranteeAddress, GrantedAt: r.GrantedAt})
	}
	return out
}

func (s *Service) collectMLNodes(ctx context.Context, epochID uint64, p *ParticipantStats) []MLNodeInfo {
	rows, ok, err := s.store.GetHardwareNodes(ctx, epochID, p.Index)
	if err != nil || !ok {
		nodes, ferr := s.client.HardwareNodes(ctx, p.Index)
		if ferr != nil {
			return nil
		}
		rows = hardwareRowsFromWire(epochID, p.Index, nodes)
		if err := s.store.UpsertHardwareNodes(ctx, epochID, p.Index, rows); err != nil {
			s.logger.Printf("failed to persist hardware nodes %d/%s: %v", epochID, p.Index, err)
		}
	}

	out := make([]MLNodeInfo, 0, len(rows))
	for _, r := range rows {
		var models []string
		_ = json.Unmarshal([]byte(r.ModelsJSON), &models)
		var hardwareSpecs []struct {
			Type  string `json:"type"`
			Count int64  `json:"count"`
		}
		_ = json.Unmarshal([]byte(r.HardwareJSON), &hardwareSpecs)
		hardware := make([]HardwareInfo, 0, len(hardwareSpecs))
		for _, h := range hardwareSpecs {
			hardware = append(hardware, HardwareInfo{Type: h.Type, Count: h.Count})
		}

		var pocWeight *int64
		if p.mlNodesMap != nil {
			if w, ok := p.mlNodesMap[r.LocalID]; ok {
				pocWeight = ptr(w)
			}
		}
		if pocWeight == nil && r.PoCWeight.Valid {
			pocWeight = ptr(r.PoCWeight.Int64)
		}

		out = append(out, MLNodeInfo{
			LocalID: r.LocalID, Status: r.Status, Models: models,
			Hardware: hardware, Host: r.Host, Port: r.Port, PoCWeight: pocWeight,
		})
	}
	return out
}
