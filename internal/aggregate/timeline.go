package aggregate

import (
	"context"
	"encoding/json"
	"time"
)

const timelineLookback = 10000

// timelineCacheTTL bounds how long a cached timeline computation is
// served before a fresh one is attempted; block cadence and the
// restriction-lift milestone change slowly enough that sub-minute
// staleness is acceptable.
const timelineCacheTTL = 60 * time.Second

// Timeline reports the chain's recent block cadence and the single
// "Money Transfer Enabled" milestone event. Recomputed at most once
// per timelineCacheTTL and persisted to timeline_cache; an upstream
// failure falls back to whatever was last cached, the same fallback
// policy CurrentEpochStats uses.
func (s *Service) Timeline(ctx context.Context) (*TimelineResponse, error) {
	if cached, fetchedAt, ok, err := s.store.GetTimeline(ctx); err == nil && ok && time.Since(fetchedAt) < timelineCacheTTL {
		var resp TimelineResponse
		if err := json.Unmarshal([]byte(cached), &resp); err == nil {
			return &resp, nil
		}
		s.logger.Printf("cached timeline payload corrupt, recomputing")
	}

	resp, err := s.computeTimeline(ctx)
	if err != nil {
		if cached, _, ok, cerr := s.store.GetTimeline(ctx); cerr == nil && ok {
			var fallback TimelineResponse
			if jerr := json.Unmarshal([]byte(cached), &fallback); jerr == nil {
				s.logger.Printf("timeline computation failed, serving cached value: %v", err)
				return &fallback, nil
			}
		}
		return nil, err
	}

	if payload, merr := json.Marshal(resp); merr == nil {
		if err := s.store.UpsertTimeline(ctx, string(payload)); err != nil {
			s.logger.Printf("failed to persist timeline cache: %v", err)
		}
	}

	return resp, nil
}

func (s *Service) computeTimeline(ctx context.Context) (*TimelineResponse, error) {
	current, err := s.client.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}

	refHeight := current.Height - timelineLookback
	if refHeight < 1 {
		refHeight = 1
	}
	refEnvelope, err := s.client.Block(ctx, refHeight)
	if err != nil {
		return nil, err
	}

	currentTime, err1 := time.Parse(time.RFC3339, current.Timestamp)
	refTime, err2 := time.Parse(time.RFC3339, refEnvelope.Result.Block.Header.Time)

	var avgBlockTime float64
	if err1 == nil && err2 == nil {
		blockDiff := current.Height - refHeight
		if blockDiff > 0 {
			avgBlockTime = round2(currentTime.Sub(refTime).Seconds() / float64(blockDiff))
		}
	}

	restrictions, err := s.client.RestrictionsParams(ctx)
	if err != nil {
		return nil, err
	}
	restrictionEndBlock := int64(parseDecimal(restrictions.RestrictionEndBlock))

	latestEpoch, err := s.client.LatestEpoch(ctx)
	if err != nil {
		return nil, err
	}

	return &TimelineResponse{
		CurrentBlock:      BlockInfo{Height: current.Height, Timestamp: current.Timestamp},
		ReferenceBlock:    BlockInfo{Height: refHeight, Timestamp: refEnvelope.Result.Block.Header.Time},
		AvgBlockTime:      avgBlockTime,
		CurrentEpochStart: latestEpoch.LatestEpoch.PoCStartBlockHeight,
		CurrentEpochIndex: latestEpoch.LatestEpoch.Index,
		EpochLength:       latestEpoch.EpochParams.EpochLength,
		Events: []TimelineEvent{
			{
				BlockHeight: restrictionEndBlock,
				Description: "Money Transfer Enabled",
				Occurred:    current.Height >= restrictionEndBlock,
			},
		},
	}, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
