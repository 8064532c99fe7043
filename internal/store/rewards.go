package store

import (
	"context"
	"database/sql"
	"fmt"
)

// RewardRow mirrors Reward: {epoch_id, participant_id, rewarded_coins, claimed}.
type RewardRow struct {
	EpochID          uint64
	ParticipantIndex string
	RewardedCoins    string
	Claimed          bool
}

// UpsertReward writes or refreshes one participant's reward row for
// an epoch. Callers must not call this once Claimed was previously
// observed true — spec invariant, enforced by the aggregation layer.
func (s *Store) UpsertReward(ctx context.Context, r RewardRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participant_rewards (epoch_id, participant_index, rewarded_coins, claimed)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (epoch_id, participant_index) DO UPDATE SET
			rewarded_coins = EXCLUDED.rewarded_coins,
			claimed = EXCLUDED.claimed
	`, r.EpochID, r.ParticipantIndex, r.RewardedCoins, r.Claimed)
	if err != nil {
		return fmt.Errorf("upsert reward %d/%s: %w", r.EpochID, r.ParticipantIndex, err)
	}
	return nil
}

// GetReward returns one cached reward row, ok=false if never fetched.
func (s *Store) GetReward(ctx context.Context, epochID uint64, participantIndex string) (RewardRow, bool, error) {
	r := RewardRow{EpochID: epochID, ParticipantIndex: participantIndex}
	err := s.db.QueryRowContext(ctx, `
		SELECT rewarded_coins, claimed FROM participant_rewards
		WHERE epoch_id = $1 AND participant_index = $2
	`, epochID, participantIndex).Scan(&r.RewardedCoins, &r.Claimed)
	if err == sql.ErrNoRows {
		return RewardRow{}, false, nil
	}
	if err != nil {
		return RewardRow{}, false, fmt.Errorf("get reward %d/%s: %w", epochID, participantIndex, err)
	}
	return r, true, nil
}

// EpochTotalRewardsRow mirrors EpochTotalRewards.
type EpochTotalRewardsRow struct {
	EpochID         uint64
	TotalRewardsGnk int64
}

// UpsertEpochTotalRewards is idempotent insert-or-replace, as required
// by the epoch-transition exclusion rule. A zero value must never be
// passed here — callers enforce the "zero means invalid" rule before
// calling.
func (s *Store) UpsertEpochTotalRewards(ctx context.Context, r EpochTotalRewardsRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO epoch_total_rewards (epoch_id, total_rewards_gnk)
		VALUES ($1,$2)
		ON CONFLICT (epoch_id) DO UPDATE SET total_rewards_gnk = EXCLUDED.total_rewards_gnk
	`, r.EpochID, r.TotalRewardsGnk)
	if err != nil {
		return fmt.Errorf("upsert epoch total rewards %d: %w", r.EpochID, err)
	}
	return nil
}

// GetEpochTotalRewards returns the cached total, ok=false if absent
// (either never computed, or evicted because it was zero).
func (s *Store) GetEpochTotalRewards(ctx context.Context, epochID uint64) (int64, bool, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT total_rewards_gnk FROM epoch_total_rewards WHERE epoch_id = $1
	`, epochID).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get epoch total rewards %d: %w", epochID, err)
	}
	return total, true, nil
}

// DeleteEpochTotalRewards evicts a stale zero-sum value so it is never
// mistaken for "computed".
func (s *Store) DeleteEpochTotalRewards(ctx context.Context, epochID uint64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM epoch_total_rewards WHERE epoch_id = $1`, epochID)
	if err != nil {
		return fmt.Errorf("delete epoch total rewards %d: %w", epochID, err)
	}
	return nil
}
