package store

import (
	"context"
	"fmt"
)

// StatsRow is one persisted (epoch_id, height, participant_index) snapshot.
type StatsRow struct {
	EpochID               uint64
	Height                int64
	ParticipantIndex      string
	Weight                int64
	InferenceURL          string
	ModelsJSON            string
	ValidatorKey          string
	SeedSignature         string
	InferenceCount        string
	MissedRequests        string
	EarnedCoins           string
	RewardedCoins         string
	BurnedCoins           string
	ValidatedInferences   string
	InvalidatedInferences string
}

// UpsertStatsBatch writes every row for one (epoch_id, height) inside a
// single transaction — "all rows visible atomically or not at all."
func (s *Store) UpsertStatsBatch(ctx context.Context, rows []StatsRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stats batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO inference_stats (
			epoch_id, height, participant_index, weight, inference_url, models,
			validator_key, seed_signature, inference_count, missed_requests,
			earned_coins, rewarded_coins, burned_coins, validated_inferences,
			invalidated_inferences
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (epoch_id, height, participant_index) DO UPDATE SET
			weight = EXCLUDED.weight,
			inference_url = EXCLUDED.inference_url,
			models = EXCLUDED.models,
			validator_key = EXCLUDED.validator_key,
			seed_signature = EXCLUDED.seed_signature,
			inference_count = EXCLUDED.inference_count,
			missed_requests = EXCLUDED.missed_requests,
			earned_coins = EXCLUDED.earned_coins,
			rewarded_coins = EXCLUDED.rewarded_coins,
			burned_coins = EXCLUDED.burned_coins,
			validated_inferences = EXCLUDED.validated_inferences,
			invalidated_inferences = EXCLUDED.invalidated_inferences
	`)
	if err != nil {
		return fmt.Errorf("prepare stats upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.EpochID, r.Height, r.ParticipantIndex, r.Weight,
			r.InferenceURL, r.ModelsJSON, r.ValidatorKey, r.SeedSignature, r.InferenceCount,
			r.MissedRequests, r.EarnedCoins, r.RewardedCoins, r.BurnedCoins,
			r.ValidatedInferences, r.InvalidatedInferences); err != nil {
			return fmt.Errorf("upsert stats row %s: %w", r.ParticipantIndex, err)
		}
	}

	return tx.Commit()
}

// GetStats returns every participant row cached for (epoch_id, height).
// ok is false only when the pair has never been written.
func (s *Store) GetStats(ctx context.Context, epochID uint64, height int64) ([]StatsRow, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT epoch_id, height, participant_index, weight, inference_url, models,
			validator_key, seed_signature, inference_count, missed_requests,
			earned_coins, rewarded_coins, burned_coins, validated_inferences,
			invalidated_inferences
		FROM inference_stats WHERE epoch_id = $1 AND height = $2
	`, epochID, height)
	if err != nil {
		return nil, false, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var out []StatsRow
	for rows.Next() {
		var r StatsRow
		if err := rows.Scan(&r.EpochID, &r.Height, &r.ParticipantIndex, &r.Weight,
			&r.InferenceURL, &r.ModelsJSON, &r.ValidatorKey, &r.SeedSignature,
			&r.InferenceCount, &r.MissedRequests, &r.EarnedCoins, &r.RewardedCoins,
			&r.BurnedCoins, &r.ValidatedInferences, &r.InvalidatedInferences); err != nil {
			return nil, false, fmt.Errorf("scan stats row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, len(out) > 0, nil
}
