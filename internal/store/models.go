package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ModelAggregateRow mirrors the per-epoch model aggregation result:
// {model_id, total_weight, participant_count}.
type ModelAggregateRow struct {
	EpochID          uint64
	ModelID          string
	TotalWeight      int64
	ParticipantCount int64
}

// UpsertModelsBatch replaces an epoch's model aggregation rows inside
// one transaction.
func (s *Store) UpsertModelsBatch(ctx context.Context, epochID uint64, rows []ModelAggregateRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin models batch: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM models WHERE epoch_id = $1`, epochID); err != nil {
		return fmt.Errorf("delete models: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO models (epoch_id, model_id, total_weight, participant_count)
		VALUES ($1,$2,$3,$4)
	`)
	if err != nil {
		return fmt.Errorf("prepare models insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, epochID, r.ModelID, r.TotalWeight, r.ParticipantCount); err != nil {
			return fmt.Errorf("insert model %s: %w", r.ModelID, err)
		}
	}

	return tx.Commit()
}

// GetModels returns the cached model aggregation for an epoch. ok is
// false if never computed.
func (s *Store) GetModels(ctx context.Context, epochID uint64) ([]ModelAggregateRow, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model_id, total_weight, participant_count FROM models WHERE epoch_id = $1
	`, epochID)
	if err != nil {
		return nil, false, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	var out []ModelAggregateRow
	for rows.Next() {
		r := ModelAggregateRow{EpochID: epochID}
		if err := rows.Scan(&r.ModelID, &r.TotalWeight, &r.ParticipantCount); err != nil {
			return nil, false, fmt.Errorf("scan model row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, len(out) > 0, nil
}

// UpsertAPICache and GetAPICache back models_api_cache: small opaque
// JSON blobs keyed by a cache key, stored with a fetch timestamp. The
// table name is a parameter; timeline_cache has the same columns but is
// written and read through UpsertTimeline/GetTimeline instead.
func (s *Store) UpsertAPICache(ctx context.Context, table, key, payloadJSON string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (cache_key, payload, fetched_at)
		VALUES ($1, $2, now())
		ON CONFLICT (cache_key) DO UPDATE SET payload = EXCLUDED.payload, fetched_at = now()
	`, table)
	if _, err := s.db.ExecContext(ctx, query, key, payloadJSON); err != nil {
		return fmt.Errorf("upsert %s[%s]: %w", table, key, err)
	}
	return nil
}

func (s *Store) GetAPICache(ctx context.Context, table, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE cache_key = $1`, table)
	var payload string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s[%s]: %w", table, key, err)
	}
	return payload, true, nil
}
