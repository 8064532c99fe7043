package store

import (
	"context"
	"fmt"
)

// WarmKeyRow mirrors WarmKey: {epoch_id, participant_id, grantee_address, granted_at}.
type WarmKeyRow struct {
	EpochID          uint64
	ParticipantIndex string
	GranteeAddress   string
	GrantedAt        string
}

// UpsertWarmKeys replaces every warm-key row for (epoch_id,
// participant_index) inside one transaction: delete then insert,
// per the batch-writer contract for list-shaped tables. An empty
// keys slice writes a single marker row (grantee "_EMPTY_MARKER_") in
// place of the deleted ones, so the read side can tell "fetched,
// confirmed empty" from "never fetched" — same pattern as
// participant_inferences.
func (s *Store) UpsertWarmKeys(ctx context.Context, epochID uint64, participantIndex string, keys []WarmKeyRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin warm keys batch: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM participant_warm_keys WHERE epoch_id = $1 AND participant_index = $2
	`, epochID, participantIndex); err != nil {
		return fmt.Errorf("delete warm keys: %w", err)
	}

	grantee := "_EMPTY_MARKER_"
	if len(keys) == 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO participant_warm_keys (epoch_id, participant_index, grantee_address, granted_at)
			VALUES ($1,$2,$3,'')
		`, epochID, participantIndex, grantee); err != nil {
			return fmt.Errorf("insert warm keys sentinel: %w", err)
		}
	} else {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO participant_warm_keys (epoch_id, participant_index, grantee_address, granted_at)
			VALUES ($1,$2,$3,$4)
		`)
		if err != nil {
			return fmt.Errorf("prepare warm keys insert: %w", err)
		}
		defer stmt.Close()
		for _, k := range keys {
			if _, err := stmt.ExecContext(ctx, epochID, participantIndex, k.GranteeAddress, k.GrantedAt); err != nil {
				return fmt.Errorf("insert warm key %s: %w", k.GranteeAddress, err)
			}
		}
	}

	return tx.Commit()
}

// GetWarmKeys returns the cached warm keys for (epoch_id,
// participant_index). ok is false only when never fetched; a fetched-
// empty result returns ([], true).
func (s *Store) GetWarmKeys(ctx context.Context, epochID uint64, participantIndex string) ([]WarmKeyRow, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT grantee_address, granted_at FROM participant_warm_keys
		WHERE epoch_id = $1 AND participant_index = $2
	`, epochID, participantIndex)
	if err != nil {
		return nil, false, fmt.Errorf("query warm keys: %w", err)
	}
	defer rows.Close()

	var out []WarmKeyRow
	sawAny := false
	for rows.Next() {
		var grantee, grantedAt string
		if err := rows.Scan(&grantee, &grantedAt); err != nil {
			return nil, false, fmt.Errorf("scan warm key row: %w", err)
		}
		sawAny = true
		if grantee == "_EMPTY_MARKER_" {
			continue
		}
		out = append(out, WarmKeyRow{
			EpochID: epochID, ParticipantIndex: participantIndex,
			GranteeAddress: grantee, GrantedAt: grantedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if !sawAny {
		return nil, false, nil
	}
	return out, true, nil
}
