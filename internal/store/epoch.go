package store

import (
	"context"
	"database/sql"
	"fmt"
)

// EpochRow is one persisted epoch_status row.
type EpochRow struct {
	EpochID             uint64
	PoCStartBlockHeight int64
	EffectiveBlockHeight int64
	EpochLength         int64
	Finished            bool
}

// UpsertEpoch writes or refreshes one epoch's status row, never
// clearing a Finished=true flag back to false.
func (s *Store) UpsertEpoch(ctx context.Context, e EpochRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO epoch_status (epoch_id, poc_start_block_height, effective_block_height, epoch_length, finished)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (epoch_id) DO UPDATE SET
			poc_start_block_height = EXCLUDED.poc_start_block_height,
			effective_block_height = EXCLUDED.effective_block_height,
			epoch_length = EXCLUDED.epoch_length,
			finished = epoch_status.finished OR EXCLUDED.finished
	`, e.EpochID, e.PoCStartBlockHeight, e.EffectiveBlockHeight, e.EpochLength, e.Finished)
	if err != nil {
		return fmt.Errorf("upsert epoch %d: %w", e.EpochID, err)
	}
	return nil
}

// GetEpoch returns one epoch's status row, or ok=false if never seen.
func (s *Store) GetEpoch(ctx context.Context, epochID uint64) (EpochRow, bool, error) {
	var e EpochRow
	e.EpochID = epochID
	err := s.db.QueryRowContext(ctx, `
		SELECT poc_start_block_height, effective_block_height, epoch_length, finished
		FROM epoch_status WHERE epoch_id = $1
	`, epochID).Scan(&e.PoCStartBlockHeight, &e.EffectiveBlockHeight, &e.EpochLength, &e.Finished)
	if err == sql.ErrNoRows {
		return EpochRow{}, false, nil
	}
	if err != nil {
		return EpochRow{}, false, fmt.Errorf("get epoch %d: %w", epochID, err)
	}
	return e, true, nil
}

// MarkEpochFinished sets finished=true, idempotently.
func (s *Store) MarkEpochFinished(ctx context.Context, epochID uint64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE epoch_status SET finished = TRUE WHERE epoch_id = $1`, epochID)
	if err != nil {
		return fmt.Errorf("mark epoch %d finished: %w", epochID, err)
	}
	return nil
}
