package store

import (
	"context"
	"fmt"
)

const inferenceEmptyMarker = "_EMPTY_MARKER_"

// InferenceRow mirrors Inference: one participant's inference record
// for one epoch.
type InferenceRow struct {
	EpochID              uint64
	ParticipantIndex     string
	InferenceID          string
	Status               string
	StartBlockHeight     string
	StartBlockTimestamp  string
	ValidatedByJSON      string
	PromptHash           string
	ResponseHash         string
	PromptPayload        string
	ResponsePayload      string
	PromptTokenCount     string
	CompletionTokenCount string
	Model                string
}

// UpsertInferences replaces every inference row for (epoch_id,
// participant_index): delete then insert within one transaction. An
// empty list still writes a single sentinel row with status
// "_EMPTY_MARKER_", distinguishing "never fetched" from "fetched,
// confirmed empty" — spec.md §3 exactly.
func (s *Store) UpsertInferences(ctx context.Context, epochID uint64, participantIndex string, rows []InferenceRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin inferences batch: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM participant_inferences WHERE epoch_id = $1 AND participant_index = $2
	`, epochID, participantIndex); err != nil {
		return fmt.Errorf("delete inferences: %w", err)
	}

	if len(rows) == 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO participant_inferences (epoch_id, participant_index, inference_id, status)
			VALUES ($1,$2,$3,$4)
		`, epochID, participantIndex, inferenceEmptyMarker, inferenceEmptyMarker); err != nil {
			return fmt.Errorf("insert inferences sentinel: %w", err)
		}
		return tx.Commit()
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO participant_inferences (
			epoch_id, participant_index, inference_id, status, start_block_height,
			start_block_timestamp, validated_by, prompt_hash, response_hash,
			prompt_payload, response_payload, prompt_token_count, completion_token_count, model
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`)
	if err != nil {
		return fmt.Errorf("prepare inferences insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, epochID, participantIndex, r.InferenceID, r.Status,
			r.StartBlockHeight, r.StartBlockTimestamp, r.ValidatedByJSON, r.PromptHash,
			r.ResponseHash, r.PromptPayload, r.ResponsePayload, r.PromptTokenCount,
			r.CompletionTokenCount, r.Model); err != nil {
			return fmt.Errorf("insert inference %s: %w", r.InferenceID, err)
		}
	}

	return tx.Commit()
}

// GetParticipantInferences returns the cached inferences for
// (epoch_id, participant_index). ok is false only when never fetched;
// a fetched-empty result returns ([], true).
func (s *Store) GetParticipantInferences(ctx context.Context, epochID uint64, participantIndex string) ([]InferenceRow, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT inference_id, status, start_block_height, start_block_timestamp, validated_by,
			prompt_hash, response_hash, prompt_payload, response_payload,
			prompt_token_count, completion_token_count, model
		FROM participant_inferences WHERE epoch_id = $1 AND participant_index = $2
	`, epochID, participantIndex)
	if err != nil {
		return nil, false, fmt.Errorf("query inferences: %w", err)
	}
	defer rows.Close()

	var out []InferenceRow
	sawAny := false
	for rows.Next() {
		r := InferenceRow{EpochID: epochID, ParticipantIndex: participantIndex}
		if err := rows.Scan(&r.InferenceID, &r.Status, &r.StartBlockHeight, &r.StartBlockTimestamp,
			&r.ValidatedByJSON, &r.PromptHash, &r.ResponseHash, &r.PromptPayload, &r.ResponsePayload,
			&r.PromptTokenCount, &r.CompletionTokenCount, &r.Model); err != nil {
			return nil, false, fmt.Errorf("scan inference row: %w", err)
		}
		sawAny = true
		if r.InferenceID == inferenceEmptyMarker {
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if !sawAny {
		return nil, false, nil
	}
	return out, true, nil
}
