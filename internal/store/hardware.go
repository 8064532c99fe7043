package store

import (
	"context"
	"database/sql"
	"fmt"
)

// HardwareNodeRow mirrors HardwareNode, with hardware/models carried
// as JSON-encoded text columns (HardwareSpec list and string list).
type HardwareNodeRow struct {
	EpochID          uint64
	ParticipantIndex string
	LocalID          string
	Status           string
	ModelsJSON       string
	HardwareJSON     string
	Host             string
	Port             string
	PoCWeight        sql.NullInt64
}

const hardwareEmptyMarker = "_EMPTY_MARKER_"

// UpsertHardwareNodes replaces every hardware-node row for (epoch_id,
// participant_index): delete then insert, matching the warm-keys
// batch-writer contract.
func (s *Store) UpsertHardwareNodes(ctx context.Context, epochID uint64, participantIndex string, nodes []HardwareNodeRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin hardware nodes batch: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM participant_hardware_nodes WHERE epoch_id = $1 AND participant_index = $2
	`, epochID, participantIndex); err != nil {
		return fmt.Errorf("delete hardware nodes: %w", err)
	}

	if len(nodes) == 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO participant_hardware_nodes (epoch_id, participant_index, local_id, status, models, hardware, host, port, poc_weight)
			VALUES ($1,$2,$3,'','[]','[]','','',NULL)
		`, epochID, participantIndex, hardwareEmptyMarker); err != nil {
			return fmt.Errorf("insert hardware nodes sentinel: %w", err)
		}
	} else {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO participant_hardware_nodes (epoch_id, participant_index, local_id, status, models, hardware, host, port, poc_weight)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`)
		if err != nil {
			return fmt.Errorf("prepare hardware nodes insert: %w", err)
		}
		defer stmt.Close()
		for _, n := range nodes {
			if _, err := stmt.ExecContext(ctx, epochID, participantIndex, n.LocalID, n.Status,
				n.ModelsJSON, n.HardwareJSON, n.Host, n.Port, n.PoCWeight); err != nil {
				return fmt.Errorf("insert hardware node %s: %w", n.LocalID, err)
			}
		}
	}

	return tx.Commit()
}

// GetHardwareNodes returns the cached hardware nodes for (epoch_id,
// participant_index). ok is false only when never fetched.
func (s *Store) GetHardwareNodes(ctx context.Context, epochID uint64, participantIndex string) ([]HardwareNodeRow, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT local_id, status, models, hardware, host, port, poc_weight
		FROM participant_hardware_nodes WHERE epoch_id = $1 AND participant_index = $2
	`, epochID, participantIndex)
	if err != nil {
		return nil, false, fmt.Errorf("query hardware nodes: %w", err)
	}
	defer rows.Close()

	var out []HardwareNodeRow
	sawAny := false
	for rows.Next() {
		var n HardwareNodeRow
		n.EpochID, n.ParticipantIndex = epochID, participantIndex
		if err := rows.Scan(&n.LocalID, &n.Status, &n.ModelsJSON, &n.HardwareJSON, &n.Host, &n.Port, &n.PoCWeight); err != nil {
			return nil, false, fmt.Errorf("scan hardware node row: %w", err)
		}
		sawAny = true
		if n.LocalID == hardwareEmptyMarker {
			continue
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if !sawAny {
		return nil, false, nil
	}
	return out, true, nil
}
