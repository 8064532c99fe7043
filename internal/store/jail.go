package store

import (
	"context"
	"database/sql"
	"fmt"
)

// JailRow mirrors the JailOverlay entity: §3's per-(epoch, participant)
// jail and identity bundle.
type JailRow struct {
	EpochID               uint64
	ParticipantIndex      string
	IsJailed              bool
	JailedUntil           sql.NullString
	ReadyToUnjail         sql.NullBool
	ValconsAddress        sql.NullString
	Moniker               sql.NullString
	Identity              sql.NullString
	KeybaseUsername       sql.NullString
	KeybasePictureURL     sql.NullString
	Website               sql.NullString
	ValidatorConsensusKey sql.NullString
	ConsensusKeyMismatch  sql.NullBool
}

// UpsertJailBatch overwrites jail overlay rows for an epoch, one
// transaction per batch.
func (s *Store) UpsertJailBatch(ctx context.Context, rows []JailRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin jail batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO jail_status (
			epoch_id, participant_index, is_jailed, jailed_until, ready_to_unjail,
			valcons_address, moniker, identity, keybase_username, keybase_picture_url,
			website, validator_consensus_key, consensus_key_mismatch
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (epoch_id, participant_index) DO UPDATE SET
			is_jailed = EXCLUDED.is_jailed,
			jailed_until = EXCLUDED.jailed_until,
			ready_to_unjail = EXCLUDED.ready_to_unjail,
			valcons_address = EXCLUDED.valcons_address,
			moniker = EXCLUDED.moniker,
			identity = EXCLUDED.identity,
			keybase_username = EXCLUDED.keybase_username,
			keybase_picture_url = EXCLUDED.keybase_picture_url,
			website = EXCLUDED.website,
			validator_consensus_key = EXCLUDED.validator_consensus_key,
			consensus_key_mismatch = EXCLUDED.consensus_key_mismatch
	`)
	if err != nil {
		return fmt.Errorf("prepare jail upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.EpochID, r.ParticipantIndex, r.IsJailed, r.JailedUntil,
			r.ReadyToUnjail, r.ValconsAddress, r.Moniker, r.Identity, r.KeybaseUsername,
			r.KeybasePictureURL, r.Website, r.ValidatorConsensusKey, r.ConsensusKeyMismatch); err != nil {
			return fmt.Errorf("upsert jail row %s: %w", r.ParticipantIndex, err)
		}
	}
	return tx.Commit()
}

// GetJailOverlay returns all jail rows for an epoch. ok is false only
// when the epoch has never had a jail refresh pass.
func (s *Store) GetJailOverlay(ctx context.Context, epochID uint64) ([]JailRow, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT epoch_id, participant_index, is_jailed, jailed_until, ready_to_unjail,
			valcons_address, moniker, identity, keybase_username, keybase_picture_url,
			website, validator_consensus_key, consensus_key_mismatch
		FROM jail_status WHERE epoch_id = $1
	`, epochID)
	if err != nil {
		return nil, false, fmt.Errorf("query jail overlay: %w", err)
	}
	defer rows.Close()

	var out []JailRow
	for rows.Next() {
		var r JailRow
		if err := rows.Scan(&r.EpochID, &r.ParticipantIndex, &r.IsJailed, &r.JailedUntil,
			&r.ReadyToUnjail, &r.ValconsAddress, &r.Moniker, &r.Identity, &r.KeybaseUsername,
			&r.KeybasePictureURL, &r.Website, &r.ValidatorConsensusKey, &r.ConsensusKeyMismatch); err != nil {
			return nil, false, fmt.Errorf("scan jail row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, len(out) > 0, nil
}
