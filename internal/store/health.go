package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// HealthRow mirrors HealthOverlay: a single global row per participant.
type HealthRow struct {
	ParticipantIndex string
	IsHealthy        bool
	LastCheck        time.Time
	ErrorMessage     sql.NullString
	ResponseTimeMs   sql.NullInt64
}

// UpsertNodeHealth writes or replaces one participant's health row.
func (s *Store) UpsertNodeHealth(ctx context.Context, r HealthRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO node_health (participant_index, is_healthy, last_check, error_message, response_time_ms)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (participant_index) DO UPDATE SET
			is_healthy = EXCLUDED.is_healthy,
			last_check = EXCLUDED.last_check,
			error_message = EXCLUDED.error_message,
			response_time_ms = EXCLUDED.response_time_ms
	`, r.ParticipantIndex, r.IsHealthy, r.LastCheck, r.ErrorMessage, r.ResponseTimeMs)
	if err != nil {
		return fmt.Errorf("upsert health for %s: %w", r.ParticipantIndex, err)
	}
	return nil
}

// GetAllNodeHealth returns every participant's health row. ok is false
// only when the table has never been written to.
func (s *Store) GetAllNodeHealth(ctx context.Context) ([]HealthRow, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT participant_index, is_healthy, last_check, error_message, response_time_ms
		FROM node_health
	`)
	if err != nil {
		return nil, false, fmt.Errorf("query node health: %w", err)
	}
	defer rows.Close()

	var out []HealthRow
	for rows.Next() {
		var r HealthRow
		if err := rows.Scan(&r.ParticipantIndex, &r.IsHealthy, &r.LastCheck, &r.ErrorMessage, &r.ResponseTimeMs); err != nil {
			return nil, false, fmt.Errorf("scan health row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, len(out) > 0, nil
}
