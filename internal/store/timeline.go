package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertTimeline replaces the single cached timeline row with a freshly
// computed one. The table only ever holds the latest computation, so
// each write clears it and inserts one row under a new synthetic id.
func (s *Store) UpsertTimeline(ctx context.Context, payloadJSON string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin timeline upsert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM timeline_cache`); err != nil {
		return fmt.Errorf("clear timeline cache: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO timeline_cache (cache_key, payload, fetched_at)
		VALUES ($1, $2, $3)
	`, uuid.NewString(), payloadJSON, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert timeline cache: %w", err)
	}
	return tx.Commit()
}

// GetTimeline returns the cached timeline payload and when it was
// computed, or ok=false if nothing has been cached yet.
func (s *Store) GetTimeline(ctx context.Context) (payloadJSON string, fetchedAt time.Time, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload, fetched_at FROM timeline_cache LIMIT 1`)
	if scanErr := row.Scan(&payloadJSON, &fetchedAt); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return "", time.Time{}, false, nil
		}
		return "", time.Time{}, false, scanErr
	}
	return payloadJSON, fetchedAt, true, nil
}
