// Package store is the typed persistent cache: a thin layer over
// PostgreSQL (lib/pq) exposing one Go struct and batch-upsert/point-lookup
// methods per table named in the specification's external interfaces
// section, plus the three-valued list semantics list-shaped tables need.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Store wraps a single *sql.DB connection pool. One struct, context-
// scoped calls, no package-level global — the same shape as the
// teacher's database state manager, generalized from savepoint
// management to typed upserts.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres at dbURL and verifies the connection with
// a Ping, then runs schema migration.
func Open(ctx context.Context, dbURL string) (*Store, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping cache store: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache store: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS inference_stats (
	epoch_id BIGINT NOT NULL,
	height BIGINT NOT NULL,
	participant_index TEXT NOT NULL,
	weight BIGINT NOT NULL,
	inference_url TEXT NOT NULL,
	models TEXT NOT NULL,
	validator_key TEXT NOT NULL,
	seed_signature TEXT NOT NULL,
	inference_count TEXT NOT NULL,
	missed_requests TEXT NOT NULL,
	earned_coins TEXT NOT NULL,
	rewarded_coins TEXT NOT NULL,
	burned_coins TEXT NOT NULL,
	validated_inferences TEXT NOT NULL,
	invalidated_inferences TEXT NOT NULL,
	PRIMARY KEY (epoch_id, height, participant_index)
);

CREATE TABLE IF NOT EXISTS epoch_status (
	epoch_id BIGINT PRIMARY KEY,
	poc_start_block_height BIGINT NOT NULL,
	effective_block_height BIGINT NOT NULL,
	epoch_length BIGINT NOT NULL,
	finished BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS jail_status (
	epoch_id BIGINT NOT NULL,
	participant_index TEXT NOT NULL,
	is_jailed BOOLEAN NOT NULL,
	jailed_until TEXT,
	ready_to_unjail BOOLEAN,
	valcons_address TEXT,
	moniker TEXT,
	identity TEXT,
	keybase_username TEXT,
	keybase_picture_url TEXT,
	website TEXT,
	validator_consensus_key TEXT,
	consensus_key_mismatch BOOLEAN,
	PRIMARY KEY (epoch_id, participant_index)
);

CREATE TABLE IF NOT EXISTS node_health (
	participant_index TEXT PRIMARY KEY,
	is_healthy BOOLEAN NOT NULL,
	last_check TIMESTAMPTZ NOT NULL,
	error_message TEXT,
	response_time_ms BIGINT
);

CREATE TABLE IF NOT EXISTS participant_rewards (
	epoch_id BIGINT NOT NULL,
	participant_index TEXT NOT NULL,
	rewarded_coins TEXT NOT NULL,
	claimed BOOLEAN NOT NULL,
	PRIMARY KEY (epoch_id, participant_index)
);

CREATE TABLE IF NOT EXISTS participant_warm_keys (
	epoch_id BIGINT NOT NULL,
	participant_index TEXT NOT NULL,
	grantee_address TEXT NOT NULL,
	granted_at TEXT NOT NULL,
	PRIMARY KEY (epoch_id, participant_index, grantee_address)
);

CREATE TABLE IF NOT EXISTS participant_hardware_nodes (
	epoch_id BIGINT NOT NULL,
	participant_index TEXT NOT NULL,
	local_id TEXT NOT NULL,
	status TEXT NOT NULL,
	models TEXT NOT NULL,
	hardware TEXT NOT NULL,
	host TEXT NOT NULL,
	port TEXT NOT NULL,
	poc_weight BIGINT,
	PRIMARY KEY (epoch_id, participant_index, local_id)
);

CREATE TABLE IF NOT EXISTS epoch_total_rewards (
	epoch_id BIGINT PRIMARY KEY,
	total_rewards_gnk BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS models (
	epoch_id BIGINT NOT NULL,
	model_id TEXT NOT NULL,
	total_weight BIGINT NOT NULL,
	participant_count BIGINT NOT NULL,
	PRIMARY KEY (epoch_id, model_id)
);

CREATE TABLE IF NOT EXISTS models_api_cache (
	cache_key TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS participant_inferences (
	epoch_id BIGINT NOT NULL,
	participant_index TEXT NOT NULL,
	inference_id TEXT NOT NULL,
	status TEXT NOT NULL,
	start_block_height TEXT,
	start_block_timestamp TEXT,
	validated_by TEXT,
	prompt_hash TEXT,
	response_hash TEXT,
	prompt_payload TEXT,
	response_payload TEXT,
	prompt_token_count TEXT,
	completion_token_count TEXT,
	model TEXT,
	PRIMARY KEY (epoch_id, participant_index, inference_id)
);

CREATE TABLE IF NOT EXISTS timeline_cache (
	cache_key TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaDDL)
	return err
}
