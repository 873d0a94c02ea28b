package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection. Returns nil if the
// URL is empty (Postgres not configured; in-memory stores are used instead).
func Open(url string) (*sql.DB, error) {
	if url == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// Migrate creates the tables this service owns. Idempotent; applied at boot.
func Migrate(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS blocks (
	state          TEXT   NOT NULL,
	idx            BIGINT NOT NULL,
	ts             BIGINT NOT NULL,
	event_type     TEXT   NOT NULL,
	voter_id       TEXT   NOT NULL,
	owner_state    TEXT   NOT NULL,
	payload_digest TEXT   NOT NULL,
	prev_hash      TEXT   NOT NULL,
	block_hash     TEXT   NOT NULL,
	PRIMARY KEY (state, idx)
);
CREATE INDEX IF NOT EXISTS blocks_voter_idx ON blocks (state, voter_id, idx);

CREATE TABLE IF NOT EXISTS voters (
	voter_id         TEXT PRIMARY KEY,
	store_state      TEXT NOT NULL,
	first_name       TEXT NOT NULL,
	last_name        TEXT NOT NULL,
	date_of_birth    TEXT NOT NULL,
	gender           TEXT NOT NULL,
	address_line1    TEXT NOT NULL,
	address_line2    TEXT NOT NULL DEFAULT '',
	city             TEXT NOT NULL,
	pincode          TEXT NOT NULL,
	phone_number     TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	photo_ref        TEXT NOT NULL DEFAULT '',
	current_state    TEXT NOT NULL,
	status           TEXT NOT NULL,
	has_voted        BOOLEAN NOT NULL DEFAULT FALSE,
	last_block_index BIGINT NOT NULL DEFAULT 0,
	metadata         JSONB NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS voters_store_state_idx ON voters (store_state);

CREATE TABLE IF NOT EXISTS transfer_intents (
	id                TEXT PRIMARY KEY,
	voter_id          TEXT NOT NULL,
	from_state        TEXT NOT NULL,
	to_state          TEXT NOT NULL,
	stage             TEXT NOT NULL,
	new_address_line1 TEXT NOT NULL,
	new_address_line2 TEXT NOT NULL DEFAULT '',
	new_city          TEXT NOT NULL,
	new_pincode       TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
