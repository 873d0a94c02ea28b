package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"voterchain/internal/ledger/models"
	"voterchain/pkg/platform/sentinel"
)

// Postgres persists one state's chain in the shared blocks table. Rows are
// keyed by (state, idx); the (state, voter_id, idx) index makes LatestFor a
// single indexed lookup.
type Postgres struct {
	db    *sql.DB
	state string
}

func NewPostgres(db *sql.DB, state string) *Postgres {
	return &Postgres{db: db, state: state}
}

func (s *Postgres) AppendBlock(ctx context.Context, b models.Block) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocks (state, idx, ts, event_type, voter_id, owner_state, payload_digest, prev_hash, block_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.state, b.Index, b.Timestamp, string(b.EventType), b.VoterID, b.OwnerState, b.PayloadDigest, b.PrevHash, b.Hash,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			// Another writer already holds this index; the appender must
			// re-read the tail and retry.
			return fmt.Errorf("append block at index %d: %w", b.Index, sentinel.ErrConflict)
		}
		return fmt.Errorf("append block: %w", err)
	}
	return nil
}

func (s *Postgres) Blocks(ctx context.Context, offset, limit int) ([]models.Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, ts, event_type, voter_id, owner_state, payload_digest, prev_hash, block_hash
		FROM blocks WHERE state = $1 ORDER BY idx ASC OFFSET $2 LIMIT $3`,
		s.state, offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

func (s *Postgres) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks WHERE state = $1`, s.state).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count blocks: %w", err)
	}
	return count, nil
}

func (s *Postgres) All(ctx context.Context) ([]models.Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, ts, event_type, voter_id, owner_state, payload_digest, prev_hash, block_hash
		FROM blocks WHERE state = $1 ORDER BY idx ASC`,
		s.state,
	)
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

func (s *Postgres) Tail(ctx context.Context) (models.Block, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT idx, ts, event_type, voter_id, owner_state, payload_digest, prev_hash, block_hash
		FROM blocks WHERE state = $1 ORDER BY idx DESC LIMIT 1`,
		s.state,
	)
	return scanBlock(row)
}

func (s *Postgres) LatestFor(ctx context.Context, voterID string) (models.Block, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT idx, ts, event_type, voter_id, owner_state, payload_digest, prev_hash, block_hash
		FROM blocks WHERE state = $1 AND voter_id = $2 ORDER BY idx DESC LIMIT 1`,
		s.state, voterID,
	)
	return scanBlock(row)
}

func scanBlock(row *sql.Row) (models.Block, error) {
	var b models.Block
	var eventType string
	err := row.Scan(&b.Index, &b.Timestamp, &eventType, &b.VoterID, &b.OwnerState, &b.PayloadDigest, &b.PrevHash, &b.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Block{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Block{}, fmt.Errorf("scan block: %w", err)
	}
	b.EventType = models.EventType(eventType)
	return b, nil
}

func scanBlocks(rows *sql.Rows) ([]models.Block, error) {
	var out []models.Block
	for rows.Next() {
		var b models.Block
		var eventType string
		if err := rows.Scan(&b.Index, &b.Timestamp, &eventType, &b.VoterID, &b.OwnerState, &b.PayloadDigest, &b.PrevHash, &b.Hash); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		b.EventType = models.EventType(eventType)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return out, nil
}
