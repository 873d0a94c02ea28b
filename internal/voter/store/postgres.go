package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voterchain/internal/voter/models"
	"voterchain/pkg/platform/sentinel"
)

// Postgres persists voter records in the shared voters table, partitioned by
// store_state so each state backend only sees its own records. Mutate takes
// a row lock (SELECT ... FOR UPDATE) for its read-modify-write, which is the
// per-voter exclusive lock the store contract requires.
type Postgres struct {
	db    *sql.DB
	state string
}

func NewPostgres(db *sql.DB, state string) *Postgres {
	return &Postgres{db: db, state: state}
}

const voterColumns = `voter_id, first_name, last_name, date_of_birth, gender,
	address_line1, address_line2, city, pincode, phone_number, email, photo_ref,
	current_state, status, has_voted, last_block_index, metadata, created_at, updated_at`

func (s *Postgres) Get(ctx context.Context, voterID string) (*models.VoterRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+voterColumns+` FROM voters WHERE voter_id = $1 AND store_state = $2`,
		voterID, s.state,
	)
	return scanVoter(row)
}

func (s *Postgres) Put(ctx context.Context, record *models.VoterRecord) error {
	if record == nil || record.VoterID == "" {
		return fmt.Errorf("voter record with id is required")
	}
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO voters (voter_id, store_state, first_name, last_name, date_of_birth, gender,
			address_line1, address_line2, city, pincode, phone_number, email, photo_ref,
			current_state, status, has_voted, last_block_index, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (voter_id) DO UPDATE SET
			store_state = EXCLUDED.store_state,
			address_line1 = EXCLUDED.address_line1,
			address_line2 = EXCLUDED.address_line2,
			city = EXCLUDED.city,
			pincode = EXCLUDED.pincode,
			phone_number = EXCLUDED.phone_number,
			email = EXCLUDED.email,
			photo_ref = EXCLUDED.photo_ref,
			current_state = EXCLUDED.current_state,
			status = EXCLUDED.status,
			has_voted = EXCLUDED.has_voted,
			last_block_index = EXCLUDED.last_block_index,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		record.VoterID, s.state, record.FirstName, record.LastName, record.DateOfBirth, record.Gender,
		record.AddressLine1, record.AddressLine2, record.City, record.Pincode, record.PhoneNumber,
		record.Email, record.PhotoRef, record.CurrentState, string(record.Status), record.HasVoted,
		record.LastBlockIndex, metadata, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put voter: %w", err)
	}
	return nil
}

func (s *Postgres) Mutate(ctx context.Context, voterID string, fn func(*models.VoterRecord) error) (*models.VoterRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin mutate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+voterColumns+` FROM voters WHERE voter_id = $1 AND store_state = $2 FOR UPDATE`,
		voterID, s.state,
	)
	record, err := scanVoter(row)
	if err != nil {
		return nil, err
	}

	if err := fn(record); err != nil {
		return nil, err
	}
	record.UpdatedAt = time.Now()

	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE voters SET
			address_line1 = $1, address_line2 = $2, city = $3, pincode = $4,
			phone_number = $5, email = $6, photo_ref = $7, current_state = $8,
			status = $9, has_voted = $10, last_block_index = $11, metadata = $12,
			updated_at = $13
		WHERE voter_id = $14 AND store_state = $15`,
		record.AddressLine1, record.AddressLine2, record.City, record.Pincode,
		record.PhoneNumber, record.Email, record.PhotoRef, record.CurrentState,
		string(record.Status), record.HasVoted, record.LastBlockIndex, metadata,
		record.UpdatedAt, voterID, s.state,
	)
	if err != nil {
		return nil, fmt.Errorf("update voter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit mutate: %w", err)
	}
	return record, nil
}

func (s *Postgres) List(ctx context.Context) ([]*models.VoterRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+voterColumns+` FROM voters WHERE store_state = $1 ORDER BY voter_id ASC`,
		s.state,
	)
	if err != nil {
		return nil, fmt.Errorf("list voters: %w", err)
	}
	defer rows.Close()

	var out []*models.VoterRecord
	for rows.Next() {
		record, err := scanVoterRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voters: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (*models.VoterRecord, error) {
	var record models.VoterRecord
	var status string
	var metadata []byte
	err := scanner.Scan(
		&record.VoterID, &record.FirstName, &record.LastName, &record.DateOfBirth, &record.Gender,
		&record.AddressLine1, &record.AddressLine2, &record.City, &record.Pincode,
		&record.PhoneNumber, &record.Email, &record.PhotoRef, &record.CurrentState,
		&status, &record.HasVoted, &record.LastBlockIndex, &metadata,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Status = models.Status(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &record, nil
}

func scanVoter(row *sql.Row) (*models.VoterRecord, error) {
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan voter: %w", err)
	}
	return record, nil
}

func scanVoterRows(rows *sql.Rows) (*models.VoterRecord, error) {
	record, err := scanRecord(rows)
	if err != nil {
		return nil, fmt.Errorf("scan voter: %w", err)
	}
	return record, nil
}
