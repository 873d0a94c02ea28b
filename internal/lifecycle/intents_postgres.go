package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresIntentStore persists transfer intents in the transfer_intents
// table, so an in-flight transfer survives a process crash and is replayed
// by ResumeTransfers at the next boot.
type PostgresIntentStore struct {
	db *sql.DB
}

func NewPostgresIntentStore(db *sql.DB) *PostgresIntentStore {
	return &PostgresIntentStore{db: db}
}

func (p *PostgresIntentStore) Save(ctx context.Context, intent TransferIntent) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transfer_intents (id, voter_id, from_state, to_state, stage,
			new_address_line1, new_address_line2, new_city, new_pincode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET stage = EXCLUDED.stage`,
		intent.ID, intent.VoterID, intent.FromState, intent.ToState, string(intent.Stage),
		intent.NewAddressLine1, intent.NewAddressLine2, intent.NewCity, intent.NewPincode,
		intent.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save transfer intent: %w", err)
	}
	return nil
}

func (p *PostgresIntentStore) Delete(ctx context.Context, id string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM transfer_intents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete transfer intent: %w", err)
	}
	return nil
}

func (p *PostgresIntentStore) List(ctx context.Context) ([]TransferIntent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, voter_id, from_state, to_state, stage,
			new_address_line1, new_address_line2, new_city, new_pincode, created_at
		FROM transfer_intents ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list transfer intents: %w", err)
	}
	defer rows.Close()

	var out []TransferIntent
	for rows.Next() {
		var intent TransferIntent
		var stage string
		if err := rows.Scan(&intent.ID, &intent.VoterID, &intent.FromState, &intent.ToState, &stage,
			&intent.NewAddressLine1, &intent.NewAddressLine2, &intent.NewCity, &intent.NewPincode,
			&intent.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transfer intent: %w", err)
		}
		intent.Stage = IntentStage(stage)
		out = append(out, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer intents: %w", err)
	}
	return out, nil
}
