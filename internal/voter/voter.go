// Package voter defines durable keyed storage for voter records. No business
// validation lives here; the lifecycle orchestrator owns all rules.
package voter

import (
	"context"

	"voterchain/internal/voter/models"
)

// Store is the contract both the in-memory and Postgres implementations
// satisfy. Implementations return sentinel.ErrNotFound for unknown voters.
// Mutate runs fn under a per-voter exclusive lock covering the whole
// read-modify-write; unrelated voters are never blocked. Reads are
// snapshot-consistent: a concurrent reader sees the record before or after a
// mutation, never a half-written state.
type Store interface {
	Get(ctx context.Context, voterID string) (*models.VoterRecord, error)
	Put(ctx context.Context, record *models.VoterRecord) error
	Mutate(ctx context.Context, voterID string, fn func(*models.VoterRecord) error) (*models.VoterRecord, error)
	List(ctx context.Context) ([]*models.VoterRecord, error)
}
