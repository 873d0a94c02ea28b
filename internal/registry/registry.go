// Package registry is the process-wide source of truth mapping a voter to
// exactly one owning state, plus the nationwide vote lock. It exists because
// uniqueness cannot be derived from any single state's ledger: a per-state
// chain alone cannot stop a voter registering or voting again through
// another state's independent ledger.
//
// Every operation is a linearizable check-and-set: under no schedule may two
// concurrent requests for the same voter both observe "not yet locked".
package registry

import (
	"context"
	"errors"
)

// Business facts reported by the registry. The lifecycle orchestrator
// translates these into domain errors for callers.
var (
	ErrAlreadyRegistered   = errors.New("voter already registered")
	ErrNotOwner            = errors.New("state does not own voter")
	ErrAlreadyTransferring = errors.New("transfer already in flight")
	ErrAlreadyVoted        = errors.New("voter already voted")
)

// Registry arbitrates the operations that must be globally unique across
// independently operated state backends.
type Registry interface {
	// ClaimRegistration succeeds only if no entry exists for the voter.
	ClaimRegistration(ctx context.Context, voterID, state string) error
	// ReleaseRegistration undoes a fresh claim during registration rollback.
	// Fails with ErrNotOwner if the state does not hold the claim, and with
	// sentinel.ErrInvalidState once the voter has voted.
	ReleaseRegistration(ctx context.Context, voterID, state string) error
	// TransferOwnership atomically flips the owning state and records the
	// in-flight transfer. This flip is the transfer's commit point.
	TransferOwnership(ctx context.Context, voterID, from, to string) error
	// CompleteTransfer clears the in-flight marker once the record handoff
	// has finished.
	CompleteTransfer(ctx context.Context, voterID string) error
	// AbortTransfer rolls ownership back to the source state if the
	// in-flight marker still matches.
	AbortTransfer(ctx context.Context, voterID, from, to string) error
	// LockVote sets the nationwide vote lock exactly once. Two concurrent
	// calls for the same voter yield exactly one nil and one
	// ErrAlreadyVoted.
	LockVote(ctx context.Context, voterID string) error
	// Owner returns the owning state, or sentinel.ErrNotFound.
	Owner(ctx context.Context, voterID string) (string, error)
}
