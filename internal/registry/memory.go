package registry

import (
	"context"
	"sync"

	"voterchain/pkg/platform/sentinel"
)

type entry struct {
	owner        string
	voteLocked   bool
	transferFrom string
	transferTo   string
}

func (e *entry) transferring() bool { return e.transferTo != "" }

// InMemory is the single-process registry. One mutex over the whole table is
// what makes every operation a linearizable check-and-set; contention is
// negligible at this scale.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]*entry)}
}

func (r *InMemory) ClaimRegistration(_ context.Context, voterID, state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[voterID]; ok {
		return ErrAlreadyRegistered
	}
	r.entries[voterID] = &entry{owner: state}
	return nil
}

func (r *InMemory) ReleaseRegistration(_ context.Context, voterID, state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[voterID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if e.owner != state {
		return ErrNotOwner
	}
	if e.voteLocked {
		return sentinel.ErrInvalidState
	}
	delete(r.entries, voterID)
	return nil
}

func (r *InMemory) TransferOwnership(_ context.Context, voterID, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[voterID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if e.owner != from {
		return ErrNotOwner
	}
	if e.transferring() {
		return ErrAlreadyTransferring
	}
	e.owner = to
	e.transferFrom = from
	e.transferTo = to
	return nil
}

func (r *InMemory) CompleteTransfer(_ context.Context, voterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[voterID]
	if !ok {
		return sentinel.ErrNotFound
	}
	e.transferFrom = ""
	e.transferTo = ""
	return nil
}

func (r *InMemory) AbortTransfer(_ context.Context, voterID, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[voterID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if e.owner != to || e.transferFrom != from || e.transferTo != to {
		return sentinel.ErrInvalidState
	}
	e.owner = from
	e.transferFrom = ""
	e.transferTo = ""
	return nil
}

func (r *InMemory) LockVote(_ context.Context, voterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[voterID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if e.voteLocked {
		return ErrAlreadyVoted
	}
	e.voteLocked = true
	return nil
}

func (r *InMemory) Owner(_ context.Context, voterID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[voterID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return e.owner, nil
}
