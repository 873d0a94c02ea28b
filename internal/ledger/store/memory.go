package store

import (
	"context"
	"sync"

	"voterchain/internal/ledger/models"
	"voterchain/pkg/platform/sentinel"
)

// InMemory keeps one state's chain as a growable ordered log with an
// auxiliary voter -> last-index map for O(1) latest-block lookup.
type InMemory struct {
	mu        sync.RWMutex
	blocks    []models.Block
	lastIndex map[string]int64
}

func NewInMemory() *InMemory {
	return &InMemory{lastIndex: make(map[string]int64)}
}

func (s *InMemory) AppendBlock(_ context.Context, b models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, b)
	s.lastIndex[b.VoterID] = b.Index
	return nil
}

func (s *InMemory) Blocks(_ context.Context, offset, limit int) ([]models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset >= len(s.blocks) {
		return nil, nil
	}
	end := min(offset+limit, len(s.blocks))
	page := make([]models.Block, end-offset)
	copy(page, s.blocks[offset:end])
	return page, nil
}

func (s *InMemory) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.blocks)), nil
}

func (s *InMemory) All(_ context.Context) ([]models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Block, len(s.blocks))
	copy(out, s.blocks)
	return out, nil
}

func (s *InMemory) Tail(_ context.Context) (models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.blocks) == 0 {
		return models.Block{}, sentinel.ErrNotFound
	}
	return s.blocks[len(s.blocks)-1], nil
}

func (s *InMemory) LatestFor(_ context.Context, voterID string) (models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.lastIndex[voterID]
	if !ok {
		return models.Block{}, sentinel.ErrNotFound
	}
	return s.blocks[idx], nil
}

// Overwrite replaces a stored block in place. Exists only so chain-integrity
// tests can corrupt a chain; nothing in the serving path calls it.
func (s *InMemory) Overwrite(index int64, b models.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[index] = b
}
