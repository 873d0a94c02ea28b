package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"voterchain/internal/voter/models"
	"voterchain/pkg/platform/sentinel"
)

// InMemory keeps voter records in a map with a per-voter mutation lock.
// Records are stored and returned as deep copies, so readers always see a
// fully written version.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]*models.VoterRecord

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[string]*models.VoterRecord),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *InMemory) Get(_ context.Context, voterID string) (*models.VoterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[voterID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *InMemory) Put(_ context.Context, record *models.VoterRecord) error {
	if record == nil || record.VoterID == "" {
		return fmt.Errorf("voter record with id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.VoterID] = record.Clone()
	return nil
}

// Mutate runs fn on a private copy under the voter's exclusive lock and
// commits the copy atomically. The lock covers the whole read-modify-write;
// other voters are untouched.
func (s *InMemory) Mutate(_ context.Context, voterID string, fn func(*models.VoterRecord) error) (*models.VoterRecord, error) {
	lock := s.keyLock(voterID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	record, ok := s.records[voterID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	working := record.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now()

	s.mu.Lock()
	s.records[voterID] = working
	s.mu.Unlock()
	return working.Clone(), nil
}

func (s *InMemory) List(_ context.Context) ([]*models.VoterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.VoterRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VoterID < out[j].VoterID })
	return out, nil
}

func (s *InMemory) keyLock(voterID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[voterID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[voterID] = lock
	}
	return lock
}
