package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"voterchain/internal/voter/models"
	"voterchain/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) newRecord(id string) *models.VoterRecord {
	now := time.Now()
	return &models.VoterRecord{
		VoterID:      id,
		FirstName:    "Asha",
		LastName:     "Rao",
		DateOfBirth:  "1990-01-15",
		Gender:       "F",
		AddressLine1: "12 MG Road",
		City:         "Pune",
		Pincode:      "411001",
		CurrentState: "STATE_A",
		Status:       models.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *MemoryStoreSuite) TestGetAndPut() {
	s.Run("unknown voter returns ErrNotFound", func() {
		_, err := s.store.Get(s.ctx, "nobody")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("round trips a record", func() {
		record := s.newRecord("v1")
		s.Require().NoError(s.store.Put(s.ctx, record))

		found, err := s.store.Get(s.ctx, "v1")
		s.Require().NoError(err)
		s.Equal("Asha", found.FirstName)
		s.Equal(models.StatusActive, found.Status)
	})

	s.Run("rejects record without id", func() {
		s.Require().Error(s.store.Put(s.ctx, &models.VoterRecord{}))
	})

	s.Run("returned record is a copy", func() {
		s.Require().NoError(s.store.Put(s.ctx, s.newRecord("v2")))
		found, err := s.store.Get(s.ctx, "v2")
		s.Require().NoError(err)
		found.AddressLine1 = "mutated by caller"

		again, err := s.store.Get(s.ctx, "v2")
		s.Require().NoError(err)
		s.Equal("12 MG Road", again.AddressLine1)
	})
}

func (s *MemoryStoreSuite) TestMutate() {
	s.Require().NoError(s.store.Put(s.ctx, s.newRecord("v1")))

	s.Run("applies the mutation and bumps updated_at", func() {
		before, err := s.store.Get(s.ctx, "v1")
		s.Require().NoError(err)

		updated, err := s.store.Mutate(s.ctx, "v1", func(r *models.VoterRecord) error {
			r.HasVoted = true
			r.Status = models.StatusVoted
			return nil
		})
		s.Require().NoError(err)
		s.True(updated.HasVoted)
		s.Equal(models.StatusVoted, updated.Status)
		s.False(updated.UpdatedAt.Before(before.UpdatedAt))
	})

	s.Run("fn error leaves the record untouched", func() {
		_, err := s.store.Mutate(s.ctx, "v1", func(r *models.VoterRecord) error {
			r.AddressLine1 = "should not persist"
			return errors.New("boom")
		})
		s.Require().Error(err)

		record, err := s.store.Get(s.ctx, "v1")
		s.Require().NoError(err)
		s.Equal("12 MG Road", record.AddressLine1)
	})

	s.Run("unknown voter returns ErrNotFound", func() {
		_, err := s.store.Mutate(s.ctx, "nobody", func(*models.VoterRecord) error { return nil })
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestMutateSerializesPerVoter drives concurrent read-modify-write cycles
// through Mutate; a lost update would show up as a short counter.
func (s *MemoryStoreSuite) TestMutateSerializesPerVoter() {
	record := s.newRecord("v1")
	record.Metadata = map[string]string{"count": "0"}
	s.Require().NoError(s.store.Put(s.ctx, record))

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Mutate(s.ctx, "v1", func(r *models.VoterRecord) error {
				r.LastBlockIndex++
				return nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	final, err := s.store.Get(s.ctx, "v1")
	s.Require().NoError(err)
	s.Equal(int64(workers), final.LastBlockIndex)
}

func (s *MemoryStoreSuite) TestListIsOrdered() {
	for _, id := range []string{"v3", "v1", "v2"} {
		s.Require().NoError(s.store.Put(s.ctx, s.newRecord(id)))
	}
	records, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	s.Equal("v1", records[0].VoterID)
	s.Equal("v3", records[2].VoterID)
}
