//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"voterchain/internal/platform/postgres"
	"voterchain/internal/voter/models"
	"voterchain/internal/voter/store"
	"voterchain/pkg/platform/sentinel"
	"voterchain/pkg/testutil/containers"
)

type PostgresVoterSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *store.Postgres
	ctx   context.Context
}

func TestPostgresVoterSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresVoterSuite))
}

func (s *PostgresVoterSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.Migrate(s.ctx, s.pg.DB))
	s.store = store.NewPostgres(s.pg.DB, "STATE_A")
}

func (s *PostgresVoterSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAll(s.ctx, "voters"))
}

func (s *PostgresVoterSuite) newRecord(id string) *models.VoterRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
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
		Metadata:     map[string]string{"source": "test"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *PostgresVoterSuite) TestRoundTrip() {
	record := s.newRecord("v1")
	s.Require().NoError(s.store.Put(s.ctx, record))

	found, err := s.store.Get(s.ctx, "v1")
	s.Require().NoError(err)
	s.Equal("Asha", found.FirstName)
	s.Equal(models.StatusActive, found.Status)
	s.Equal("test", found.Metadata["source"])
}

func (s *PostgresVoterSuite) TestGetUnknown() {
	_, err := s.store.Get(s.ctx, "nobody")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresVoterSuite) TestPutUpserts() {
	record := s.newRecord("v1")
	s.Require().NoError(s.store.Put(s.ctx, record))

	record.AddressLine1 = "7 Marine Drive"
	record.Status = models.StatusVoted
	s.Require().NoError(s.store.Put(s.ctx, record))

	found, err := s.store.Get(s.ctx, "v1")
	s.Require().NoError(err)
	s.Equal("7 Marine Drive", found.AddressLine1)
	s.Equal(models.StatusVoted, found.Status)
}

func (s *PostgresVoterSuite) TestMutate() {
	s.Require().NoError(s.store.Put(s.ctx, s.newRecord("v1")))

	updated, err := s.store.Mutate(s.ctx, "v1", func(r *models.VoterRecord) error {
		r.HasVoted = true
		r.Status = models.StatusVoted
		return nil
	})
	s.Require().NoError(err)
	s.True(updated.HasVoted)

	found, err := s.store.Get(s.ctx, "v1")
	s.Require().NoError(err)
	s.True(found.HasVoted)
	s.Equal(models.StatusVoted, found.Status)
}

func (s *PostgresVoterSuite) TestMutateUnknown() {
	_, err := s.store.Mutate(s.ctx, "nobody", func(*models.VoterRecord) error { return nil })
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

// TestMutateSerializes drives concurrent increments through the row lock; a
// lost update would leave the counter short.
func (s *PostgresVoterSuite) TestMutateSerializes() {
	s.Require().NoError(s.store.Put(s.ctx, s.newRecord("v1")))

	const workers = 20
	var wg sync.WaitGroup
	for range workers {
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

func (s *PostgresVoterSuite) TestListScopedToState() {
	other := store.NewPostgres(s.pg.DB, "STATE_B")

	s.Require().NoError(s.store.Put(s.ctx, s.newRecord("v1")))
	recordB := s.newRecord("v2")
	recordB.CurrentState = "STATE_B"
	s.Require().NoError(other.Put(s.ctx, recordB))

	records, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal("v1", records[0].VoterID)
}
