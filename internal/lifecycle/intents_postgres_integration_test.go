//go:build integration

package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"voterchain/internal/lifecycle"
	"voterchain/internal/platform/postgres"
	"voterchain/pkg/testutil/containers"
)

type PostgresIntentSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *lifecycle.PostgresIntentStore
	ctx   context.Context
}

func TestPostgresIntentSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresIntentSuite))
}

func (s *PostgresIntentSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.Migrate(s.ctx, s.pg.DB))
	s.store = lifecycle.NewPostgresIntentStore(s.pg.DB)
}

func (s *PostgresIntentSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAll(s.ctx, "transfer_intents"))
}

func (s *PostgresIntentSuite) intent(id string, created time.Time) lifecycle.TransferIntent {
	return lifecycle.TransferIntent{
		ID:              id,
		VoterID:         "voter-" + id,
		FromState:       "STATE_A",
		ToState:         "STATE_B",
		Stage:           lifecycle.StageOwnershipFlipped,
		NewAddressLine1: "7 Marine Drive",
		NewCity:         "Mumbai",
		NewPincode:      "400001",
		CreatedAt:       created,
	}
}

// TestRoundTrip proves an intent written before a crash comes back intact for
// the resume path, oldest first.
func (s *PostgresIntentSuite) TestRoundTrip() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.Save(s.ctx, s.intent("i2", now.Add(time.Second))))
	s.Require().NoError(s.store.Save(s.ctx, s.intent("i1", now)))

	intents, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(intents, 2)
	s.Equal("i1", intents[0].ID)
	s.Equal("i2", intents[1].ID)

	first := intents[0]
	s.Equal("voter-i1", first.VoterID)
	s.Equal("STATE_A", first.FromState)
	s.Equal("STATE_B", first.ToState)
	s.Equal(lifecycle.StageOwnershipFlipped, first.Stage)
	s.Equal("7 Marine Drive", first.NewAddressLine1)
	s.Equal("Mumbai", first.NewCity)
	s.Equal("400001", first.NewPincode)
}

func (s *PostgresIntentSuite) TestStageAdvances() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	intent := s.intent("i1", now)
	s.Require().NoError(s.store.Save(s.ctx, intent))

	intent.Stage = lifecycle.StageInAppended
	s.Require().NoError(s.store.Save(s.ctx, intent))

	intents, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(intents, 1)
	s.Equal(lifecycle.StageInAppended, intents[0].Stage)
}

func (s *PostgresIntentSuite) TestDelete() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.Save(s.ctx, s.intent("i1", now)))
	s.Require().NoError(s.store.Delete(s.ctx, "i1"))

	intents, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(intents)

	// Deleting an already-completed intent is a no-op.
	s.Require().NoError(s.store.Delete(s.ctx, "i1"))
}
