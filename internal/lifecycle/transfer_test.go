package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	ledgermodels "voterchain/internal/ledger/models"
	"voterchain/internal/voter/models"
	dErrors "voterchain/pkg/domain-errors"
)

// failingIntentStore refuses the first save so the pre-intent rollback path
// can be exercised.
type failingIntentStore struct {
	*MemoryIntentStore
	failures int
}

func (f *failingIntentStore) Save(ctx context.Context, intent TransferIntent) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("intent store down")
	}
	return f.MemoryIntentStore.Save(ctx, intent)
}

type TransferSuite struct {
	suite.Suite
	f       *fixture
	ctx     context.Context
	voterID string
}

func TestTransferSuite(t *testing.T) {
	suite.Run(t, new(TransferSuite))
}

func (s *TransferSuite) SetupTest() {
	s.f = newFixture(s.T(), "STATE_A", "STATE_B")
	s.ctx = context.Background()

	result, err := s.f.service.Register(s.ctx, registerInput("STATE_A"))
	s.Require().NoError(err)
	s.voterID = result.VoterID
}

func (s *TransferSuite) transferInput() TransferInput {
	return TransferInput{
		VoterID:      s.voterID,
		FromState:    "STATE_A",
		ToState:      "STATE_B",
		AddressLine1: "7 Marine Drive",
		City:         "Mumbai",
		Pincode:      "400001",
	}
}

func (s *TransferSuite) TestHappyPath() {
	result, err := s.f.service.Transfer(s.ctx, s.transferInput())
	s.Require().NoError(err)
	s.Len(result.TransactionID, 64)

	s.Run("source record goes dark", func() {
		record, err := s.f.stores["STATE_A"].Get(s.ctx, s.voterID)
		s.Require().NoError(err)
		s.Equal(models.StatusTransferred, record.Status)
		s.Equal("12 MG Road", record.AddressLine1)
	})

	s.Run("destination record is live with the new address", func() {
		record, err := s.f.stores["STATE_B"].Get(s.ctx, s.voterID)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, record.Status)
		s.Equal("7 Marine Drive", record.AddressLine1)
		s.Equal("Mumbai", record.City)
		s.Equal("STATE_B", record.CurrentState)
	})

	s.Run("registry points at the destination", func() {
		owner, err := s.f.registry.Owner(s.ctx, s.voterID)
		s.Require().NoError(err)
		s.Equal("STATE_B", owner)
	})

	s.Run("both chains carry the transfer and stay valid", func() {
		source, err := s.f.cluster.Backend("STATE_A")
		s.Require().NoError(err)
		dest, err := s.f.cluster.Backend("STATE_B")
		s.Require().NoError(err)

		outBlock, err := source.Ledger.LatestBlockFor(s.ctx, s.voterID)
		s.Require().NoError(err)
		s.Equal(ledgermodels.EventTransferOut, outBlock.EventType)

		inBlock, err := dest.Ledger.LatestBlockFor(s.ctx, s.voterID)
		s.Require().NoError(err)
		s.Equal(ledgermodels.EventTransferIn, inBlock.EventType)
		s.Equal(result.TransactionID, inBlock.Hash)
		s.Equal(outBlock.PayloadDigest, inBlock.PayloadDigest)

		faults, err := source.Ledger.VerifyChain(s.ctx)
		s.Require().NoError(err)
		s.Empty(faults)
		faults, err = dest.Ledger.VerifyChain(s.ctx)
		s.Require().NoError(err)
		s.Empty(faults)
	})

	s.Run("intent is consumed", func() {
		intents, err := s.f.service.intents.List(s.ctx)
		s.Require().NoError(err)
		s.Empty(intents)
	})
}

func (s *TransferSuite) TestVoteFollowsTheVoter() {
	_, err := s.f.service.Transfer(s.ctx, s.transferInput())
	s.Require().NoError(err)

	s.Run("vote in the old state is rejected", func() {
		_, err := s.f.service.Vote(s.ctx, VoteInput{VoterID: s.voterID, State: "STATE_A", LivePhotoRef: "x"})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeConflict))
	})

	s.Run("vote in the new state succeeds exactly once", func() {
		_, err := s.f.service.Vote(s.ctx, VoteInput{VoterID: s.voterID, State: "STATE_B", LivePhotoRef: "x"})
		s.Require().NoError(err)

		_, err = s.f.service.Vote(s.ctx, VoteInput{VoterID: s.voterID, State: "STATE_B", LivePhotoRef: "x"})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeConflict))
	})
}

func (s *TransferSuite) TestVotedVoterCannotTransfer() {
	_, err := s.f.service.Vote(s.ctx, VoteInput{VoterID: s.voterID, State: "STATE_A", LivePhotoRef: "x"})
	s.Require().NoError(err)

	_, err = s.f.service.Transfer(s.ctx, s.transferInput())
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeConflict))
}

func (s *TransferSuite) TestValidation() {
	in := s.transferInput()
	in.ToState = in.FromState
	_, err := s.f.service.Transfer(s.ctx, in)
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}

func (s *TransferSuite) TestUnknownVoter() {
	in := s.transferInput()
	in.VoterID = uuid.NewString()
	_, err := s.f.service.Transfer(s.ctx, in)
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

// TestIntentWriteFailureRollsBackOwnership covers the window between the
// ownership flip and the durable intent: with no marker to resume from, the
// flip must be undone so the voter is not stranded.
func (s *TransferSuite) TestIntentWriteFailureRollsBackOwnership() {
	s.f.service.intents = &failingIntentStore{MemoryIntentStore: NewMemoryIntentStore(), failures: 1}

	_, err := s.f.service.Transfer(s.ctx, s.transferInput())
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeInternal))

	owner, err := s.f.registry.Owner(s.ctx, s.voterID)
	s.Require().NoError(err)
	s.Equal("STATE_A", owner)

	// The rollback leaves the voter fully transferable.
	_, err = s.f.service.Transfer(s.ctx, s.transferInput())
	s.Require().NoError(err)
}

// TestResumeTransfers simulates a crash right after the commit point: the
// ownership is flipped and the intent saved, but no block was appended yet.
// Startup replay must finish the handoff.
func (s *TransferSuite) TestResumeTransfers() {
	s.Require().NoError(s.f.registry.TransferOwnership(s.ctx, s.voterID, "STATE_A", "STATE_B"))
	intent := TransferIntent{
		ID:              uuid.NewString(),
		VoterID:         s.voterID,
		FromState:       "STATE_A",
		ToState:         "STATE_B",
		Stage:           StageOwnershipFlipped,
		NewAddressLine1: "7 Marine Drive",
		NewCity:         "Mumbai",
		NewPincode:      "400001",
		CreatedAt:       time.Now(),
	}
	s.Require().NoError(s.f.service.intents.Save(s.ctx, intent))

	s.Require().NoError(s.f.service.ResumeTransfers(s.ctx))

	record, err := s.f.stores["STATE_B"].Get(s.ctx, s.voterID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, record.Status)
	s.Equal("7 Marine Drive", record.AddressLine1)

	source, err := s.f.stores["STATE_A"].Get(s.ctx, s.voterID)
	s.Require().NoError(err)
	s.Equal(models.StatusTransferred, source.Status)

	intents, err := s.f.service.intents.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(intents)

	// The completed marker is gone, so a later transfer back works.
	_, err = s.f.service.Transfer(s.ctx, TransferInput{
		VoterID:      s.voterID,
		FromState:    "STATE_B",
		ToState:      "STATE_A",
		AddressLine1: "12 MG Road",
		City:         "Pune",
		Pincode:      "411001",
	})
	s.Require().NoError(err)
}
