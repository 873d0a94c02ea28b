package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"voterchain/internal/ledger"
	ledgermodels "voterchain/internal/ledger/models"
	ledgerstore "voterchain/internal/ledger/store"
	"voterchain/internal/registry"
	"voterchain/internal/state"
	"voterchain/internal/voter/models"
	voterstore "voterchain/internal/voter/store"
	dErrors "voterchain/pkg/domain-errors"
	"voterchain/pkg/platform/sentinel"
)

type stubDetector struct {
	match bool
	err   error
}

func (d *stubDetector) CheckDuplicate(context.Context, IdentityProbe) (bool, error) {
	return d.match, d.err
}

type stubMatcher struct {
	match bool
	err   error
}

func (m *stubMatcher) Match(context.Context, string, string) (bool, error) {
	return m.match, m.err
}

// failingLedgerStore breaks appends after a set number of successes.
type failingLedgerStore struct {
	*ledgerstore.InMemory
	allow int
}

func (f *failingLedgerStore) AppendBlock(ctx context.Context, b ledgermodels.Block) error {
	if f.allow <= 0 {
		return errors.New("disk full")
	}
	f.allow--
	return f.InMemory.AppendBlock(ctx, b)
}

type fixture struct {
	service  *Service
	cluster  *state.Cluster
	registry *registry.InMemory
	dedup    *stubDetector
	matcher  *stubMatcher
	stores   map[string]*voterstore.InMemory
}

func newFixture(t *testing.T, states ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	backends := make([]*state.Backend, 0, len(states))
	stores := make(map[string]*voterstore.InMemory, len(states))
	for _, name := range states {
		chain, err := ledger.New(ctx, name, ledgerstore.NewInMemory())
		require.NoError(t, err)
		voters := voterstore.NewInMemory()
		stores[name] = voters
		backends = append(backends, &state.Backend{Name: name, Ledger: chain, Voters: voters})
	}

	f := &fixture{
		cluster:  state.NewCluster(backends...),
		registry: registry.NewInMemory(),
		dedup:    &stubDetector{},
		matcher:  &stubMatcher{match: true},
		stores:   stores,
	}
	f.service = New(f.cluster, f.registry, f.dedup, f.matcher)
	return f
}

func registerInput(stateName string) RegisterInput {
	return RegisterInput{
		FirstName:    "Asha",
		LastName:     "Rao",
		DateOfBirth:  "1990-01-15",
		Gender:       "F",
		AddressLine1: "12 MG Road",
		City:         "Pune",
		Pincode:      "411001",
		PhotoRef:     "photo-v1",
		State:        stateName,
	}
}

type RegisterSuite struct {
	suite.Suite
	f   *fixture
	ctx context.Context
}

func TestRegisterSuite(t *testing.T) {
	suite.Run(t, new(RegisterSuite))
}

func (s *RegisterSuite) SetupTest() {
	s.f = newFixture(s.T(), "STATE_A", "STATE_B")
	s.ctx = context.Background()
}

func (s *RegisterSuite) TestHappyPath() {
	result, err := s.f.service.Register(s.ctx, registerInput("STATE_A"))
	s.Require().NoError(err)
	s.NotEmpty(result.VoterID)
	s.Equal(models.StatusActive, result.Status)
	s.Len(result.TransactionID, 64)

	record, err := s.f.stores["STATE_A"].Get(s.ctx, result.VoterID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, record.Status)
	s.Equal(int64(0), record.LastBlockIndex)
	s.False(record.HasVoted)

	owner, err := s.f.registry.Owner(s.ctx, result.VoterID)
	s.Require().NoError(err)
	s.Equal("STATE_A", owner)

	backend, err := s.f.cluster.Backend("STATE_A")
	s.Require().NoError(err)
	block, err := backend.Ledger.LatestBlockFor(s.ctx, result.VoterID)
	s.Require().NoError(err)
	s.Equal(ledgermodels.EventRegistration, block.EventType)
	s.Equal(result.TransactionID, block.Hash)
	s.Equal(ledgermodels.ComputePayloadDigest(record.Snapshot()), block.PayloadDigest)
}

func (s *RegisterSuite) TestValidation() {
	in := registerInput("STATE_A")
	in.FirstName = ""
	_, err := s.f.service.Register(s.ctx, in)
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}

func (s *RegisterSuite) TestUnknownState() {
	_, err := s.f.service.Register(s.ctx, registerInput("STATE_Z"))
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *RegisterSuite) TestDuplicateIdentityRejected() {
	s.f.dedup.match = true
	_, err := s.f.service.Register(s.ctx, registerInput("STATE_A"))
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeConflict))
}

func (s *RegisterSuite) TestDetectorFailureSurfacesAsServiceFailed() {
	s.f.dedup.err = errors.New("connection refused")
	_, err := s.f.service.Register(s.ctx, registerInput("STATE_A"))
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeServiceFailed))
}

// TestAppendFailureReleasesClaim wires a ledger store that refuses every
// append; registration must fail without leaving a stray registry claim or
// voter record behind.
func (s *RegisterSuite) TestAppendFailureReleasesClaim() {
	broken, err := ledger.New(s.ctx, "STATE_C", &failingLedgerStore{InMemory: ledgerstore.NewInMemory()})
	s.Require().NoError(err)
	voters := voterstore.NewInMemory()
	cluster := state.NewCluster(&state.Backend{Name: "STATE_C", Ledger: broken, Voters: voters})
	svc := New(cluster, s.f.registry, s.f.dedup, s.f.matcher)

	_, err = svc.Register(s.ctx, registerInput("STATE_C"))
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeInternal))

	records, err := voters.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(records)
}

type VoteSuite struct {
	suite.Suite
	f       *fixture
	ctx     context.Context
	voterID string
}

func TestVoteSuite(t *testing.T) {
	suite.Run(t, new(VoteSuite))
}

func (s *VoteSuite) SetupTest() {
	s.f = newFixture(s.T(), "STATE_A", "STATE_B")
	s.ctx = context.Background()

	result, err := s.f.service.Register(s.ctx, registerInput("STATE_A"))
	s.Require().NoError(err)
	s.voterID = result.VoterID
}

func (s *VoteSuite) vote(stateName string) (VoteResult, error) {
	return s.f.service.Vote(s.ctx, VoteInput{
		VoterID:      s.voterID,
		State:        stateName,
		BoothID:      "booth-7",
		LivePhotoRef: "live-capture",
	})
}

func (s *VoteSuite) TestHappyPath() {
	result, err := s.vote("STATE_A")
	s.Require().NoError(err)
	s.Len(result.TransactionID, 64)

	record, err := s.f.stores["STATE_A"].Get(s.ctx, s.voterID)
	s.Require().NoError(err)
	s.True(record.HasVoted)
	s.Equal(models.StatusVoted, record.Status)
	s.Equal(int64(1), record.LastBlockIndex)

	backend, err := s.f.cluster.Backend("STATE_A")
	s.Require().NoError(err)
	block, err := backend.Ledger.LatestBlockFor(s.ctx, s.voterID)
	s.Require().NoError(err)
	s.Equal(ledgermodels.EventVoteCast, block.EventType)
	s.Equal(ledgermodels.ComputePayloadDigest(record.Snapshot()), block.PayloadDigest)
}

func (s *VoteSuite) TestDoubleVoteRejected() {
	_, err := s.vote("STATE_A")
	s.Require().NoError(err)

	_, err = s.vote("STATE_A")
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeConflict))
}

func (s *VoteSuite) TestWrongStateRejected() {
	_, err := s.vote("STATE_B")
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeConflict), "registry resolves the voter to STATE_A")
	s.Contains(err.Error(), "not registered in this state")
}

// TestVotedElsewhereRejected drives the nationwide single-vote rule across
// state lines: a vote consumed in one state must surface as already-voted at
// every other state's booth, and the other state's chain must stay untouched.
func (s *VoteSuite) TestVotedElsewhereRejected() {
	_, err := s.vote("STATE_A")
	s.Require().NoError(err)

	_, err = s.vote("STATE_B")
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeConflict))
	s.Contains(err.Error(), "already voted")

	backend, err := s.f.cluster.Backend("STATE_B")
	s.Require().NoError(err)
	_, err = backend.Ledger.LatestBlockFor(s.ctx, s.voterID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *VoteSuite) TestBiometricMismatchRejected() {
	s.f.matcher.match = false
	_, err := s.vote("STATE_A")
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))

	// No lock was consumed; a corrected attempt still goes through.
	s.f.matcher.match = true
	_, err = s.vote("STATE_A")
	s.Require().NoError(err)
}

func (s *VoteSuite) TestMatcherFailureSurfacesAsServiceFailed() {
	s.f.matcher.err = errors.New("timeout")
	_, err := s.vote("STATE_A")
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeServiceFailed))
}

func (s *VoteSuite) TestUnknownVoter() {
	_, err := s.f.service.Vote(s.ctx, VoteInput{VoterID: "ghost", State: "STATE_A", LivePhotoRef: "x"})
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *VoteSuite) TestEligibility() {
	s.Run("eligible after registration", func() {
		result, err := s.f.service.Eligibility(s.ctx, s.voterID)
		s.Require().NoError(err)
		s.True(result.Eligible)
		s.Empty(result.Reason)
	})

	s.Run("unknown voter is reported, not errored", func() {
		result, err := s.f.service.Eligibility(s.ctx, "ghost")
		s.Require().NoError(err)
		s.False(result.Eligible)
		s.Equal("voter not registered", result.Reason)
	})

	s.Run("ineligible after voting", func() {
		_, err := s.vote("STATE_A")
		s.Require().NoError(err)

		result, err := s.f.service.Eligibility(s.ctx, s.voterID)
		s.Require().NoError(err)
		s.False(result.Eligible)
		s.Equal("voter has already voted", result.Reason)
	})
}

func (s *VoteSuite) TestStatus() {
	record, err := s.f.service.Status(s.ctx, s.voterID)
	s.Require().NoError(err)
	s.Equal("Asha", record.FirstName)
	s.Equal("STATE_A", record.CurrentState)

	_, err = s.f.service.Status(s.ctx, "ghost")
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

// TestVoteLockIsNotReleasedOnLaterFailure drives the fail-closed rule: once
// the nationwide lock is taken, a storage failure must not reopen the vote.
func TestVoteLockIsNotReleasedOnLaterFailure(t *testing.T) {
	ctx := context.Background()
	broken := &failingLedgerStore{InMemory: ledgerstore.NewInMemory(), allow: 1}
	chain, err := ledger.New(ctx, "STATE_A", broken)
	require.NoError(t, err)
	voters := voterstore.NewInMemory()
	cluster := state.NewCluster(&state.Backend{Name: "STATE_A", Ledger: chain, Voters: voters})
	reg := registry.NewInMemory()
	svc := New(cluster, reg, &stubDetector{}, &stubMatcher{match: true})

	result, err := svc.Register(ctx, registerInput("STATE_A"))
	require.NoError(t, err)

	// The registration block consumed the one allowed append, so the vote
	// block fails after LockVote succeeded.
	_, err = svc.Vote(ctx, VoteInput{VoterID: result.VoterID, State: "STATE_A", LivePhotoRef: "x"})
	require.Error(t, err)
	require.True(t, dErrors.Is(err, dErrors.CodeInternal))

	// Lock stays consumed.
	require.ErrorIs(t, reg.LockVote(ctx, result.VoterID), registry.ErrAlreadyVoted)
}
