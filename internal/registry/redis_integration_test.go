//go:build integration

package registry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"voterchain/internal/registry"
	"voterchain/pkg/platform/sentinel"
	"voterchain/pkg/testutil/containers"
)

type RedisRegistrySuite struct {
	suite.Suite
	redis    *containers.RedisContainer
	registry *registry.RedisRegistry
	ctx      context.Context
}

func TestRedisRegistrySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisRegistrySuite))
}

func (s *RedisRegistrySuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.registry = registry.NewRedis(s.redis.Client)
	s.ctx = context.Background()
}

func (s *RedisRegistrySuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisRegistrySuite) TestClaimReleaseRoundTrip() {
	s.Require().NoError(s.registry.ClaimRegistration(s.ctx, "v1", "STATE_A"))
	s.Require().ErrorIs(s.registry.ClaimRegistration(s.ctx, "v1", "STATE_B"), registry.ErrAlreadyRegistered)

	owner, err := s.registry.Owner(s.ctx, "v1")
	s.Require().NoError(err)
	s.Equal("STATE_A", owner)

	s.Require().ErrorIs(s.registry.ReleaseRegistration(s.ctx, "v1", "STATE_B"), registry.ErrNotOwner)
	s.Require().NoError(s.registry.ReleaseRegistration(s.ctx, "v1", "STATE_A"))

	_, err = s.registry.Owner(s.ctx, "v1")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisRegistrySuite) TestTransferLifecycle() {
	s.Require().NoError(s.registry.ClaimRegistration(s.ctx, "v1", "STATE_A"))

	s.Require().NoError(s.registry.TransferOwnership(s.ctx, "v1", "STATE_A", "STATE_B"))
	s.Require().ErrorIs(s.registry.TransferOwnership(s.ctx, "v1", "STATE_B", "STATE_A"), registry.ErrAlreadyTransferring)

	owner, err := s.registry.Owner(s.ctx, "v1")
	s.Require().NoError(err)
	s.Equal("STATE_B", owner)

	s.Require().NoError(s.registry.CompleteTransfer(s.ctx, "v1"))
	s.Require().NoError(s.registry.TransferOwnership(s.ctx, "v1", "STATE_B", "STATE_A"))
}

func (s *RedisRegistrySuite) TestAbortRestoresOwner() {
	s.Require().NoError(s.registry.ClaimRegistration(s.ctx, "v1", "STATE_A"))
	s.Require().NoError(s.registry.TransferOwnership(s.ctx, "v1", "STATE_A", "STATE_B"))
	s.Require().NoError(s.registry.AbortTransfer(s.ctx, "v1", "STATE_A", "STATE_B"))

	owner, err := s.registry.Owner(s.ctx, "v1")
	s.Require().NoError(err)
	s.Equal("STATE_A", owner)
}

func (s *RedisRegistrySuite) TestVoteLockBlocksRelease() {
	s.Require().NoError(s.registry.ClaimRegistration(s.ctx, "v1", "STATE_A"))
	s.Require().NoError(s.registry.LockVote(s.ctx, "v1"))
	s.Require().ErrorIs(s.registry.LockVote(s.ctx, "v1"), registry.ErrAlreadyVoted)
	s.Require().ErrorIs(s.registry.ReleaseRegistration(s.ctx, "v1", "STATE_A"), sentinel.ErrInvalidState)
}

// TestLockVoteLinearizable hammers one voter with concurrent lock attempts
// against the real server; the HSETNX script admits exactly one winner.
func (s *RedisRegistrySuite) TestLockVoteLinearizable() {
	s.Require().NoError(s.registry.ClaimRegistration(s.ctx, "v1", "STATE_A"))

	const attempts = 100
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.registry.LockVote(s.ctx, "v1")
		}()
	}
	wg.Wait()
	close(results)

	var ok, alreadyVoted int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case err == registry.ErrAlreadyVoted:
			alreadyVoted++
		default:
			s.FailNowf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, ok)
	s.Equal(attempts-1, alreadyVoted)
}
