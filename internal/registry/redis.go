package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"voterchain/pkg/platform/sentinel"
)

// Redis key prefix for registry entries. One hash per voter:
// owner, vote_locked, transfer_from, transfer_to.
const voterKeyPrefix = "vcr:voter:"

// Script result codes shared by all registry scripts.
const (
	resultOK           = 1
	resultDenied       = 0
	resultNotFound     = -1
	resultInvalidState = -2
)

var (
	claimScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then return 0 end
redis.call("HSET", KEYS[1], "owner", ARGV[1])
return 1`)

	releaseScript = redis.NewScript(`
local owner = redis.call("HGET", KEYS[1], "owner")
if not owner then return -1 end
if owner ~= ARGV[1] then return 0 end
if redis.call("HGET", KEYS[1], "vote_locked") == "1" then return -2 end
redis.call("DEL", KEYS[1])
return 1`)

	transferScript = redis.NewScript(`
local owner = redis.call("HGET", KEYS[1], "owner")
if not owner then return -1 end
if owner ~= ARGV[1] then return 0 end
if redis.call("HEXISTS", KEYS[1], "transfer_to") == 1 then return -2 end
redis.call("HSET", KEYS[1], "owner", ARGV[2], "transfer_from", ARGV[1], "transfer_to", ARGV[2])
return 1`)

	completeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return -1 end
redis.call("HDEL", KEYS[1], "transfer_from", "transfer_to")
return 1`)

	abortScript = redis.NewScript(`
local owner = redis.call("HGET", KEYS[1], "owner")
if not owner then return -1 end
local tfrom = redis.call("HGET", KEYS[1], "transfer_from")
local tto = redis.call("HGET", KEYS[1], "transfer_to")
if owner ~= ARGV[2] or tfrom ~= ARGV[1] or tto ~= ARGV[2] then return -2 end
redis.call("HSET", KEYS[1], "owner", ARGV[1])
redis.call("HDEL", KEYS[1], "transfer_from", "transfer_to")
return 1`)

	lockVoteScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return -1 end
if redis.call("HSETNX", KEYS[1], "vote_locked", "1") == 1 then return 1 end
return 0`)
)

// RedisRegistry is the deployment story for physically distributed state
// backends: every check-and-set runs as a single Lua script on one Redis
// instance, which is what makes the operations linearizable across
// processes.
type RedisRegistry struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func voterKey(voterID string) string { return voterKeyPrefix + voterID }

func (r *RedisRegistry) run(ctx context.Context, script *redis.Script, voterID string, denied error, args ...any) error {
	result, err := script.Run(ctx, r.client, []string{voterKey(voterID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("%w: registry script: %v", sentinel.ErrUnavailable, err)
	}
	switch result {
	case resultOK:
		return nil
	case resultDenied:
		return denied
	case resultNotFound:
		return sentinel.ErrNotFound
	case resultInvalidState:
		return sentinel.ErrInvalidState
	default:
		return fmt.Errorf("unexpected registry script result %d", result)
	}
}

func (r *RedisRegistry) ClaimRegistration(ctx context.Context, voterID, state string) error {
	return r.run(ctx, claimScript, voterID, ErrAlreadyRegistered, state)
}

func (r *RedisRegistry) ReleaseRegistration(ctx context.Context, voterID, state string) error {
	return r.run(ctx, releaseScript, voterID, ErrNotOwner, state)
}

func (r *RedisRegistry) TransferOwnership(ctx context.Context, voterID, from, to string) error {
	err := r.run(ctx, transferScript, voterID, ErrNotOwner, from, to)
	if errors.Is(err, sentinel.ErrInvalidState) {
		return ErrAlreadyTransferring
	}
	return err
}

func (r *RedisRegistry) CompleteTransfer(ctx context.Context, voterID string) error {
	return r.run(ctx, completeScript, voterID, nil)
}

func (r *RedisRegistry) AbortTransfer(ctx context.Context, voterID, from, to string) error {
	return r.run(ctx, abortScript, voterID, nil, from, to)
}

func (r *RedisRegistry) LockVote(ctx context.Context, voterID string) error {
	return r.run(ctx, lockVoteScript, voterID, ErrAlreadyVoted)
}

func (r *RedisRegistry) Owner(ctx context.Context, voterID string) (string, error) {
	owner, err := r.client.HGet(ctx, voterKey(voterID), "owner").Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: registry owner lookup: %v", sentinel.ErrUnavailable, err)
	}
	return owner, nil
}
