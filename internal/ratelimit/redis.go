package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "lantern:ratelimit"

var errMissingRedisClient = errors.New("ratelimit: redis client is required")

// RedisConfig wires a RedisLimiter.
type RedisConfig struct {
	Client    redis.Cmdable
	KeyPrefix string
	Clock     func() time.Time
}

// RedisLimiter shares windows between processes through INCR counters that
// expire with the window.
type RedisLimiter struct {
	client    redis.Cmdable
	keyPrefix string
	clock     func() time.Time
}

func NewRedisLimiter(cfg RedisConfig) (*RedisLimiter, error) {
	if cfg.Client == nil {
		return nil, errMissingRedisClient
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &RedisLimiter{client: cfg.Client, keyPrefix: prefix, clock: clock}, nil
}

// Check implements Limiter. Requests past the budget still increment the
// counter, which only matters for Remaining and stays floored at zero.
func (l *RedisLimiter) Check(ctx context.Context, identity string, policy Policy) (Result, error) {
	if err := checkArguments(identity, policy); err != nil {
		return Result{}, err
	}

	key := l.keyPrefix + ":" + scopedKey(policy, identity)

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	if _, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pttl = pipe.PTTL(ctx, key)
		return nil
	}); err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis increment: %w", err)
	}

	count := int(incr.Val())
	ttl := pttl.Val()
	// A fresh counter, or one whose expiry was lost, has no positive TTL.
	if ttl <= 0 {
		if err := l.client.PExpire(ctx, key, policy.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("ratelimit: redis expire: %w", err)
		}
		ttl = policy.Window
	}

	return Result{
		Allowed:   count <= policy.MaxRequests,
		Limit:     policy.MaxRequests,
		Remaining: remainingAfter(count, policy),
		ResetAt:   l.clock().Add(ttl),
	}, nil
}
