package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

const defaultSweepProbability = 0.01

type windowEntry struct {
	count   int
	resetAt time.Time
}

// MemoryConfig tunes a MemoryLimiter. Zero values select defaults.
type MemoryConfig struct {
	Clock            func() time.Time
	Random           func() float64
	SweepProbability float64
}

// MemoryLimiter keeps windows in a process-local map. Expired entries are
// dropped by a sweep that runs on a small fraction of calls.
type MemoryLimiter struct {
	mu               sync.Mutex
	entries          map[string]windowEntry
	clock            func() time.Time
	random           func() float64
	sweepProbability float64
}

func NewMemoryLimiter(cfg MemoryConfig) *MemoryLimiter {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	random := cfg.Random
	if random == nil {
		random = rand.Float64
	}
	probability := cfg.SweepProbability
	if probability <= 0 {
		probability = defaultSweepProbability
	}
	return &MemoryLimiter{
		entries:          make(map[string]windowEntry),
		clock:            clock,
		random:           random,
		sweepProbability: probability,
	}
}

// Check implements Limiter. Denied requests do not extend or grow the window.
func (l *MemoryLimiter) Check(ctx context.Context, identity string, policy Policy) (Result, error) {
	if err := checkArguments(identity, policy); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	now := l.clock()
	key := scopedKey(policy, identity)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.random() < l.sweepProbability {
		l.sweepLocked(now)
	}

	entry, found := l.entries[key]
	if !found || !now.Before(entry.resetAt) {
		entry = windowEntry{count: 1, resetAt: now.Add(policy.Window)}
		l.entries[key] = entry
		return Result{
			Allowed:   true,
			Limit:     policy.MaxRequests,
			Remaining: remainingAfter(entry.count, policy),
			ResetAt:   entry.resetAt,
		}, nil
	}

	if entry.count >= policy.MaxRequests {
		return Result{Allowed: false, Limit: policy.MaxRequests, Remaining: 0, ResetAt: entry.resetAt}, nil
	}

	entry.count++
	l.entries[key] = entry
	return Result{
		Allowed:   true,
		Limit:     policy.MaxRequests,
		Remaining: remainingAfter(entry.count, policy),
		ResetAt:   entry.resetAt,
	}, nil
}

// Len reports the number of tracked windows, expired ones included.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLimiter) sweepLocked(now time.Time) {
	for key, entry := range l.entries {
		if !now.Before(entry.resetAt) {
			delete(l.entries, key)
		}
	}
}
