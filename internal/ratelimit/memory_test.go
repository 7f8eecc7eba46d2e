package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func neverSweep() float64 { return 1 }

func mustCheck(testContext *testing.T, limiter Limiter, identity string, policy Policy) Result {
	testContext.Helper()
	result, err := limiter.Check(context.Background(), identity, policy)
	if err != nil {
		testContext.Fatalf("check failed: %v", err)
	}
	return result
}

func TestMemoryLimiterDeniesFourthRequestInWindow(testContext *testing.T) {
	clock := newManualClock()
	limiter := NewMemoryLimiter(MemoryConfig{Clock: clock.Now, Random: neverSweep})
	policy := Policy{Name: "test", MaxRequests: 3, Window: 24 * time.Hour}
	windowEnd := clock.Now().Add(24 * time.Hour)

	for attempt, wantRemaining := range []int{2, 1, 0} {
		result := mustCheck(testContext, limiter, "client", policy)
		if !result.Allowed || result.Remaining != wantRemaining || result.Limit != 3 {
			testContext.Fatalf("attempt %d: unexpected result %+v", attempt+1, result)
		}
		if !result.ResetAt.Equal(windowEnd) {
			testContext.Fatalf("attempt %d: window must not slide, reset %s", attempt+1, result.ResetAt)
		}
		clock.Advance(time.Hour)
	}

	denied := mustCheck(testContext, limiter, "client", policy)
	if denied.Allowed || denied.Remaining != 0 || !denied.ResetAt.Equal(windowEnd) {
		testContext.Fatalf("expected denial until %s, got %+v", windowEnd, denied)
	}

	clock.Advance(21 * time.Hour)
	afterWindow := mustCheck(testContext, limiter, "client", policy)
	if !afterWindow.Allowed || afterWindow.Remaining != 2 || !afterWindow.ResetAt.Equal(clock.Now().Add(24*time.Hour)) {
		testContext.Fatalf("expected a fresh window, got %+v", afterWindow)
	}
}

func TestMemoryLimiterScopesIdentityByPolicy(testContext *testing.T) {
	limiter := NewMemoryLimiter(MemoryConfig{Random: neverSweep})
	deletes := Policy{Name: PolicyDeleteStory, MaxRequests: 1, Window: time.Minute}
	inbox := Policy{Name: PolicyInboxLookup, MaxRequests: 1, Window: time.Minute}

	if !mustCheck(testContext, limiter, "client", deletes).Allowed {
		testContext.Fatalf("first delete attempt must pass")
	}
	if mustCheck(testContext, limiter, "client", deletes).Allowed {
		testContext.Fatalf("second delete attempt must be denied")
	}
	if !mustCheck(testContext, limiter, "client", inbox).Allowed {
		testContext.Fatalf("inbox policy must have its own counter")
	}
	if !mustCheck(testContext, limiter, "someone-else", deletes).Allowed {
		testContext.Fatalf("other identities must have their own counter")
	}
}

func TestMemoryLimiterSweepsExpiredEntries(testContext *testing.T) {
	clock := newManualClock()
	sweep := false
	limiter := NewMemoryLimiter(MemoryConfig{
		Clock: clock.Now,
		Random: func() float64 {
			if sweep {
				return 0
			}
			return 1
		},
	})
	short := Policy{Name: "short", MaxRequests: 5, Window: time.Minute}
	long := Policy{Name: "long", MaxRequests: 5, Window: time.Hour}

	for _, identity := range []string{"a", "b", "c"} {
		mustCheck(testContext, limiter, identity, short)
	}
	mustCheck(testContext, limiter, "d", long)
	if limiter.Len() != 4 {
		testContext.Fatalf("expected 4 entries, got %d", limiter.Len())
	}

	clock.Advance(2 * time.Minute)
	sweep = true
	mustCheck(testContext, limiter, "e", long)

	if limiter.Len() != 2 {
		testContext.Fatalf("expected expired entries to be swept, got %d", limiter.Len())
	}
}

func TestMemoryLimiterRejectsInvalidArguments(testContext *testing.T) {
	limiter := NewMemoryLimiter(MemoryConfig{})
	ctx := context.Background()

	testCases := []struct {
		identity string
		policy   Policy
		want     error
	}{
		{identity: "", policy: Policy{Name: "p", MaxRequests: 1, Window: time.Second}, want: ErrMissingIdentity},
		{identity: "client", policy: Policy{Name: "p", MaxRequests: 0, Window: time.Second}, want: ErrInvalidPolicy},
		{identity: "client", policy: Policy{Name: "p", MaxRequests: 1}, want: ErrInvalidPolicy},
	}
	for _, testCase := range testCases {
		if _, err := limiter.Check(ctx, testCase.identity, testCase.policy); !errors.Is(err, testCase.want) {
			testContext.Fatalf("expected %v for %+v, got %v", testCase.want, testCase.policy, err)
		}
	}
}

func TestMemoryLimiterIsSafeForConcurrentUse(testContext *testing.T) {
	limiter := NewMemoryLimiter(MemoryConfig{})
	policy := Policy{Name: "burst", MaxRequests: 50, Window: time.Hour}
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for worker := 0; worker < 200; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := limiter.Check(ctx, "shared", policy)
			if err != nil || !result.Allowed {
				return
			}
			mu.Lock()
			allowed++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if allowed != 50 {
		testContext.Fatalf("expected exactly 50 admitted requests, got %d", allowed)
	}
}

func TestDefaultPoliciesAreValid(testContext *testing.T) {
	policies := DefaultPolicies()
	for name, policy := range policies {
		if policy.Name != name {
			testContext.Fatalf("policy %s carries name %s", name, policy.Name)
		}
		if err := policy.Validate(); err != nil {
			testContext.Fatalf("policy %s invalid: %v", name, err)
		}
	}
	submission := policies[PolicyStorySubmission]
	if submission.MaxRequests != 3 || submission.Window != 24*time.Hour {
		testContext.Fatalf("unexpected submission policy %+v", submission)
	}
	if policies[PolicyInboxLookup].MaxRequests != 5 || policies[PolicyDeleteStory].Window != 10*time.Minute {
		testContext.Fatalf("unexpected lookup policies %+v", policies)
	}
}
