// Package ratelimit throttles requests per client identity with fixed windows.
//
// A window opens on the first request for an identity, lasts Policy.Window and
// admits Policy.MaxRequests requests. Counters are scoped by policy name, so
// one client has independent budgets per endpoint class.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy names used by the HTTP layer.
const (
	PolicyStorySubmission = "story_submission"
	PolicyLanternNotes    = "lantern_notes"
	PolicyInboxLookup     = "inbox_lookup"
	PolicyDeleteStory     = "delete_story"
	PolicyAdminLogin      = "admin_login"
)

var (
	ErrInvalidPolicy   = errors.New("ratelimit: invalid policy")
	ErrMissingIdentity = errors.New("ratelimit: identity is required")
)

// Policy bounds MaxRequests per Window.
type Policy struct {
	Name        string
	MaxRequests int
	Window      time.Duration
}

// Validate reports whether the policy can be enforced.
func (p Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPolicy)
	}
	if p.MaxRequests < 1 {
		return fmt.Errorf("%w: %s max requests must be at least 1", ErrInvalidPolicy, p.Name)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: %s window must be positive", ErrInvalidPolicy, p.Name)
	}
	return nil
}

// Result describes the state of the caller's window after a check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts a request against identity under policy.
type Limiter interface {
	Check(ctx context.Context, identity string, policy Policy) (Result, error)
}

// DefaultPolicies returns the built-in budgets keyed by policy name.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		PolicyStorySubmission: {Name: PolicyStorySubmission, MaxRequests: 3, Window: 24 * time.Hour},
		PolicyLanternNotes:    {Name: PolicyLanternNotes, MaxRequests: 10, Window: 24 * time.Hour},
		PolicyInboxLookup:     {Name: PolicyInboxLookup, MaxRequests: 5, Window: 10 * time.Minute},
		PolicyDeleteStory:     {Name: PolicyDeleteStory, MaxRequests: 3, Window: 10 * time.Minute},
		PolicyAdminLogin:      {Name: PolicyAdminLogin, MaxRequests: 5, Window: 15 * time.Minute},
	}
}

func scopedKey(policy Policy, identity string) string {
	return policy.Name + ":" + identity
}

func checkArguments(identity string, policy Policy) error {
	if identity == "" {
		return ErrMissingIdentity
	}
	return policy.Validate()
}

func remainingAfter(count int, policy Policy) int {
	remaining := policy.MaxRequests - count
	if remaining < 0 {
		return 0
	}
	return remaining
}
