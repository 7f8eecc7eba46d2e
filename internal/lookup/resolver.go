// Package lookup resolves a plaintext code to the story holding its digest.
//
// Digests are salted and one-way, so there is no index to consult: every
// eligible candidate is verified in a stable order until one matches. Every
// failure branch collapses into ErrInvalidCode so callers cannot tell a wrong
// code from one that was never issued or whose story is gone.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lantern/internal/codes"
)

// Purpose selects which digest a code is checked against.
type Purpose string

const (
	PurposeDeletion Purpose = "deletion"
	PurposeInbox    Purpose = "inbox"
)

const (
	outcomeMatch     = "match"
	outcomeNoMatch   = "no_match"
	outcomeMalformed = "malformed"
	outcomeError     = "error"
	outcomeCanceled  = "canceled"
	// outcomeTruncated is a miss where the candidate bound kept newer stories
	// out of the scan, so the code may have been valid.
	outcomeTruncated = "no_match_truncated"
)

var (
	// ErrInvalidCode is the only error a caller should surface for a failed lookup.
	ErrInvalidCode = errors.New("lookup: invalid code")
	// ErrSourceUnavailable wraps candidate storage failures.
	ErrSourceUnavailable = errors.New("lookup: candidate source unavailable")

	errMissingSource = errors.New("lookup: candidate source is required")
	errMissingHasher = errors.New("lookup: hasher is required")

	tracer = otel.Tracer("lantern.internal.lookup")
)

// Candidate pairs a story with the digest stored for one purpose.
type Candidate struct {
	StoryID string
	Digest  string
}

// CandidateSource lists non-deleted stories holding a digest for purpose in a
// stable order. limit <= 0 means no bound.
type CandidateSource interface {
	Candidates(ctx context.Context, purpose Purpose, limit int) ([]Candidate, error)
}

// Hasher mints the decoy digest and verifies candidates.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(digest, candidate string) bool
}

// Throttle bounds how many scans run per second across all clients.
// *rate.Limiter satisfies it.
type Throttle interface {
	Wait(ctx context.Context) error
}

// Observer receives one call per resolution.
type Observer interface {
	ObserveLookup(purpose, outcome string, candidates int, elapsed time.Duration)
}

type Config struct {
	Source   CandidateSource
	Hasher   Hasher
	Throttle Throttle
	Observer Observer
	Logger   *zap.Logger
	Clock    func() time.Time
	// MaxCandidates caps the scan per request; zero disables the cap. The scan
	// walks stories oldest first, so once more than MaxCandidates stories hold
	// a digest the newest ones can no longer be deleted or read. Such misses
	// are reported as "no_match_truncated" and logged at warn level.
	MaxCandidates int
}

type Resolver struct {
	source        CandidateSource
	hasher        Hasher
	throttle      Throttle
	observer      Observer
	logger        *zap.Logger
	clock         func() time.Time
	maxCandidates int
	decoyDigest   string
}

// NewResolver hashes a throwaway code so that malformed input and empty
// candidate sets still pay for one verification.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	if cfg.Hasher == nil {
		return nil, errMissingHasher
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	decoyCode, err := codes.NewGenerator(nil).Generate()
	if err != nil {
		return nil, fmt.Errorf("lookup: decoy code: %w", err)
	}
	decoyDigest, err := cfg.Hasher.Hash(decoyCode)
	if err != nil {
		return nil, fmt.Errorf("lookup: decoy digest: %w", err)
	}

	maxCandidates := cfg.MaxCandidates
	if maxCandidates < 0 {
		maxCandidates = 0
	}

	return &Resolver{
		source:        cfg.Source,
		hasher:        cfg.Hasher,
		throttle:      cfg.Throttle,
		observer:      cfg.Observer,
		logger:        logger,
		clock:         clock,
		maxCandidates: maxCandidates,
		decoyDigest:   decoyDigest,
	}, nil
}

// Resolve returns the id of the story whose digest for purpose matches rawCode.
func (r *Resolver) Resolve(ctx context.Context, purpose Purpose, rawCode string) (string, error) {
	ctx, span := tracer.Start(ctx, "lookup.resolve", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(attribute.String("lookup.purpose", string(purpose)))

	startedAt := r.clock()
	candidateCount := 0
	finish := func(outcome string) {
		elapsed := r.clock().Sub(startedAt)
		span.SetAttributes(
			attribute.String("lookup.outcome", outcome),
			attribute.Int("lookup.candidates", candidateCount),
		)
		if r.observer != nil {
			r.observer.ObserveLookup(string(purpose), outcome, candidateCount, elapsed)
		}
		r.logger.Debug("code lookup finished",
			zap.String("purpose", string(purpose)),
			zap.String("outcome", outcome),
			zap.Int("candidates", candidateCount),
			zap.Duration("elapsed", elapsed))
	}

	if r.throttle != nil {
		if err := r.throttle.Wait(ctx); err != nil {
			span.RecordError(err)
			finish(outcomeCanceled)
			return "", fmt.Errorf("lookup: throttle: %w", err)
		}
	}

	code, ok := codes.Normalize(rawCode)
	if !ok {
		r.hasher.Verify(r.decoyDigest, rawCode)
		finish(outcomeMalformed)
		return "", ErrInvalidCode
	}

	fetchLimit := 0
	if r.maxCandidates > 0 {
		fetchLimit = r.maxCandidates + 1
	}
	candidates, err := r.source.Candidates(ctx, purpose, fetchLimit)
	if err != nil {
		span.RecordError(err)
		finish(outcomeError)
		return "", fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	truncated := r.maxCandidates > 0 && len(candidates) > r.maxCandidates
	if truncated {
		candidates = candidates[:r.maxCandidates]
		span.SetAttributes(attribute.Bool("lookup.truncated", true))
		r.logger.Warn("lookup candidate bound reached; newer stories are not scanned",
			zap.String("purpose", string(purpose)),
			zap.Int("max_candidates", r.maxCandidates))
	}
	candidateCount = len(candidates)

	if len(candidates) == 0 {
		r.hasher.Verify(r.decoyDigest, code)
		finish(outcomeNoMatch)
		return "", ErrInvalidCode
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			finish(outcomeCanceled)
			return "", err
		}
		if r.hasher.Verify(candidate.Digest, code) {
			finish(outcomeMatch)
			return candidate.StoryID, nil
		}
	}

	if truncated {
		finish(outcomeTruncated)
	} else {
		finish(outcomeNoMatch)
	}
	return "", ErrInvalidCode
}
