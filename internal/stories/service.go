// Package stories owns the story and lantern note records and the flows that
// create, look up, tombstone and moderate them.
package stories

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/lantern/internal/codes"
	"github.com/MarcoPoloResearchLab/lantern/internal/lookup"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingHasher     = errors.New("code hasher is required")
	errMissingResolver   = errors.New("code resolver is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew     = "stories.service.new"
	opSubmit         = "stories.submit"
	opDelete         = "stories.delete"
	opInbox          = "stories.inbox"
	opPostNote       = "stories.post_note"
	opComments       = "stories.comments"
	opPublicStories  = "stories.public"
	opListStories    = "stories.admin_list_stories"
	opModerateStory  = "stories.moderate_story"
	opListNotes      = "stories.admin_list_notes"
	opModerateNote   = "stories.moderate_note"
	opApprovePending = "stories.approve_pending_notes"
)

const (
	defaultPoolCap     = 3
	defaultPoolWindow  = 10
	defaultPublicLimit = 50
	maxPublicLimit     = 200
	adminListLimit     = 500
)

// IDProvider issues record identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider issues time-ordered UUIDv7 identifiers, so ties on the
// seconds columns still sort in insertion order.
func NewUUIDProvider() IDProvider {
	return uuidProvider{}
}

func (uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// CodeGenerator mints plaintext codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// CodeHasher derives the stored digest of a code.
type CodeHasher interface {
	Hash(plaintext string) (string, error)
}

// CodeResolver maps a plaintext code to a story id.
type CodeResolver interface {
	Resolve(ctx context.Context, purpose lookup.Purpose, rawCode string) (string, error)
}

// Recorder receives pipeline counters. *metrics.Recorder satisfies it.
type Recorder interface {
	ObserveRedaction(categories []string)
	ObserveSubmission(status string)
	ObserveNoteRejection(reasons []string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveRedaction([]string)     {}
func (noopRecorder) ObserveSubmission(string)      {}
func (noopRecorder) ObserveNoteRejection([]string) {}

// PoolPolicy controls lantern note assignment for unaddressed notes.
type PoolPolicy struct {
	// MaxApprovedNotes excludes stories that already hold this many approved notes.
	MaxApprovedNotes int
	// CandidateWindow bounds how many lowest-count stories are considered.
	CandidateWindow int
}

type ServiceConfig struct {
	Database           *gorm.DB
	Clock              func() time.Time
	IDProvider         IDProvider
	Logger             *zap.Logger
	Generator          CodeGenerator
	Hasher             CodeHasher
	Resolver           CodeResolver
	Recorder           Recorder
	Pool               PoolPolicy
	AutoApproveStories bool
	AutoApproveNotes   bool
	// Chooser returns a uniform index in [0, n). Defaults to math/rand/v2.
	Chooser func(n int) int
}

type Service struct {
	db                 *gorm.DB
	clock              func() time.Time
	idProvider         IDProvider
	logger             *zap.Logger
	generator          CodeGenerator
	hasher             CodeHasher
	resolver           CodeResolver
	recorder           Recorder
	pool               PoolPolicy
	autoApproveStories bool
	autoApproveNotes   bool
	chooser            func(n int) int
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Hasher == nil {
		return nil, newServiceError(opServiceNew, "missing_hasher", errMissingHasher)
	}
	if cfg.Resolver == nil {
		return nil, newServiceError(opServiceNew, "missing_resolver", errMissingResolver)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	generator := cfg.Generator
	if generator == nil {
		generator = codes.NewGenerator(nil)
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	chooser := cfg.Chooser
	if chooser == nil {
		chooser = rand.IntN
	}
	pool := cfg.Pool
	if pool.MaxApprovedNotes <= 0 {
		pool.MaxApprovedNotes = defaultPoolCap
	}
	if pool.CandidateWindow <= 0 {
		pool.CandidateWindow = defaultPoolWindow
	}

	return &Service{
		db:                 cfg.Database,
		clock:              clock,
		idProvider:         cfg.IDProvider,
		logger:             logger,
		generator:          generator,
		hasher:             cfg.Hasher,
		resolver:           cfg.Resolver,
		recorder:           recorder,
		pool:               pool,
		autoApproveStories: cfg.AutoApproveStories,
		autoApproveNotes:   cfg.AutoApproveNotes,
		chooser:            chooser,
	}, nil
}

func (s *Service) now() int64 {
	return s.clock().UTC().Unix()
}

// resolveCode maps lookup failures onto ErrInvalidCode or a logged ServiceError.
func (s *Service) resolveCode(ctx context.Context, operation string, purpose lookup.Purpose, code string) (string, error) {
	storyID, err := s.resolver.Resolve(ctx, purpose, code)
	if err == nil {
		return storyID, nil
	}
	if errors.Is(err, ErrInvalidCode) {
		return "", ErrInvalidCode
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	s.logError(operation, "lookup_failed", err)
	return "", newServiceError(operation, "lookup_failed", err)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s == nil || s.logger == nil {
		return
	}
	allFields := make([]zap.Field, 0, len(fields)+3)
	allFields = append(allFields,
		zap.String("operation", operation),
		zap.String("reason", reason),
	)
	allFields = append(allFields, fields...)
	if err != nil {
		allFields = append(allFields, zap.Error(err))
	}
	s.logger.Error("stories service failure", allFields...)
}
