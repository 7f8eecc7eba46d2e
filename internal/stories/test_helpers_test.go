package stories

import (
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/lantern/internal/codes"
	"github.com/MarcoPoloResearchLab/lantern/internal/lookup"
)

const sampleNarrative = "It started during my second year and nobody around me wanted to hear about it at all."

type tickingClock struct {
	mu      sync.Mutex
	current time.Time
}

// Now advances one second per call so rows get distinct timestamps.
func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Second)
	return c.current
}

type serviceFixture struct {
	db       *gorm.DB
	service  *Service
	hasher   *codes.Hasher
	resolver *lookup.Resolver
	picks    []int
}

type fixtureOptions struct {
	autoApproveStories bool
	autoApproveNotes   bool
	chooser            func(n int) int
}

func openTestDatabase(testContext *testing.T) *gorm.DB {
	testContext.Helper()
	dsn := fmt.Sprintf("file:lantern_stories_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	testContext.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&Story{}, &LanternNote{}, &AuditEntry{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newServiceFixture(testContext *testing.T, options fixtureOptions) *serviceFixture {
	testContext.Helper()
	db := openTestDatabase(testContext)

	hasher, err := codes.NewHasher(codes.HashParams{MemoryKiB: 64, Iterations: 1, Parallelism: 1})
	if err != nil {
		testContext.Fatalf("failed to build hasher: %v", err)
	}
	resolver, err := lookup.NewResolver(lookup.Config{Source: NewCandidateStore(db), Hasher: hasher})
	if err != nil {
		testContext.Fatalf("failed to build resolver: %v", err)
	}

	fixture := &serviceFixture{db: db, hasher: hasher, resolver: resolver}
	chooser := options.chooser
	if chooser == nil {
		chooser = func(n int) int { return 0 }
	}
	clock := &tickingClock{current: time.Date(2026, time.October, 1, 9, 0, 0, 0, time.UTC)}

	service, err := NewService(ServiceConfig{
		Database:           db,
		Clock:              clock.Now,
		IDProvider:         NewUUIDProvider(),
		Hasher:             hasher,
		Resolver:           resolver,
		AutoApproveStories: options.autoApproveStories,
		AutoApproveNotes:   options.autoApproveNotes,
		Chooser: func(n int) int {
			fixture.picks = append(fixture.picks, n)
			return chooser(n)
		},
	})
	if err != nil {
		testContext.Fatalf("failed to build service: %v", err)
	}
	fixture.service = service
	return fixture
}

func (f *serviceFixture) insertStory(testContext *testing.T, story Story) Story {
	testContext.Helper()
	if story.StoryID == "" {
		id, err := NewUUIDProvider().NewID()
		if err != nil {
			testContext.Fatalf("failed to mint id: %v", err)
		}
		story.StoryID = id
	}
	if story.Narrative == "" {
		story.Narrative = sampleNarrative
	}
	if story.DeletionCodeHash == "" {
		story.DeletionCodeHash = "$argon2id$v=19$m=64,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5"
	}
	if story.Status == "" {
		story.Status = StatusApproved
	}
	if err := f.db.Select("*").Create(&story).Error; err != nil {
		testContext.Fatalf("failed to insert story: %v", err)
	}
	return story
}

func (f *serviceFixture) loadStory(testContext *testing.T, storyID string) Story {
	testContext.Helper()
	var story Story
	if err := f.db.Where("story_id = ?", storyID).Take(&story).Error; err != nil {
		testContext.Fatalf("failed to load story %s: %v", storyID, err)
	}
	return story
}

func (f *serviceFixture) notesFor(testContext *testing.T, storyID string) []LanternNote {
	testContext.Helper()
	var notes []LanternNote
	if err := f.db.Where("story_id = ?", storyID).Order("created_at_s ASC").Find(&notes).Error; err != nil {
		testContext.Fatalf("failed to load notes: %v", err)
	}
	return notes
}

func validSubmission() Submission {
	return Submission{
		Narrative:      sampleNarrative,
		Country:        "Somewhere",
		ContextTags:    []string{"school"},
		AllowAggregate: true,
	}
}
