package stories

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lantern/internal/comfort"
	"github.com/MarcoPoloResearchLab/lantern/internal/redaction"
)

const (
	MinNarrativeLength = 50
	MaxNarrativeLength = 10000

	maxCountryLength  = 100
	maxAreaTypeLength = 50
	maxAgeRangeLength = 20
	maxTagsPerField   = 10
	maxTagLength      = 64
)

// Submission is a story as entered by its contributor, with consent defaults
// already applied.
type Submission struct {
	Narrative         string
	Country           string
	AreaType          string
	AgeRange          string
	IdentityTags      []string
	ContextTags       []string
	PowerTags         []string
	ImpactTags        []string
	RiskFlags         []string
	AllowAggregate    bool
	AllowExcerpt      bool
	AllowPublicStory  bool
	AllowLanternNotes bool
}

// Receipt is returned exactly once. The plaintext codes exist nowhere else.
type Receipt struct {
	DeletionCode string          `json:"deletion_code"`
	InboxCode    string          `json:"inbox_code,omitempty"`
	Warnings     []string        `json:"warnings"`
	Status       StoryStatus     `json:"status"`
	Comfort      comfort.Message `json:"comfort_message"`
}

// ValidateSubmission checks bounds without touching storage.
func ValidateSubmission(submission Submission) error {
	var problems []string

	narrativeLength := utf8.RuneCountInString(strings.TrimSpace(submission.Narrative))
	if narrativeLength < MinNarrativeLength || narrativeLength > MaxNarrativeLength {
		problems = append(problems, fmt.Sprintf("narrative must be between %d and %d characters", MinNarrativeLength, MaxNarrativeLength))
	}
	problems = appendLengthProblem(problems, "country", submission.Country, maxCountryLength)
	problems = appendLengthProblem(problems, "area_type", submission.AreaType, maxAreaTypeLength)
	problems = appendLengthProblem(problems, "age_range", submission.AgeRange, maxAgeRangeLength)

	for _, field := range []struct {
		name string
		tags []string
	}{
		{name: "identity_tags", tags: submission.IdentityTags},
		{name: "context_tags", tags: submission.ContextTags},
		{name: "power_tags", tags: submission.PowerTags},
		{name: "impact_tags", tags: submission.ImpactTags},
		{name: "risk_flags", tags: submission.RiskFlags},
	} {
		if len(field.tags) > maxTagsPerField {
			problems = append(problems, fmt.Sprintf("%s accepts at most %d entries", field.name, maxTagsPerField))
			continue
		}
		for _, tag := range field.tags {
			trimmed := strings.TrimSpace(tag)
			if trimmed == "" || utf8.RuneCountInString(trimmed) > maxTagLength {
				problems = append(problems, fmt.Sprintf("%s entries must be 1 to %d characters", field.name, maxTagLength))
				break
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{kind: ErrInvalidSubmission, Problems: problems}
	}
	return nil
}

// Submit redacts the narrative, mints codes and stores only their digests.
func (s *Service) Submit(ctx context.Context, submission Submission) (Receipt, error) {
	if err := ValidateSubmission(submission); err != nil {
		return Receipt{}, err
	}

	redacted := redaction.Redact(strings.TrimSpace(submission.Narrative))

	deletionCode, err := s.generator.Generate()
	if err != nil {
		s.logError(opSubmit, "code_generation_failed", err)
		return Receipt{}, newServiceError(opSubmit, "code_generation_failed", err)
	}
	deletionDigest, err := s.hasher.Hash(deletionCode)
	if err != nil {
		s.logError(opSubmit, "code_hash_failed", err)
		return Receipt{}, newServiceError(opSubmit, "code_hash_failed", err)
	}

	var inboxCode string
	var inboxDigest *string
	if submission.AllowLanternNotes {
		inboxCode, err = s.generator.Generate()
		if err != nil {
			s.logError(opSubmit, "code_generation_failed", err)
			return Receipt{}, newServiceError(opSubmit, "code_generation_failed", err)
		}
		digest, err := s.hasher.Hash(inboxCode)
		if err != nil {
			s.logError(opSubmit, "code_hash_failed", err)
			return Receipt{}, newServiceError(opSubmit, "code_hash_failed", err)
		}
		inboxDigest = &digest
	}

	storyID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSubmit, "id_generation_failed", err)
		return Receipt{}, newServiceError(opSubmit, "id_generation_failed", err)
	}

	reviewFlags := categoryNames(redacted.ReviewFlags)
	status := StatusPending
	if s.autoApproveStories {
		status = StatusApproved
		if len(reviewFlags) > 0 {
			status = StatusHeld
		}
	}

	now := s.now()
	story := Story{
		StoryID:           storyID,
		Narrative:         redacted.Text,
		Country:           strings.TrimSpace(submission.Country),
		AreaType:          strings.TrimSpace(submission.AreaType),
		AgeRange:          strings.TrimSpace(submission.AgeRange),
		IdentityTags:      cleanTags(submission.IdentityTags),
		ContextTags:       cleanTags(submission.ContextTags),
		PowerTags:         cleanTags(submission.PowerTags),
		ImpactTags:        cleanTags(submission.ImpactTags),
		RiskFlags:         cleanTags(submission.RiskFlags),
		ReviewFlags:       reviewFlags,
		AllowAggregate:    submission.AllowAggregate,
		AllowExcerpt:      submission.AllowExcerpt,
		AllowPublicStory:  submission.AllowPublicStory,
		AllowLanternNotes: submission.AllowLanternNotes,
		DeletionCodeHash:  deletionDigest,
		InboxCodeHash:     inboxDigest,
		Status:            status,
		CreatedAtSeconds:  now,
		UpdatedAtSeconds:  now,
	}
	// Select keeps false consent flags from being replaced by column defaults.
	if err := s.db.WithContext(ctx).Select("*").Create(&story).Error; err != nil {
		s.logError(opSubmit, "story_insert_failed", err)
		return Receipt{}, newServiceError(opSubmit, "story_insert_failed", err)
	}

	s.recorder.ObserveSubmission(string(status))
	s.recorder.ObserveRedaction(append(categoryNames(redacted.Redacted), reviewFlags...))
	s.logger.Info("story submitted",
		zap.String("status", string(status)),
		zap.Int("warnings", len(redacted.Warnings)),
		zap.Bool("inbox", inboxDigest != nil))

	return Receipt{
		DeletionCode: deletionCode,
		InboxCode:    inboxCode,
		Warnings:     redacted.Warnings,
		Status:       status,
		Comfort:      comfort.ForSubmission(story.ContextTags, story.RiskFlags, submission.AllowLanternNotes),
	}, nil
}

func appendLengthProblem(problems []string, field, value string, limit int) []string {
	if utf8.RuneCountInString(strings.TrimSpace(value)) > limit {
		return append(problems, fmt.Sprintf("%s must be at most %d characters", field, limit))
	}
	return problems
}

func cleanTags(tags []string) []string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

func categoryNames(categories []redaction.Category) []string {
	names := make([]string, 0, len(categories))
	for _, category := range categories {
		names = append(names, string(category))
	}
	return names
}
