package stories

import (
	"context"
	"time"
)

// PublicStory is the listing view of a story whose contributor opted in.
type PublicStory struct {
	ID          string      `json:"id"`
	Narrative   string      `json:"narrative"`
	CreatedAt   time.Time   `json:"created_at"`
	ContextTags []string    `json:"context_tags"`
	ImpactTags  []string    `json:"impact_tags"`
	Status      StoryStatus `json:"status"`
}

// PublicStories lists opted-in stories newest first. Listing lags submission:
// held stories stay out until a moderator releases them.
func (s *Service) PublicStories(ctx context.Context, limit int) ([]PublicStory, error) {
	if limit <= 0 {
		limit = defaultPublicLimit
	}
	if limit > maxPublicLimit {
		limit = maxPublicLimit
	}

	var records []Story
	if err := s.db.WithContext(ctx).
		Select("story_id", "narrative", "created_at_s", "context_tags", "impact_tags", "status").
		Where("allow_public_story = ? AND status IN ?", true, visibleStatuses).
		Order("created_at_s DESC").Order("story_id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		s.logError(opPublicStories, "stories_select_failed", err)
		return nil, newServiceError(opPublicStories, "stories_select_failed", err)
	}

	listing := make([]PublicStory, 0, len(records))
	for _, record := range records {
		listing = append(listing, PublicStory{
			ID:          record.StoryID,
			Narrative:   record.Narrative,
			CreatedAt:   time.Unix(record.CreatedAtSeconds, 0).UTC(),
			ContextTags: nonNilTags(record.ContextTags),
			ImpactTags:  nonNilTags(record.ImpactTags),
			Status:      record.Status,
		})
	}
	return listing, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
