package stories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/lantern/internal/lookup"
)

var errUnknownPurpose = errors.New("stories: unknown lookup purpose")

// CandidateStore lists digest-bearing stories for the code resolver.
type CandidateStore struct {
	db *gorm.DB
}

func NewCandidateStore(db *gorm.DB) *CandidateStore {
	return &CandidateStore{db: db}
}

type candidateRow struct {
	StoryID string `gorm:"column:story_id"`
	Digest  string `gorm:"column:digest"`
}

// Candidates implements lookup.CandidateSource. Deleted stories never appear,
// and the order is stable across calls.
func (s *CandidateStore) Candidates(ctx context.Context, purpose lookup.Purpose, limit int) ([]lookup.Candidate, error) {
	if s == nil || s.db == nil {
		return nil, errMissingDatabase
	}

	query := s.db.WithContext(ctx).Model(&Story{}).Where("status <> ?", StatusDeleted)
	switch purpose {
	case lookup.PurposeDeletion:
		query = query.Select("story_id", "deletion_code_hash AS digest").
			Where("deletion_code_hash <> ''")
	case lookup.PurposeInbox:
		query = query.Select("story_id", "inbox_code_hash AS digest").
			Where("inbox_code_hash IS NOT NULL AND inbox_code_hash <> ''")
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownPurpose, purpose)
	}
	query = query.Order("created_at_s ASC").Order("story_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []candidateRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	candidates := make([]lookup.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, lookup.Candidate{StoryID: row.StoryID, Digest: row.Digest})
	}
	return candidates, nil
}
