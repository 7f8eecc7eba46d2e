package stories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/lantern/internal/comfort"
	"github.com/MarcoPoloResearchLab/lantern/internal/lookup"
)

// InboxNote is an approved note as shown to the story owner.
type InboxNote struct {
	ID        string    `json:"id"`
	NoteText  string    `json:"note_text"`
	NoteType  NoteType  `json:"note_type"`
	CreatedAt time.Time `json:"created_at"`
}

// Inbox carries no attribute of the story it belongs to.
type Inbox struct {
	Notes        []InboxNote     `json:"notes"`
	PendingCount int64           `json:"pending_count"`
	Comfort      comfort.Message `json:"comfort_message"`
}

// Delete tombstones the story whose deletion code matches. The story's notes
// are removed in the same transaction and its digests are erased, so neither
// code can match again.
func (s *Service) Delete(ctx context.Context, deletionCode string) error {
	storyID, err := s.resolveCode(ctx, opDelete, lookup.PurposeDeletion, deletionCode)
	if err != nil {
		return err
	}

	now := s.now()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Story{}).
			Where("story_id = ? AND status <> ?", storyID, StatusDeleted).
			Updates(map[string]any{
				"status":               StatusDeleted,
				"narrative":            TombstoneNarrative,
				"deletion_code_hash":   "",
				"inbox_code_hash":      nil,
				"notes_count_approved": 0,
				"review_flags":         "[]",
				"deleted_at_s":         now,
				"updated_at_s":         now,
			})
		if result.Error != nil {
			s.logError(opDelete, "story_update_failed", result.Error)
			return newServiceError(opDelete, "story_update_failed", result.Error)
		}
		// A concurrent delete won the race.
		if result.RowsAffected == 0 {
			return ErrInvalidCode
		}
		if err := tx.Where("story_id = ?", storyID).Delete(&LanternNote{}).Error; err != nil {
			s.logError(opDelete, "notes_delete_failed", err)
			return newServiceError(opDelete, "notes_delete_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	s.logger.Info("story deleted by contributor")
	return nil
}

// Inbox returns the approved notes of the story whose inbox code matches,
// oldest first, plus the number still awaiting moderation.
func (s *Service) Inbox(ctx context.Context, inboxCode string) (Inbox, error) {
	storyID, err := s.resolveCode(ctx, opInbox, lookup.PurposeInbox, inboxCode)
	if err != nil {
		return Inbox{}, err
	}

	var story Story
	err = s.db.WithContext(ctx).
		Select("story_id", "status").
		Where("story_id = ?", storyID).
		Take(&story).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && story.Status == StatusDeleted) {
		return Inbox{}, ErrInvalidCode
	}
	if err != nil {
		s.logError(opInbox, "story_select_failed", err)
		return Inbox{}, newServiceError(opInbox, "story_select_failed", err)
	}

	var approved []LanternNote
	if err := s.db.WithContext(ctx).
		Where("story_id = ? AND status = ?", storyID, NoteStatusApproved).
		Order("created_at_s ASC").Order("note_id ASC").
		Find(&approved).Error; err != nil {
		s.logError(opInbox, "notes_select_failed", err)
		return Inbox{}, newServiceError(opInbox, "notes_select_failed", err)
	}

	var pending int64
	if err := s.db.WithContext(ctx).Model(&LanternNote{}).
		Where("story_id = ? AND status = ?", storyID, NoteStatusPending).
		Count(&pending).Error; err != nil {
		s.logError(opInbox, "pending_count_failed", err)
		return Inbox{}, newServiceError(opInbox, "pending_count_failed", err)
	}

	notes := make([]InboxNote, 0, len(approved))
	for _, note := range approved {
		notes = append(notes, InboxNote{
			ID:        note.NoteID,
			NoteText:  note.NoteText,
			NoteType:  note.NoteType,
			CreatedAt: time.Unix(note.CreatedAtSeconds, 0).UTC(),
		})
	}
	return Inbox{
		Notes:        notes,
		PendingCount: pending,
		Comfort:      comfort.ForInbox(len(notes)),
	}, nil
}
