package stories

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/lantern/internal/contentfilter"
)

// NoteSubmission is an inbound lantern note. An empty StoryID asks for pool
// assignment.
type NoteSubmission struct {
	NoteText string
	NoteType NoteType
	StoryID  string
}

// NoteReceipt confirms storage without revealing the recipient story.
type NoteReceipt struct {
	Status NoteStatus `json:"status"`
}

// Comment is a public note shown under a public story.
type Comment struct {
	ID        string     `json:"id"`
	NoteText  string     `json:"note_text"`
	NoteType  NoteType   `json:"note_type"`
	Status    NoteStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// ValidateNote checks the shape of a note. Length and content are left to the
// content filter so the submitter gets its itemized reasons.
func ValidateNote(note NoteSubmission) error {
	var problems []string
	if note.NoteText == "" {
		problems = append(problems, "note_text is required")
	}
	switch note.NoteType {
	case NoteTypePublic, NoteTypeResponder:
	default:
		problems = append(problems, "note_type must be public or responder")
	}
	if note.StoryID != "" {
		if _, err := NewStoryID(note.StoryID); err != nil {
			problems = append(problems, "story_id must be a UUID")
		}
	}
	if len(problems) > 0 {
		return &ValidationError{kind: ErrInvalidNote, Problems: problems}
	}
	return nil
}

// ScreenNote runs the content filter and reports rejections as *ContentRejection.
func (s *Service) ScreenNote(note NoteSubmission) error {
	if err := ValidateNote(note); err != nil {
		return err
	}
	verdict := contentfilter.FilterNote(note.NoteText)
	if !verdict.Allowed {
		s.recorder.ObserveNoteRejection(verdict.Reasons)
		return &ContentRejection{Reasons: verdict.Reasons}
	}
	return nil
}

// PostNote stores a screened note on the addressed story, or on a story drawn
// from the lantern pool.
func (s *Service) PostNote(ctx context.Context, note NoteSubmission) (NoteReceipt, error) {
	if err := s.ScreenNote(note); err != nil {
		return NoteReceipt{}, err
	}

	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opPostNote, "id_generation_failed", err)
		return NoteReceipt{}, newServiceError(opPostNote, "id_generation_failed", err)
	}

	status := NoteStatusPending
	if s.autoApproveNotes {
		status = NoteStatusApproved
	}
	now := s.now()

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var storyID string
		if note.StoryID != "" {
			canonical, _ := NewStoryID(note.StoryID)
			var count int64
			if err := tx.Model(&Story{}).
				Where("story_id = ? AND status IN ? AND allow_lantern_notes = ?", canonical.String(), visibleStatuses, true).
				Count(&count).Error; err != nil {
				s.logError(opPostNote, "story_select_failed", err)
				return newServiceError(opPostNote, "story_select_failed", err)
			}
			if count == 0 {
				return ErrStoryNotFound
			}
			storyID = canonical.String()
		} else {
			selected, err := s.selectPoolStory(tx)
			if err != nil {
				return err
			}
			storyID = selected
		}

		record := LanternNote{
			NoteID:           noteID,
			StoryID:          storyID,
			NoteText:         strings.TrimSpace(note.NoteText),
			NoteType:         note.NoteType,
			Status:           status,
			CreatedAtSeconds: now,
		}
		if status == NoteStatusApproved {
			record.ModeratedAtSeconds = &now
		}
		if err := tx.Create(&record).Error; err != nil {
			s.logError(opPostNote, "note_insert_failed", err)
			return newServiceError(opPostNote, "note_insert_failed", err)
		}
		if status == NoteStatusApproved {
			if err := adjustApprovedCount(tx, storyID, 1, now); err != nil {
				s.logError(opPostNote, "counter_update_failed", err)
				return newServiceError(opPostNote, "counter_update_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		return NoteReceipt{}, txErr
	}

	s.logger.Info("lantern note stored",
		zap.String("status", string(status)),
		zap.Bool("pool_assigned", note.StoryID == ""))
	return NoteReceipt{Status: status}, nil
}

type poolRow struct {
	StoryID            string `gorm:"column:story_id"`
	NotesCountApproved int    `gorm:"column:notes_count_approved"`
}

// selectPoolStory fetches the lowest-count window of eligible stories and picks
// uniformly among those sharing the minimum count.
func (s *Service) selectPoolStory(tx *gorm.DB) (string, error) {
	var window []poolRow
	if err := tx.Model(&Story{}).
		Select("story_id", "notes_count_approved").
		Where("allow_lantern_notes = ? AND status IN ? AND notes_count_approved < ?",
			true, visibleStatuses, s.pool.MaxApprovedNotes).
		Order("notes_count_approved ASC").Order("created_at_s ASC").Order("story_id ASC").
		Limit(s.pool.CandidateWindow).
		Find(&window).Error; err != nil {
		s.logError(opPostNote, "pool_select_failed", err)
		return "", newServiceError(opPostNote, "pool_select_failed", err)
	}
	if len(window) == 0 {
		return "", ErrNoEligibleStory
	}

	lowest := window[:1]
	for index := 1; index < len(window); index++ {
		if window[index].NotesCountApproved != window[0].NotesCountApproved {
			break
		}
		lowest = window[:index+1]
	}
	pick := s.chooser(len(lowest))
	if pick < 0 || pick >= len(lowest) {
		pick = 0
	}
	return lowest[pick].StoryID, nil
}

// Comments lists the public notes of a public, visible story, oldest first.
func (s *Service) Comments(ctx context.Context, rawStoryID string) ([]Comment, error) {
	storyID, err := NewStoryID(rawStoryID)
	if err != nil {
		return nil, ErrStoryNotFound
	}

	var story Story
	err = s.db.WithContext(ctx).
		Select("story_id").
		Where("story_id = ? AND allow_public_story = ? AND status IN ?", storyID.String(), true, visibleStatuses).
		Take(&story).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStoryNotFound
	}
	if err != nil {
		s.logError(opComments, "story_select_failed", err)
		return nil, newServiceError(opComments, "story_select_failed", err)
	}

	var records []LanternNote
	if err := s.db.WithContext(ctx).
		Where("story_id = ? AND note_type = ? AND status IN ?",
			storyID.String(), NoteTypePublic, []NoteStatus{NoteStatusPending, NoteStatusApproved}).
		Order("created_at_s ASC").Order("note_id ASC").
		Find(&records).Error; err != nil {
		s.logError(opComments, "notes_select_failed", err)
		return nil, newServiceError(opComments, "notes_select_failed", err)
	}

	comments := make([]Comment, 0, len(records))
	for _, record := range records {
		comments = append(comments, Comment{
			ID:        record.NoteID,
			NoteText:  record.NoteText,
			NoteType:  record.NoteType,
			Status:    record.Status,
			CreatedAt: time.Unix(record.CreatedAtSeconds, 0).UTC(),
		})
	}
	return comments, nil
}

func adjustApprovedCount(tx *gorm.DB, storyID string, delta int, now int64) error {
	expression := gorm.Expr("notes_count_approved + ?", delta)
	if delta < 0 {
		expression = gorm.Expr("CASE WHEN notes_count_approved >= ? THEN notes_count_approved - ? ELSE 0 END", -delta, -delta)
	}
	return tx.Model(&Story{}).
		Where("story_id = ?", storyID).
		Updates(map[string]any{
			"notes_count_approved": expression,
			"updated_at_s":         now,
		}).Error
}
