package stories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	auditModerateStory   = "moderate_story"
	auditModerateNote    = "moderate_note"
	auditApprovePending  = "approve_pending_notes"
	maxRejectionReason   = 500
	filterAll            = "all"
	auditTargetStory     = "story"
	auditTargetNote      = "lantern_note"
	auditTargetNoteQueue = "lantern_note_queue"
)

// AdminStory is the moderator view of a story. Digests are never included.
type AdminStory struct {
	ID                 string      `json:"id"`
	Narrative          string      `json:"narrative"`
	Country            string      `json:"country"`
	AreaType           string      `json:"area_type"`
	AgeRange           string      `json:"age_range"`
	IdentityTags       []string    `json:"identity_tags"`
	ContextTags        []string    `json:"context_tags"`
	PowerTags          []string    `json:"power_tags"`
	ImpactTags         []string    `json:"impact_tags"`
	RiskFlags          []string    `json:"risk_flags"`
	ReviewFlags        []string    `json:"review_flags"`
	AllowAggregate     bool        `json:"allow_aggregate"`
	AllowExcerpt       bool        `json:"allow_excerpt"`
	AllowPublicStory   bool        `json:"allow_public_story"`
	AllowLanternNotes  bool        `json:"allow_lantern_notes"`
	NotesCountApproved int         `json:"notes_count_approved"`
	Status             StoryStatus `json:"status"`
	CreatedAt          time.Time   `json:"created_at"`
}

// AdminNote is the moderator view of a lantern note.
type AdminNote struct {
	ID              string     `json:"id"`
	StoryID         string     `json:"story_id"`
	NoteText        string     `json:"note_text"`
	NoteType        NoteType   `json:"note_type"`
	Status          NoteStatus `json:"status"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ModeratedAt     *time.Time `json:"moderated_at,omitempty"`
}

func newAdminStory(record Story) AdminStory {
	return AdminStory{
		ID:                 record.StoryID,
		Narrative:          record.Narrative,
		Country:            record.Country,
		AreaType:           record.AreaType,
		AgeRange:           record.AgeRange,
		IdentityTags:       nonNilTags(record.IdentityTags),
		ContextTags:        nonNilTags(record.ContextTags),
		PowerTags:          nonNilTags(record.PowerTags),
		ImpactTags:         nonNilTags(record.ImpactTags),
		RiskFlags:          nonNilTags(record.RiskFlags),
		ReviewFlags:        nonNilTags(record.ReviewFlags),
		AllowAggregate:     record.AllowAggregate,
		AllowExcerpt:       record.AllowExcerpt,
		AllowPublicStory:   record.AllowPublicStory,
		AllowLanternNotes:  record.AllowLanternNotes,
		NotesCountApproved: record.NotesCountApproved,
		Status:             record.Status,
		CreatedAt:          time.Unix(record.CreatedAtSeconds, 0).UTC(),
	}
}

func newAdminNote(record LanternNote) AdminNote {
	view := AdminNote{
		ID:              record.NoteID,
		StoryID:         record.StoryID,
		NoteText:        record.NoteText,
		NoteType:        record.NoteType,
		Status:          record.Status,
		RejectionReason: record.RejectionReason,
		CreatedAt:       time.Unix(record.CreatedAtSeconds, 0).UTC(),
	}
	if record.ModeratedAtSeconds != nil {
		moderatedAt := time.Unix(*record.ModeratedAtSeconds, 0).UTC()
		view.ModeratedAt = &moderatedAt
	}
	return view
}

// storyColumns excludes the digest columns from every moderator query.
var storyColumns = []string{
	"story_id", "narrative", "country", "area_type", "age_range",
	"identity_tags", "context_tags", "power_tags", "impact_tags", "risk_flags", "review_flags",
	"allow_aggregate", "allow_excerpt", "allow_public_story", "allow_lantern_notes",
	"notes_count_approved", "status", "created_at_s", "updated_at_s",
}

// AdminStories lists stories newest first. An empty filter or "all" lists
// every story that has not been deleted.
func (s *Service) AdminStories(ctx context.Context, statusFilter string) ([]AdminStory, error) {
	query := s.db.WithContext(ctx).Select(storyColumns)
	switch statusFilter {
	case "", filterAll:
		query = query.Where("status <> ?", StatusDeleted)
	default:
		status := StoryStatus(statusFilter)
		if !validStoryStatus(status) {
			return nil, ErrInvalidStatus
		}
		query = query.Where("status = ?", status)
	}

	var records []Story
	if err := query.Order("created_at_s DESC").Order("story_id DESC").Limit(adminListLimit).Find(&records).Error; err != nil {
		s.logError(opListStories, "stories_select_failed", err)
		return nil, newServiceError(opListStories, "stories_select_failed", err)
	}
	views := make([]AdminStory, 0, len(records))
	for _, record := range records {
		views = append(views, newAdminStory(record))
	}
	return views, nil
}

// ModerateStory moves a live story between pending, approved, rejected and
// held. Deleted stories cannot be moderated.
func (s *Service) ModerateStory(ctx context.Context, rawStoryID string, status StoryStatus) (AdminStory, error) {
	switch status {
	case StatusPending, StatusApproved, StatusRejected, StatusHeld:
	default:
		return AdminStory{}, ErrInvalidStatus
	}
	storyID, err := NewStoryID(rawStoryID)
	if err != nil {
		return AdminStory{}, ErrStoryNotFound
	}

	now := s.now()
	var updated Story
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Story
		err := tx.Select(storyColumns).
			Where("story_id = ? AND status <> ?", storyID.String(), StatusDeleted).
			Take(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStoryNotFound
		}
		if err != nil {
			s.logError(opModerateStory, "story_select_failed", err, zap.String("story_id", storyID.String()))
			return newServiceError(opModerateStory, "story_select_failed", err)
		}

		if err := tx.Model(&Story{}).
			Where("story_id = ?", storyID.String()).
			Updates(map[string]any{"status": status, "updated_at_s": now}).Error; err != nil {
			s.logError(opModerateStory, "story_update_failed", err, zap.String("story_id", storyID.String()))
			return newServiceError(opModerateStory, "story_update_failed", err)
		}
		detail := fmt.Sprintf("%s -> %s", current.Status, status)
		if err := s.recordAudit(tx, auditModerateStory, auditTargetStory, storyID.String(), detail, now); err != nil {
			s.logError(opModerateStory, "audit_insert_failed", err, zap.String("story_id", storyID.String()))
			return newServiceError(opModerateStory, "audit_insert_failed", err)
		}
		current.Status = status
		updated = current
		return nil
	})
	if txErr != nil {
		return AdminStory{}, txErr
	}
	return newAdminStory(updated), nil
}

// AdminNotes lists notes oldest first. An empty filter means pending.
func (s *Service) AdminNotes(ctx context.Context, statusFilter string) ([]AdminNote, error) {
	query := s.db.WithContext(ctx)
	switch statusFilter {
	case "":
		query = query.Where("status = ?", NoteStatusPending)
	case filterAll:
	default:
		status := NoteStatus(statusFilter)
		if !validNoteStatus(status) {
			return nil, ErrInvalidStatus
		}
		query = query.Where("status = ?", status)
	}

	var records []LanternNote
	if err := query.Order("created_at_s ASC").Order("note_id ASC").Limit(adminListLimit).Find(&records).Error; err != nil {
		s.logError(opListNotes, "notes_select_failed", err)
		return nil, newServiceError(opListNotes, "notes_select_failed", err)
	}
	views := make([]AdminNote, 0, len(records))
	for _, record := range records {
		views = append(views, newAdminNote(record))
	}
	return views, nil
}

// ModerateNote approves or rejects a note and keeps the story's approved
// counter in step with the transition.
func (s *Service) ModerateNote(ctx context.Context, rawNoteID string, status NoteStatus, reason string) (AdminNote, error) {
	if status != NoteStatusApproved && status != NoteStatusRejected {
		return AdminNote{}, ErrInvalidStatus
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxRejectionReason {
		return AdminNote{}, &ValidationError{
			kind:     ErrInvalidNote,
			Problems: []string{fmt.Sprintf("reason must be at most %d characters", maxRejectionReason)},
		}
	}
	noteID, err := canonicalUUID(rawNoteID)
	if err != nil {
		return AdminNote{}, ErrNoteNotFound
	}
	if status == NoteStatusApproved {
		reason = ""
	}

	now := s.now()
	var updated LanternNote
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current LanternNote
		err := tx.Where("note_id = ?", noteID).Take(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoteNotFound
		}
		if err != nil {
			s.logError(opModerateNote, "note_select_failed", err, zap.String("note_id", noteID))
			return newServiceError(opModerateNote, "note_select_failed", err)
		}

		if err := tx.Model(&LanternNote{}).
			Where("note_id = ?", current.NoteID).
			Updates(map[string]any{
				"status":           status,
				"rejection_reason": reason,
				"moderated_at_s":   now,
			}).Error; err != nil {
			s.logError(opModerateNote, "note_update_failed", err, zap.String("note_id", current.NoteID))
			return newServiceError(opModerateNote, "note_update_failed", err)
		}

		delta := 0
		switch {
		case current.Status != NoteStatusApproved && status == NoteStatusApproved:
			delta = 1
		case current.Status == NoteStatusApproved && status != NoteStatusApproved:
			delta = -1
		}
		if delta != 0 {
			if err := adjustApprovedCount(tx, current.StoryID, delta, now); err != nil {
				s.logError(opModerateNote, "counter_update_failed", err, zap.String("story_id", current.StoryID))
				return newServiceError(opModerateNote, "counter_update_failed", err)
			}
		}

		detail := fmt.Sprintf("%s -> %s", current.Status, status)
		if err := s.recordAudit(tx, auditModerateNote, auditTargetNote, current.NoteID, detail, now); err != nil {
			s.logError(opModerateNote, "audit_insert_failed", err, zap.String("note_id", current.NoteID))
			return newServiceError(opModerateNote, "audit_insert_failed", err)
		}

		current.Status = status
		current.RejectionReason = reason
		current.ModeratedAtSeconds = &now
		updated = current
		return nil
	})
	if txErr != nil {
		return AdminNote{}, txErr
	}
	return newAdminNote(updated), nil
}

// ApprovePendingNotes approves the whole pending queue and returns how many
// notes changed state.
func (s *Service) ApprovePendingNotes(ctx context.Context) (int, error) {
	now := s.now()
	approved := 0
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending []LanternNote
		if err := tx.Select("note_id", "story_id").
			Where("status = ?", NoteStatusPending).
			Find(&pending).Error; err != nil {
			s.logError(opApprovePending, "notes_select_failed", err)
			return newServiceError(opApprovePending, "notes_select_failed", err)
		}
		if len(pending) == 0 {
			return nil
		}

		perStory := make(map[string]int)
		noteIDs := make([]string, 0, len(pending))
		for _, note := range pending {
			perStory[note.StoryID]++
			noteIDs = append(noteIDs, note.NoteID)
		}

		if err := tx.Model(&LanternNote{}).
			Where("note_id IN ?", noteIDs).
			Updates(map[string]any{"status": NoteStatusApproved, "moderated_at_s": now}).Error; err != nil {
			s.logError(opApprovePending, "notes_update_failed", err)
			return newServiceError(opApprovePending, "notes_update_failed", err)
		}
		for storyID, count := range perStory {
			if err := adjustApprovedCount(tx, storyID, count, now); err != nil {
				s.logError(opApprovePending, "counter_update_failed", err, zap.String("story_id", storyID))
				return newServiceError(opApprovePending, "counter_update_failed", err)
			}
		}
		detail := fmt.Sprintf("approved %d notes", len(noteIDs))
		if err := s.recordAudit(tx, auditApprovePending, auditTargetNoteQueue, "*", detail, now); err != nil {
			s.logError(opApprovePending, "audit_insert_failed", err)
			return newServiceError(opApprovePending, "audit_insert_failed", err)
		}
		approved = len(noteIDs)
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	return approved, nil
}

func (s *Service) recordAudit(tx *gorm.DB, action, targetType, targetID, detail string, now int64) error {
	entryID, err := s.idProvider.NewID()
	if err != nil {
		return err
	}
	return tx.Create(&AuditEntry{
		EntryID:          entryID,
		Action:           action,
		TargetType:       targetType,
		TargetID:         targetID,
		Detail:           detail,
		CreatedAtSeconds: now,
	}).Error
}
