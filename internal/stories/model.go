package stories

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// StoryStatus is the moderation state of a story.
type StoryStatus string

const (
	StatusPending  StoryStatus = "pending"
	StatusApproved StoryStatus = "approved"
	StatusRejected StoryStatus = "rejected"
	StatusHeld     StoryStatus = "held"
	StatusDeleted  StoryStatus = "deleted"
)

// NoteType tags a lantern note as a public comment or a private reply.
type NoteType string

const (
	NoteTypePublic    NoteType = "public"
	NoteTypeResponder NoteType = "responder"
)

// NoteStatus is the moderation state of a lantern note.
type NoteStatus string

const (
	NoteStatusPending  NoteStatus = "pending"
	NoteStatusApproved NoteStatus = "approved"
	NoteStatusRejected NoteStatus = "rejected"
)

// TombstoneNarrative replaces the narrative of a deleted story.
const TombstoneNarrative = "[DELETED BY CONTRIBUTOR]"

// ErrInvalidStoryID indicates a malformed story identifier.
var ErrInvalidStoryID = errors.New("stories: invalid story id")

// StoryID is a validated UUID story identifier.
type StoryID string

// NewStoryID validates rawInput as a UUID and returns its canonical form.
func NewStoryID(rawInput string) (StoryID, error) {
	canonical, err := canonicalUUID(rawInput)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidStoryID, err)
	}
	return StoryID(canonical), nil
}

func canonicalUUID(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", errors.New("empty")
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}

func (id StoryID) String() string {
	return string(id)
}

// Story is the persisted submission. Only digests of the codes are stored.
type Story struct {
	StoryID            string      `gorm:"column:story_id;primaryKey;size:64;not null"`
	Narrative          string      `gorm:"column:narrative;type:text;not null"`
	Country            string      `gorm:"column:country;size:100;not null;default:''"`
	AreaType           string      `gorm:"column:area_type;size:50;not null;default:''"`
	AgeRange           string      `gorm:"column:age_range;size:20;not null;default:''"`
	IdentityTags       []string    `gorm:"column:identity_tags;type:text;serializer:json"`
	ContextTags        []string    `gorm:"column:context_tags;type:text;serializer:json"`
	PowerTags          []string    `gorm:"column:power_tags;type:text;serializer:json"`
	ImpactTags         []string    `gorm:"column:impact_tags;type:text;serializer:json"`
	RiskFlags          []string    `gorm:"column:risk_flags;type:text;serializer:json"`
	ReviewFlags        []string    `gorm:"column:review_flags;type:text;serializer:json"`
	AllowAggregate     bool        `gorm:"column:allow_aggregate;not null;default:true"`
	AllowExcerpt       bool        `gorm:"column:allow_excerpt;not null;default:false"`
	AllowPublicStory   bool        `gorm:"column:allow_public_story;not null;default:false;index:idx_stories_public,priority:1"`
	AllowLanternNotes  bool        `gorm:"column:allow_lantern_notes;not null;default:false;index:idx_stories_pool,priority:1"`
	DeletionCodeHash   string      `gorm:"column:deletion_code_hash;size:255;not null"`
	InboxCodeHash      *string     `gorm:"column:inbox_code_hash;size:255"`
	NotesCountApproved int         `gorm:"column:notes_count_approved;not null;default:0;index:idx_stories_pool,priority:3"`
	Status             StoryStatus `gorm:"column:status;size:16;not null;index:idx_stories_pool,priority:2;index:idx_stories_public,priority:2"`
	CreatedAtSeconds   int64       `gorm:"column:created_at_s;not null;index:idx_stories_public,priority:3"`
	UpdatedAtSeconds   int64       `gorm:"column:updated_at_s;not null"`
	DeletedAtSeconds   *int64      `gorm:"column:deleted_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Story) TableName() string {
	return "stories"
}

// LanternNote is a support message attached to a story.
type LanternNote struct {
	NoteID             string     `gorm:"column:note_id;primaryKey;size:64;not null"`
	StoryID            string     `gorm:"column:story_id;size:64;not null;index:idx_notes_story_status,priority:1"`
	NoteText           string     `gorm:"column:note_text;type:text;not null"`
	NoteType           NoteType   `gorm:"column:note_type;size:16;not null"`
	Status             NoteStatus `gorm:"column:status;size:16;not null;index:idx_notes_story_status,priority:2"`
	RejectionReason    string     `gorm:"column:rejection_reason;size:500;not null;default:''"`
	CreatedAtSeconds   int64      `gorm:"column:created_at_s;not null"`
	ModeratedAtSeconds *int64     `gorm:"column:moderated_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (LanternNote) TableName() string {
	return "lantern_notes"
}

// AuditEntry records one moderator action.
type AuditEntry struct {
	EntryID          string `gorm:"column:entry_id;primaryKey;size:64;not null"`
	Action           string `gorm:"column:action;size:64;not null"`
	TargetType       string `gorm:"column:target_type;size:32;not null"`
	TargetID         string `gorm:"column:target_id;size:64;not null;index"`
	Detail           string `gorm:"column:detail;size:500;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (AuditEntry) TableName() string {
	return "admin_audit_log"
}

func validStoryStatus(status StoryStatus) bool {
	switch status {
	case StatusPending, StatusApproved, StatusRejected, StatusHeld, StatusDeleted:
		return true
	}
	return false
}

func validNoteStatus(status NoteStatus) bool {
	switch status {
	case NoteStatusPending, NoteStatusApproved, NoteStatusRejected:
		return true
	}
	return false
}

// visibleStatuses are the states in which a story may receive and show notes.
var visibleStatuses = []StoryStatus{StatusPending, StatusApproved}
