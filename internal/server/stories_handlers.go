package server

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/lantern/internal/ratelimit"
	"github.com/MarcoPoloResearchLab/lantern/internal/redaction"
	"github.com/MarcoPoloResearchLab/lantern/internal/stories"
)

const (
	messageStoryDeleted = "Your story has been permanently deleted. Thank you for using this platform."
	messageNoteAccepted = "Your note will reach someone who needs it. Thank you for sharing your support."
)

type storyRequestPayload struct {
	Narrative         string   `json:"narrative"`
	Country           string   `json:"country"`
	AreaType          string   `json:"area_type"`
	AgeRange          string   `json:"age_range"`
	IdentityTags      []string `json:"identity_tags"`
	ContextTags       []string `json:"context_tags"`
	PowerTags         []string `json:"power_tags"`
	ImpactTags        []string `json:"impact_tags"`
	RiskFlags         []string `json:"risk_flags"`
	AllowAggregate    *bool    `json:"allow_aggregate"`
	AllowExcerpt      *bool    `json:"allow_excerpt"`
	AllowPublicStory  *bool    `json:"allow_public_story"`
	AllowLanternNotes *bool    `json:"allow_lantern_notes"`
}

func (p storyRequestPayload) submission() stories.Submission {
	return stories.Submission{
		Narrative:         p.Narrative,
		Country:           p.Country,
		AreaType:          p.AreaType,
		AgeRange:          p.AgeRange,
		IdentityTags:      p.IdentityTags,
		ContextTags:       p.ContextTags,
		PowerTags:         p.PowerTags,
		ImpactTags:        p.ImpactTags,
		RiskFlags:         p.RiskFlags,
		AllowAggregate:    boolOrDefault(p.AllowAggregate, true),
		AllowExcerpt:      boolOrDefault(p.AllowExcerpt, false),
		AllowPublicStory:  boolOrDefault(p.AllowPublicStory, false),
		AllowLanternNotes: boolOrDefault(p.AllowLanternNotes, false),
	}
}

func boolOrDefault(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func (h *httpHandler) handleSubmitStory(c *gin.Context) {
	var request storyRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "Invalid submission data", nil)
		return
	}
	submission := request.submission()
	if err := stories.ValidateSubmission(submission); err != nil {
		h.respondError(c, "submit_story", err)
		return
	}
	if !h.enforceRateLimit(c, ratelimit.PolicyStorySubmission, messageSubmissionLimited) {
		return
	}

	receipt, err := h.stories.Submit(c.Request.Context(), submission)
	if err != nil {
		h.respondError(c, "submit_story", err)
		return
	}
	if receipt.Status == stories.StatusPending || receipt.Status == stories.StatusHeld {
		h.feed.Publish(ModerationEvent{Kind: EventStoryQueued, Status: string(receipt.Status)})
	}
	c.JSON(http.StatusOK, receipt)
}

type deleteRequestPayload struct {
	DeletionCode string `json:"deletion_code"`
}

func (h *httpHandler) handleDeleteStory(c *gin.Context) {
	var request deleteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.DeletionCode) == "" {
		respondInvalidRequest(c, messageInvalidRequest, nil)
		return
	}
	if !h.enforceRateLimit(c, ratelimit.PolicyDeleteStory, messageAttemptsLimited) {
		return
	}

	if err := h.stories.Delete(c.Request.Context(), request.DeletionCode); err != nil {
		respondInvalidCode(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": messageStoryDeleted})
}

type inboxRequestPayload struct {
	InboxCode string `json:"inbox_code"`
}

func (h *httpHandler) handleInboxLookup(c *gin.Context) {
	var request inboxRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.InboxCode) == "" {
		respondInvalidRequest(c, messageInvalidRequest, nil)
		return
	}
	if !h.enforceRateLimit(c, ratelimit.PolicyInboxLookup, messageAttemptsLimited) {
		return
	}

	inbox, err := h.stories.Inbox(c.Request.Context(), request.InboxCode)
	if err != nil {
		respondInvalidCode(c)
		return
	}
	c.JSON(http.StatusOK, inbox)
}

type noteRequestPayload struct {
	NoteText string `json:"note_text"`
	NoteType string `json:"note_type"`
	StoryID  string `json:"story_id"`
}

func (h *httpHandler) handleLanternNote(c *gin.Context) {
	var request noteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "Invalid note data", nil)
		return
	}
	note := stories.NoteSubmission{
		NoteText: request.NoteText,
		NoteType: stories.NoteType(strings.TrimSpace(request.NoteType)),
		StoryID:  strings.TrimSpace(request.StoryID),
	}
	if note.NoteType == "" {
		note.NoteType = stories.NoteTypeResponder
	}
	if err := stories.ValidateNote(note); err != nil {
		h.respondError(c, "post_note", err)
		return
	}
	if !h.enforceRateLimit(c, ratelimit.PolicyLanternNotes, messageNotesLimited) {
		return
	}

	receipt, err := h.stories.PostNote(c.Request.Context(), note)
	if err != nil {
		h.respondError(c, "post_note", err)
		return
	}
	if receipt.Status == stories.NoteStatusPending {
		h.feed.Publish(ModerationEvent{Kind: EventNoteQueued, Status: string(receipt.Status)})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": messageNoteAccepted, "status": receipt.Status})
}

func (h *httpHandler) handlePublicStories(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondInvalidRequest(c, "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}
	listing, err := h.stories.PublicStories(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, "public_stories", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": listing})
}

func (h *httpHandler) handleComments(c *gin.Context) {
	comments, err := h.stories.Comments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "comments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

type piiCheckPayload struct {
	Text string `json:"text"`
}

func (h *httpHandler) handlePIICheck(c *gin.Context) {
	var request piiCheckPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, messageInvalidRequest, nil)
		return
	}
	if utf8.RuneCountInString(request.Text) > stories.MaxNarrativeLength {
		respondInvalidRequest(c, "text is too long", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"warnings": redaction.DetectPII(request.Text)})
}
