package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lantern/internal/stories"
)

const (
	messageInvalidCode    = "Invalid code"
	messageInvalidRequest = "Invalid request"
	messageNoteRejected   = "Your note contains content that cannot be accepted"
	messageStoryNotFound  = "Story not found."
	messageNoEligible     = "No eligible stories available at this time. Please try again later."
	messageUnexpected     = "An unexpected error occurred"
)

func respondInvalidRequest(c *gin.Context, message string, details []string) {
	body := gin.H{"error": "invalid_request", "message": message}
	if len(details) > 0 {
		body["details"] = details
	}
	c.JSON(http.StatusBadRequest, body)
}

// respondInvalidCode is the single answer for every failed code lookup.
func respondInvalidCode(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_code", "message": messageInvalidCode})
}

// respondError translates service errors for the authoring and moderation
// endpoints. Causes of 5xx answers stay in the logs.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	var validationErr *stories.ValidationError
	var rejection *stories.ContentRejection
	switch {
	case errors.As(err, &validationErr):
		respondInvalidRequest(c, messageInvalidRequest, validationErr.Problems)
	case errors.As(err, &rejection):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "note_rejected",
			"message": messageNoteRejected,
			"reasons": rejection.Reasons,
		})
	case errors.Is(err, stories.ErrStoryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "story_not_found", "message": messageStoryNotFound})
	case errors.Is(err, stories.ErrNoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "note_not_found", "message": "Note not found."})
	case errors.Is(err, stories.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status", "message": "Unsupported status"})
	case errors.Is(err, stories.ErrNoEligibleStory):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no_eligible_story", "message": messageNoEligible})
	default:
		fields := []zap.Field{zap.String("operation", operation), zap.Error(err)}
		var serviceErr *stories.ServiceError
		if errors.As(err, &serviceErr) {
			fields = append(fields, zap.String("code", serviceErr.Code()))
		}
		h.logger.Error("request failed", fields...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": messageUnexpected})
	}
}
