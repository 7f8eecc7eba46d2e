package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lantern/internal/auth"
	"github.com/MarcoPoloResearchLab/lantern/internal/ratelimit"
	"github.com/MarcoPoloResearchLab/lantern/internal/stories"
)

const moderationHeartbeatInterval = 25 * time.Second

type loginRequestPayload struct {
	Password string `json:"password"`
}

func (h *httpHandler) handleAdminLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Password == "" {
		respondInvalidRequest(c, messageInvalidRequest, nil)
		return
	}
	if h.adminPasswordHash == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin_disabled", "message": "Admin login is not configured"})
		return
	}
	if !h.enforceRateLimit(c, ratelimit.PolicyAdminLogin, messageAttemptsLimited) {
		return
	}
	if !h.passwords.Verify(h.adminPasswordHash, request.Password) {
		h.logger.Info("admin login rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "message": "Invalid password"})
		return
	}

	token, expiresAt, err := h.sessions.Issue()
	if err != nil {
		h.logger.Error("failed to issue admin session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": messageUnexpected})
		return
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.validator.CookieName(),
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	h.logger.Info("admin session started")
	c.JSON(http.StatusOK, gin.H{"success": true, "expires_at": expiresAt})
}

func (h *httpHandler) handleAdminLogout(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.validator.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) requireModerator(c *gin.Context) {
	claims, err := h.validator.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("admin session validation failed", zap.Error(err))
		default:
			h.logger.Warn("admin session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(moderatorContextKey, claims.ID)
	c.Next()
}

func (h *httpHandler) logModeratorAction(c *gin.Context, action string) {
	h.logger.Info("moderator action",
		zap.String("action", action),
		zap.String("session_id", c.GetString(moderatorContextKey)))
}

func (h *httpHandler) handleAdminStories(c *gin.Context) {
	list, err := h.stories.AdminStories(c.Request.Context(), strings.TrimSpace(c.Query("status")))
	if err != nil {
		h.respondError(c, "admin_stories", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": list})
}

type statusRequestPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *httpHandler) handleModerateStory(c *gin.Context) {
	var request statusRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Status == "" {
		respondInvalidRequest(c, messageInvalidRequest, nil)
		return
	}
	view, err := h.stories.ModerateStory(c.Request.Context(), c.Param("id"), stories.StoryStatus(request.Status))
	if err != nil {
		h.respondError(c, "moderate_story", err)
		return
	}
	h.logModeratorAction(c, "moderate_story")
	c.JSON(http.StatusOK, gin.H{"story": view})
}

func (h *httpHandler) handleAdminNotes(c *gin.Context) {
	list, err := h.stories.AdminNotes(c.Request.Context(), strings.TrimSpace(c.Query("status")))
	if err != nil {
		h.respondError(c, "admin_notes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": list})
}

func (h *httpHandler) handleModerateNote(c *gin.Context) {
	var request statusRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Status == "" {
		respondInvalidRequest(c, messageInvalidRequest, nil)
		return
	}
	view, err := h.stories.ModerateNote(c.Request.Context(), c.Param("id"), stories.NoteStatus(request.Status), request.Reason)
	if err != nil {
		h.respondError(c, "moderate_note", err)
		return
	}
	h.logModeratorAction(c, "moderate_note")
	c.JSON(http.StatusOK, gin.H{"note": view})
}

func (h *httpHandler) handleApprovePending(c *gin.Context) {
	approved, err := h.stories.ApprovePendingNotes(c.Request.Context())
	if err != nil {
		h.respondError(c, "approve_pending_notes", err)
		return
	}
	h.logModeratorAction(c, "approve_pending_notes")
	c.JSON(http.StatusOK, gin.H{"approved": approved})
}

// handleModerationEvents streams queue events to a moderator as server-sent events.
func (h *httpHandler) handleModerationEvents(c *gin.Context) {
	ctx := c.Request.Context()
	events, cleanup := h.feed.Subscribe(ctx)
	defer cleanup()

	heartbeat := time.NewTicker(moderationHeartbeatInterval)
	defer heartbeat.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event := <-events:
			c.SSEvent(event.Kind, event)
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(eventHeartbeat, gin.H{"timestamp": tick.UTC()})
			return true
		}
	})
}
