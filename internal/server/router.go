package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lantern/internal/auth"
	"github.com/MarcoPoloResearchLab/lantern/internal/metrics"
	"github.com/MarcoPoloResearchLab/lantern/internal/ratelimit"
	"github.com/MarcoPoloResearchLab/lantern/internal/stories"
)

const (
	moderatorContextKey = "lantern_moderator"
	// maxRequestBodyBytes fits a 10,000 character narrative even when every
	// character is escaped as \uXXXX, plus the rest of the JSON envelope.
	maxRequestBodyBytes = 64 << 10
)

var (
	errMissingStoriesService   = errors.New("stories service dependency required")
	errMissingLimiter          = errors.New("rate limiter dependency required")
	errMissingSessionIssuer    = errors.New("session issuer dependency required")
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingPasswordVerifier = errors.New("password verifier dependency required")
)

// PasswordVerifier checks a candidate password against a stored digest.
// *codes.Hasher satisfies it.
type PasswordVerifier interface {
	Verify(digest, candidate string) bool
}

type Dependencies struct {
	Stories          *stories.Service
	Limiter          ratelimit.Limiter
	Policies         map[string]ratelimit.Policy
	SessionIssuer    *auth.SessionIssuer
	SessionValidator *auth.SessionValidator
	PasswordVerifier PasswordVerifier
	// AdminPasswordHash is an Argon2id digest. Empty disables admin login.
	AdminPasswordHash string
	AllowedOrigins    []string
	SecureCookies     bool
	Metrics           *metrics.Recorder
	MetricsHandler    http.Handler
	Feed              *ModerationFeed
	Logger            *zap.Logger
	Clock             func() time.Time
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Stories == nil {
		return nil, errMissingStoriesService
	}
	if deps.Limiter == nil {
		return nil, errMissingLimiter
	}
	if deps.SessionIssuer == nil {
		return nil, errMissingSessionIssuer
	}
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.PasswordVerifier == nil {
		return nil, errMissingPasswordVerifier
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	feed := deps.Feed
	if feed == nil {
		feed = NewModerationFeed()
	}
	policies := ratelimit.DefaultPolicies()
	for name, policy := range deps.Policies {
		policies[name] = policy
	}

	handler := &httpHandler{
		stories:           deps.Stories,
		limiter:           deps.Limiter,
		policies:          policies,
		sessions:          deps.SessionIssuer,
		validator:         deps.SessionValidator,
		passwords:         deps.PasswordVerifier,
		adminPasswordHash: deps.AdminPasswordHash,
		secureCookies:     deps.SecureCookies,
		metrics:           deps.Metrics,
		feed:              feed,
		logger:            logger,
		clock:             clock,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.Use(noStoreMiddleware)
	router.Use(bodyLimitMiddleware(maxRequestBodyBytes))

	router.GET("/healthz", handler.handleHealth)
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	router.POST("/stories", handler.handleSubmitStory)
	router.POST("/stories/delete", handler.handleDeleteStory)
	router.GET("/stories/public", handler.handlePublicStories)
	router.GET("/stories/:id/comments", handler.handleComments)
	router.POST("/inbox/lookup", handler.handleInboxLookup)
	router.POST("/lantern-notes", handler.handleLanternNote)
	router.POST("/pii/check", handler.handlePIICheck)

	router.POST("/admin/login", handler.handleAdminLogin)
	router.POST("/admin/logout", handler.handleAdminLogout)

	admin := router.Group("/admin")
	admin.Use(handler.requireModerator)
	admin.GET("/stories", handler.handleAdminStories)
	admin.PATCH("/stories/:id", handler.handleModerateStory)
	admin.GET("/notes", handler.handleAdminNotes)
	admin.PATCH("/notes/:id", handler.handleModerateNote)
	admin.POST("/notes/approve-pending", handler.handleApprovePending)
	admin.GET("/events", handler.handleModerationEvents)

	return router, nil
}

type httpHandler struct {
	stories           *stories.Service
	limiter           ratelimit.Limiter
	policies          map[string]ratelimit.Policy
	sessions          *auth.SessionIssuer
	validator         *auth.SessionValidator
	passwords         PasswordVerifier
	adminPasswordHash string
	secureCookies     bool
	metrics           *metrics.Recorder
	feed              *ModerationFeed
	logger            *zap.Logger
	clock             func() time.Time
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type"},
		ExposeHeaders: []string{headerRateLimitLimit, headerRateLimitRemaining, headerRateLimitReset, headerRetryAfter},
		MaxAge:        12 * time.Hour,
	}
	wildcard := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		if origin == "*" {
			wildcard = true
		}
	}
	if wildcard {
		config.AllowAllOrigins = true
	} else {
		// Credentials are only offered to named origins, never to "*".
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

// noStoreMiddleware keeps codes and inbox contents out of shared caches.
func noStoreMiddleware(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Next()
}

// bodyLimitMiddleware makes JSON binding fail once a body exceeds limit bytes,
// so oversized codes never reach the hasher.
func bodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
