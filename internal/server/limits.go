package server

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lantern/internal/ratelimit"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
	headerRetryAfter         = "Retry-After"

	decisionAllowed = "allowed"
	decisionDenied  = "denied"
	decisionError   = "error"

	messageSubmissionLimited = "Too many submissions. Please try again later."
	messageAttemptsLimited   = "Too many attempts. Please try again later."
	messageNotesLimited      = "Too many notes submitted. Please try again tomorrow."
)

// enforceRateLimit counts the request against policyName and writes the
// rate-limit headers. It reports false after answering 429. A failing limiter
// lets the request through: the global lookup throttle still bounds hashing.
func (h *httpHandler) enforceRateLimit(c *gin.Context, policyName, deniedMessage string) bool {
	policy := h.policies[policyName]
	result, err := h.limiter.Check(c.Request.Context(), ratelimit.ClientIdentity(c.Request), policy)
	if err != nil {
		h.logger.Warn("rate limiter unavailable, allowing request",
			zap.String("policy", policyName),
			zap.Error(err))
		h.metrics.ObserveRateLimit(policyName, decisionError)
		return true
	}

	c.Header(headerRateLimitLimit, strconv.Itoa(result.Limit))
	c.Header(headerRateLimitRemaining, strconv.Itoa(result.Remaining))
	c.Header(headerRateLimitReset, result.ResetAt.UTC().Format(time.RFC3339))

	if result.Allowed {
		h.metrics.ObserveRateLimit(policyName, decisionAllowed)
		return true
	}

	h.metrics.ObserveRateLimit(policyName, decisionDenied)
	retryAfter := int(math.Ceil(result.ResetAt.Sub(h.clock()).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header(headerRetryAfter, strconv.Itoa(retryAfter))
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited", "message": deniedMessage})
	return false
}
