package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/services"
)

// RateLimit enforces the per-system sliding window. Must run after
// SystemAuth; a limiter error never blocks the request.
func RateLimit(rateLimitService *services.RateLimitService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		systemID := SystemFromContext(c)
		if systemID == 0 {
			logger.Error("Rate limit middleware called without system context")
			c.Next()
			return
		}

		allowed, info, err := rateLimitService.IsAllowed(c.Request.Context(), systemID)
		if err != nil {
			logger.WithError(err).Error("Failed to check rate limit")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime, 10))

		if !allowed {
			logger.WithFields(logrus.Fields{
				"system_id": systemID,
				"limit":     info.Limit,
			}).Warn("Rate limit exceeded")

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "Rate limit exceeded. Please try again later.",
				"rate_limit": info,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
