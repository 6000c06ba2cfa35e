package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/pkg/models"
)

// RateLimiter is implemented by services.RateLimitService.
type RateLimiter interface {
	IsAllowed(ctx context.Context, clientKey string) (bool, *models.RateLimitInfo, error)
}

// RateLimit limits requests per client IP.
func RateLimit(limiter RateLimiter, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		allowed, info, err := limiter.IsAllowed(c.Request.Context(), clientIP)
		if err != nil {
			logger.WithError(err).Error("Failed to check rate limit")
			// Continue on error to avoid blocking requests when Redis is down
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime, 10))

		if !allowed {
			logger.WithFields(logrus.Fields{
				"client_ip": clientIP,
				"limit":     info.Limit,
			}).Warn("Rate limit exceeded")

			abortWithError(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded. Please try again later.", info)
			return
		}

		c.Next()
	}
}
