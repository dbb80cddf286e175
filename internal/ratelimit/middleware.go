package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Middleware enforces the category's limit per client IP. Denied requests get
// 429 with standard X-RateLimit headers; a broken counter store fails closed
// with 503 rather than letting unmetered traffic through.
func Middleware(l *Limiter, category string, logger *zap.Logger) gin.HandlerFunc {
	if l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		d, err := l.Allow(c.Request.Context(), category, c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Error("rate limit store unavailable",
					zap.String("category", category),
					zap.Error(err),
				)
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error":   "rate limiter unavailable",
			})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			retryAfter := int(d.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"error":      "too many requests",
				"retryAfter": retryAfter,
			})
			return
		}
		c.Next()
	}
}
