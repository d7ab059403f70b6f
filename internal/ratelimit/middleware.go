package ratelimit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"vehicle-lookup-api/internal/metrics"
)

// Middleware rejects clients over the ceiling. Paths in skip are never
// limited. Rejections use status 200 with a JSON body, matching the other
// lookup responses.
func Middleware(l Limiter, logger zerolog.Logger, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(c *gin.Context) {
		if skipped[c.Request.URL.Path] {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			ip = c.RemoteIP()
		}

		allowed, err := l.Allow(c.Request.Context(), ip)
		if err != nil {
			// fail open
			logger.Error().Err(err).Str("client_ip", ip).Msg("Rate limiter error")
			c.Next()
			return
		}
		if !allowed {
			metrics.IncRateLimited()
			logger.Warn().Str("client_ip", ip).Str("path", c.Request.URL.Path).Msg("Request ceiling exceeded")
			c.AbortWithStatusJSON(http.StatusOK, gin.H{
				"error":   "Too Many Requests",
				"message": "You have exceeded the maximum number of requests allowed. Please try again later.",
				"code":    http.StatusTooManyRequests,
			})
			return
		}

		c.Next()
	}
}
