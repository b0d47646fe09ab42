package ratelimit

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/chain-sentinel/internal/errors"
)

// IPRateLimitMiddleware creates middleware for IP-based rate limiting
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := rl.AllowIP(c.Request.Context(), ip)
		if err != nil {
			// fail open
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitEndpoint("ip")
			}
			rejectTooMany(c, result, fmt.Sprintf("You have exceeded the rate limit of %d requests per minute", result.Limit))
			return
		}

		c.Next()
	}
}

// EndpointRateLimitMiddleware applies the configured per-endpoint budget, or
// limit when the configuration names none. A non-positive budget disables it.
func (rl *RateLimiter) EndpointRateLimitMiddleware(endpoint string, limit int) gin.HandlerFunc {
	if configured, ok := rl.config.EndpointLimits[endpoint]; ok {
		limit = configured
	}

	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		ip := c.ClientIP()

		result, err := rl.AllowEndpoint(c.Request.Context(), endpoint, ip, limit)
		if err != nil {
			slog.Error("Endpoint rate limit check failed", "endpoint", endpoint, "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Endpoint-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Endpoint-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitEndpoint(endpoint)
			}
			rejectTooMany(c, result, fmt.Sprintf("You have exceeded the rate limit of %d requests per minute for this endpoint", result.Limit))
			return
		}

		c.Next()
	}
}

func rejectTooMany(c *gin.Context, result *Result, message string) {
	retryAfter := int(result.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	appErr := apperrors.NewRateLimitError(fmt.Sprintf("%ds", retryAfter))

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
		"error":       appErr.Error(),
		"category":    appErr.Category,
		"message":     message,
		"retry_after": retryAfter,
		"reset_at":    result.ResetAt.Unix(),
		"request_id":  c.GetHeader("X-Request-ID"),
	})
}
