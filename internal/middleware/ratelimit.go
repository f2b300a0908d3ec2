package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/saxenaaman628/vote-pipeline/internal/logging"
	"github.com/saxenaaman628/vote-pipeline/internal/ratelimit"
)

type Limiter interface {
	Check(ctx context.Context, subject string) (ratelimit.Result, error)
}

// IPRateLimit throttles requests per client IP. When the limiter store is
// unreachable the request passes through.
func IPRateLimit(limiter Limiter, l *logger.Logger) gin.HandlerFunc {
	l = logging.Resolve(l)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		res, err := limiter.Check(c.Request.Context(), ip)
		if err != nil {
			l.Warningf("event=ip_rate_limit_unavailable ip=%s error=%v", ip, err)
			c.Next()
			return
		}

		SetRateLimitHeaders(c, res)
		if !res.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, RateLimitBody("Too many requests, please try again later.", res))
			return
		}
		c.Next()
	}
}

// SetRateLimitHeaders writes the RateLimit-* response headers for res.
func SetRateLimitHeaders(c *gin.Context, res ratelimit.Result) {
	reset := int64(time.Until(res.ResetTime).Seconds())
	if reset < 0 {
		reset = 0
	}
	c.Header("RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	c.Header("RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	c.Header("RateLimit-Reset", strconv.FormatInt(reset, 10))
}

// RateLimitBody is the 429 response body shared by both limiters.
func RateLimitBody(message string, res ratelimit.Result) gin.H {
	return gin.H{
		"error":     true,
		"message":   message,
		"remaining": res.Remaining,
		"resetTime": res.ResetTime.UTC().Format(time.RFC3339),
	}
}
