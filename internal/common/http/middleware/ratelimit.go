package middleware

import (
	"fmt"

	appErr "codeblack/pkg/errors"
	"codeblack/pkg/utils/contextkey"
	"codeblack/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket per caller.
type RateLimitConfig struct {
	// PerSecond is the refill rate; zero disables limiting.
	PerSecond float64 `yaml:"perSecond"`
	Burst     int     `yaml:"burst"`
}

// RateLimiter keeps one bucket per caller. Callers are keyed by the
// authenticated username when present, otherwise by client IP.
type RateLimiter struct {
	cfg     RateLimitConfig
	buckets *xsync.MapOf[string, *rate.Limiter]
}

// NewRateLimiter returns nil when cfg disables limiting.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.PerSecond <= 0 {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &RateLimiter{cfg: cfg, buckets: xsync.NewMapOf[string, *rate.Limiter]()}
}

// Allow takes one token for key.
func (l *RateLimiter) Allow(key string) bool {
	bucket, _ := l.buckets.LoadOrCompute(key, func() *rate.Limiter {
		return rate.NewLimiter(rate.Limit(l.cfg.PerSecond), l.cfg.Burst)
	})
	return bucket.Allow()
}

// Middleware rejects callers over their budget with TooManyRequests.
// routeKey separates the budgets of different routes.
func (l *RateLimiter) Middleware(routeKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		caller := "ip:" + c.ClientIP()
		if username, ok := c.Request.Context().Value(contextkey.Username).(string); ok && username != "" {
			caller = "user:" + username
		}
		if !l.Allow(routeKey + "|" + caller) {
			response.AbortWithError(c, appErr.New(appErr.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded for %s", routeKey)))
			return
		}
		c.Next()
	}
}
