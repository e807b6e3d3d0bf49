package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/wealthledger/pkg/config"
	"github.com/wyfcoding/wealthledger/pkg/ratelimit"
)

// RateLimit applies a per-client-IP limit to the wrapped routes. The
// limiter failing is treated as open, never as a denial.
func RateLimit(limiter ratelimit.Limiter, cfg config.RateLimitConfig) gin.HandlerFunc {
	limit := ratelimit.PerSecond(cfg.QPS, cfg.Burst)
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		key := fmt.Sprintf("ledger:ratelimit:%s", c.ClientIP())
		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(res.ResetAfter/time.Second), 10))

		if !res.Allowed {
			c.Header("Retry-After", strconv.FormatInt(int64(res.RetryAfter/time.Second), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": res.RetryAfter.String(),
			})
			return
		}

		c.Next()
	}
}
