package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/archject/portal-access/internal/rate"
)

// RateLimiter caps requests per client IP and path over a one minute window.
type RateLimiter struct {
	limiter *rate.Limiter
	rpm     int
}

// NewRateLimiter builds a limiter; rpm <= 0 disables it.
func NewRateLimiter(rpm int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(), rpm: rpm}
}

func (r *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil || r.rpm <= 0 {
			c.Next()
			return
		}
		key := c.ClientIP() + ":" + c.FullPath()
		if !r.limiter.Allow(key, r.rpm, time.Minute) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Try again later.",
			})
			return
		}
		c.Next()
	}
}
