package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter holds one token bucket per client IP.
type RateLimiter struct {
	limiters sync.Map
	limit    rate.Limit
	burst    int
}

func NewRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limit: limit, burst: burst}
}

func (l *RateLimiter) limiter(ip string) *rate.Limiter {
	if val, ok := l.limiters.Load(ip); ok {
		return val.(*rate.Limiter)
	}
	val, _ := l.limiters.LoadOrStore(ip, rate.NewLimiter(l.limit, l.burst))
	return val.(*rate.Limiter)
}

// Middleware rejects requests over the per-IP limit with 429.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
