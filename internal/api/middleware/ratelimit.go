package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"ledger-core/internal/config"
)

// rateLimiter is a hand-rolled in-memory sliding-window limiter keyed by
// client IP. A real distributed deployment would back this with a shared
// store; a single-process limiter is enough for one API instance.
type rateLimiter struct {
	requests map[string][]time.Time
	mutex    sync.RWMutex
	limit    int
	window   time.Duration
}

// RateLimit rejects requests from a client IP once it exceeds
// cfg.RateLimit.RequestsPerMinute within cfg.RateLimit.Window.
func RateLimit(cfg *config.Config) gin.HandlerFunc {
	limiter := &rateLimiter{
		requests: make(map[string][]time.Time),
		limit:    cfg.RateLimit.RequestsPerMinute,
		window:   cfg.RateLimit.Window,
	}
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		limiter.mutex.Lock()
		defer limiter.mutex.Unlock()

		now := time.Now()
		if requests, exists := limiter.requests[clientIP]; exists {
			var valid []time.Time
			for _, reqTime := range requests {
				if now.Sub(reqTime) < limiter.window {
					valid = append(valid, reqTime)
				}
			}
			limiter.requests[clientIP] = valid
		}

		if len(limiter.requests[clientIP]) >= limiter.limit {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded, try again later",
				"retry_after": int(limiter.window.Seconds()),
			})
			c.Abort()
			return
		}

		limiter.requests[clientIP] = append(limiter.requests[clientIP], now)
		c.Next()
	}
}
