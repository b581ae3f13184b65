// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a process-local token-bucket limiter. Buckets are
// keyed by connection id (or client IP before a connection exists) and live
// in an expiring cache so idle ones disappear without a sweeper. The send
// endpoint is the cost driver: every allowed request may trigger one model
// inference.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// KeyFunc maps a request to a bucket identity.
type KeyFunc func(*gin.Context) string

// KeyByConnOrIP keys authenticated requests by "conn:<id>" and everything
// else by "ip:<addr>".
func KeyByConnOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if id := ConnID(c); id != "" {
			return "conn:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimiter is safe for concurrent use.
type RateLimiter struct {
	rps     rate.Limit
	burst   int
	keyFn   KeyFunc
	mu      sync.Mutex
	buckets *cache.Cache
}

// NewRateLimiter builds a limiter refilling rps tokens per second up to
// burst (coerced to at least 1). Buckets idle for idleTTL are dropped;
// idleTTL <= 0 means ten minutes.
func NewRateLimiter(rps float64, burst int, idleTTL time.Duration, keyFn KeyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	if keyFn == nil {
		keyFn = KeyByConnOrIP()
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: cache.New(idleTTL, idleTTL),
	}
}

// bucket returns the limiter for key, creating it on first use. Every hit
// re-stores it so the idle TTL restarts.
func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.buckets.Get(key)
	if !ok {
		lim = rate.NewLimiter(rl.rps, rl.burst)
	}
	rl.buckets.SetDefault(key, lim)
	return lim.(*rate.Limiter)
}

// Len reports the number of live buckets.
func (rl *RateLimiter) Len() int {
	return rl.buckets.ItemCount()
}

// IsRateBypass reports whether IdempotencyValidator exempted this request.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyRateBypass).(bool)
	return b
}

// retryAfter is the whole number of seconds until one token refills.
func (rl *RateLimiter) retryAfter() int {
	if rl.rps <= 0 || math.IsInf(float64(rl.rps), 1) {
		return 1
	}
	return int(math.Max(1, math.Ceil(1/float64(rl.rps))))
}

// Handler enforces the limit. Replays skip it. Rejections get 429 with a
// Retry-After header and the standard error envelope.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) || rl.bucket(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}
		c.Header("Retry-After", strconv.Itoa(rl.retryAfter()))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "too many requests, slow down",
		})
	}
}
