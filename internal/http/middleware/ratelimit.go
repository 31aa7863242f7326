// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file is the per-caller token bucket. Every request spends one token
// except routes registered with Cost: starting an extraction spends more,
// since each one holds a credit and a worker slot. Idempotent replays flagged
// by IdempotencyValidator spend nothing.
//
// Buckets live in process memory; a multi-replica deployment limits per
// replica.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tbourn/recipe-extraction-backend/internal/observability"
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by the X-User-ID resolved by UserIdentity and
// falls back to the client IP for anonymous traffic. Keys are prefixed so the
// two namespaces cannot collide.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := UserIDFrom(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a set of token buckets keyed by caller. Safe for concurrent
// use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu      sync.Mutex
	buckets map[string]*bucket
	costs   map[string]int // route (c.FullPath) -> tokens

	idleTTL time.Duration
	lookups uint64
	now     func() time.Time
}

// NewRateLimiter builds a limiter refilling rps tokens per second up to burst
// (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: make(map[string]*bucket),
		costs:   make(map[string]int),
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// Cost sets how many tokens a request to route spends. Costs above the burst
// are clamped to it, so a lone request on a full bucket always passes.
func (rl *RateLimiter) Cost(route string, tokens int) *RateLimiter {
	if tokens < 1 {
		tokens = 1
	}
	if tokens > rl.burst {
		tokens = rl.burst
	}
	rl.mu.Lock()
	rl.costs[route] = tokens
	rl.mu.Unlock()
	return rl
}

func (rl *RateLimiter) costOf(route string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if n, ok := rl.costs[route]; ok {
		return n
	}
	return 1
}

// limiterFor returns the bucket for key, creating it on first use. Every
// 5000 lookups idle buckets are evicted first, so a stale bucket for key
// itself is replaced with a full one.
func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= 5000 {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.buckets[key] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator flagged the request as a
// replay of a completed create.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the buckets. A refused request gets 429 with the
// rate_limited envelope and a Retry-After (whole seconds, at least 1) derived
// from when the bucket will hold enough tokens.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		route := c.FullPath()
		cost := rl.costOf(route)
		now := rl.now()
		lim := rl.limiterFor(rl.keyFn(c), now)

		res := lim.ReserveN(now, cost)
		if res.OK() && res.DelayFrom(now) == 0 {
			c.Next()
			return
		}
		wait := time.Second
		if res.OK() {
			wait = res.DelayFrom(now)
			res.CancelAt(now)
		}

		if route == "" {
			route = "unmatched"
		}
		observability.RateLimited.WithLabelValues(route).Inc()

		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": requestIDFrom(c),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
