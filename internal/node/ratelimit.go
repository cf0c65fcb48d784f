package node

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientLimiters tracks one token bucket per caller IP. A dev node is
// often shared by a dashboard, the CLI and tests at once, so buckets
// are keyed by client rather than global.
type clientLimiters struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rps     rate.Limit
	burst   int
}

type clientBucket struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(rps, burst int) *clientLimiters {
	cl := &clientLimiters{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
	go cl.evictStale()
	return cl
}

func (cl *clientLimiters) get(ip string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	b, ok := cl.buckets[ip]
	if !ok {
		b = &clientBucket{bucket: rate.NewLimiter(cl.rps, cl.burst)}
		cl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	return b.bucket
}

func (cl *clientLimiters) evictStale() {
	for {
		time.Sleep(5 * time.Minute)
		cl.mu.Lock()
		for ip, b := range cl.buckets {
			if time.Since(b.lastSeen) > 10*time.Minute {
				delete(cl.buckets, ip)
			}
		}
		cl.mu.Unlock()
	}
}

// rateLimitMiddleware enforces per-IP token-bucket limits on the tx and
// read routes. Burst is fixed at twice the steady rate, which keeps the
// CLI's submit-then-poll pattern under the limit.
func rateLimitMiddleware(rps int) gin.HandlerFunc {
	cl := newClientLimiters(rps, rps*2)
	return func(c *gin.Context) {
		if !cl.get(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
