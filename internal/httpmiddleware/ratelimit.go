package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"classattend/internal/clock"
)

// KeyFunc picks the bucket a request draws from. An empty key skips limiting.
type KeyFunc func(c *gin.Context) string

// ClientIP keys buckets by the remote address.
func ClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// Limiter is an in-memory token bucket per key. Buckets hold up to burst
// tokens and refill continuously at perMinute.
type Limiter struct {
	burst    float64
	perSec   float64
	clock    clock.Clock
	mu       sync.Mutex
	buckets  map[string]*bucket
	idleTTL  time.Duration
	lastScan time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewLimiter creates a limiter. A non-positive burst defaults to perMinute.
func NewLimiter(burst, perMinute int, clk clock.Clock) *Limiter {
	if burst <= 0 {
		burst = perMinute
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Limiter{
		burst:   float64(burst),
		perSec:  float64(perMinute) / 60,
		clock:   clk,
		buckets: make(map[string]*bucket),
		idleTTL: 10 * time.Minute,
	}
}

// Middleware aborts with 429 once key's bucket is empty.
func (l *Limiter) Middleware(key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if k != "" && !l.Allow(k) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// Allow takes one token from key's bucket.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, seen: now}
		l.buckets[key] = b
	}
	b.tokens = min(l.burst, b.tokens+now.Sub(b.seen).Seconds()*l.perSec)
	b.seen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets idle long enough to have refilled completely.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastScan) < l.idleTTL {
		return
	}
	l.lastScan = now
	for k, b := range l.buckets {
		if now.Sub(b.seen) >= l.idleTTL {
			delete(l.buckets, k)
		}
	}
}

// Len reports the number of tracked buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
