package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-client rate limiting
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTTL drops limiters for clients not seen for this long
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the server defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		IdleTTL:           10 * time.Minute,
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out one token bucket per client IP
type Limiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

// NewLimiter creates a per-client limiter
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}
	return &Limiter{
		cfg:      cfg,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Reserve takes a token for key. When none is available it returns false
// and how long until one is.
func (l *Limiter) Reserve(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	l.sweepLocked(now)
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len returns the number of tracked clients
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func (l *Limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.cfg.IdleTTL {
		return
	}
	l.lastSweep = now
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) >= l.cfg.IdleTTL {
			delete(l.visitors, key)
		}
	}
}

// RateLimit rejects clients over their budget with 429 and Retry-After
func RateLimit(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := l.Reserve(c.ClientIP())
		if !ok {
			if wait > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
