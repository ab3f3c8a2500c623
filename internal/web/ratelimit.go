package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(key string) bool
}

// IPRateLimiter tracks request rates per client IP. Idle entries expire after ttl.
type IPRateLimiter struct {
	mutex    sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

// NewIPRateLimiter allows up to requests events per window for each key, plus burst.
func NewIPRateLimiter(requests int, window time.Duration, burst int, ttl time.Duration) *IPRateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow reports whether key may proceed now, spending one token from its bucket.
func (limiter *IPRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	now := limiter.now()
	current := limiter.visitorLocked(key, now)
	limiter.gcLocked(now)
	return current.limiter.AllowN(now, 1)
}

func (limiter *IPRateLimiter) visitorLocked(key string, now time.Time) *visitor {
	if existing, ok := limiter.visitors[key]; ok {
		existing.lastSeen = now
		return existing
	}
	created := &visitor{limiter: rate.NewLimiter(limiter.limit, limiter.burst), lastSeen: now}
	limiter.visitors[key] = created
	return created
}

func (limiter *IPRateLimiter) gcLocked(now time.Time) {
	for key, tracked := range limiter.visitors {
		if now.Sub(tracked.lastSeen) > limiter.ttl {
			delete(limiter.visitors, key)
		}
	}
}

// WithNowFunc overrides the time source.
func (limiter *IPRateLimiter) WithNowFunc(now func() time.Time) {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	limiter.now = now
}

// RateLimitMiddleware rejects callers exceeding limiter with 429, keyed by client IP.
func RateLimitMiddleware(logger *zap.Logger, limiter RateLimiter) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		clientIP := contextGin.ClientIP()
		if !limiter.Allow(clientIP) {
			logger.Warn("rate limit exceeded",
				zap.String("code", "web.rate_limited"),
				zap.String("client_ip", clientIP),
				zap.String("path", contextGin.FullPath()))
			contextGin.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		contextGin.Next()
	}
}
