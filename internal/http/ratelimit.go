package http

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const DefaultRateLimitPerMinute = 60

// RateLimiter throttles each client address to perMinute requests, with the
// whole minute's allowance available as a burst. A client idle for a full
// minute has a full bucket again, so its limiter is dropped.
type RateLimiter struct {
	perMinute int
	now       func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const rateLimitIdle = time.Minute

func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultRateLimitPerMinute
	}
	return &RateLimiter{
		perMinute: perMinute,
		now:       time.Now,
		clients:   make(map[string]*clientLimiter),
	}
}

func (l *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= rateLimitIdle {
		l.evictIdle(now)
		l.lastSweep = now
	}

	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{
			lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute),
		}
		l.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.lim
}

// evictIdle drops clients not seen for rateLimitIdle. Callers hold l.mu.
func (l *RateLimiter) evictIdle(now time.Time) {
	for key, cl := range l.clients {
		if now.Sub(cl.lastSeen) >= rateLimitIdle {
			delete(l.clients, key)
		}
	}
}

// Middleware answers 429 once the caller's allowance is spent.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := l.now()
		lim := l.limiter(c.ClientIP(), now)

		header := c.Writer.Header()
		header.Set("X-RateLimit-Limit", strconv.Itoa(l.perMinute))
		header.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(time.Minute).Unix(), 10))

		if !lim.AllowN(now, 1) {
			header.Set("X-RateLimit-Remaining", "0")
			header.Set("Retry-After", "1")
			abortDetail(c, http.StatusTooManyRequests,
				fmt.Sprintf("Rate limit exceeded. Maximum %d requests per minute.", l.perMinute))
			return
		}
		remaining := int(lim.TokensAt(now))
		if remaining < 0 {
			remaining = 0
		}
		header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}
