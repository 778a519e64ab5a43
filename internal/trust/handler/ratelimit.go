package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleTTL    = 10 * time.Minute
)

// limiterPool tracks one token bucket per client IP. Idle entries are swept
// inline on the request path once limiterSweepEvery has elapsed, so the pool
// needs no background goroutine and cannot leak one per middleware instance.
type limiterPool struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

type clientLimiter struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

func (p *limiterPool) allow(ip string) bool {
	p.mu.Lock()
	now := time.Now()
	if now.Sub(p.lastSweep) > limiterSweepEvery {
		for addr, cl := range p.clients {
			if now.Sub(cl.lastSeen) > limiterIdleTTL {
				delete(p.clients, addr)
			}
		}
		p.lastSweep = now
	}

	cl := p.clients[ip]
	if cl == nil {
		cl = &clientLimiter{bucket: rate.NewLimiter(p.limit, p.burst)}
		p.clients[ip] = cl
	}
	cl.lastSeen = now
	bucket := cl.bucket
	p.mu.Unlock()

	return bucket.Allow()
}

// RateLimiter returns a Gin middleware enforcing a per-client token bucket
// across the trust API. rps is the steady-state requests per second, burst
// the maximum burst. Health and metrics probes bypass the limiter so
// monitoring is never shed under load.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	pool := &limiterPool{
		clients:   make(map[string]*clientLimiter),
		limit:     rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
	}

	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/healthz", "/metrics":
			c.Next()
			return
		}

		if !pool.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
