package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

const (
	bucketIdle    = time.Hour
	sweepInterval = 5 * time.Minute
)

// limiterPool tracks one token bucket per caller identity. Idle buckets
// are swept opportunistically during lookups rather than by a background
// goroutine, so every router built in tests does not leave one behind.
type limiterPool struct {
	rps   rate.Limit
	burst int

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLimiterPool(cfg config.RateLimitConfig) *limiterPool {
	return &limiterPool{
		rps:       rate.Limit(cfg.RequestsPerSecond),
		burst:     cfg.Burst,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

func (p *limiterPool) get(identity string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.Sub(p.lastSweep) >= sweepInterval {
		for id, b := range p.buckets {
			if now.Sub(b.lastSeen) >= bucketIdle {
				delete(p.buckets, id)
			}
		}
		p.lastSweep = now
	}

	b, ok := p.buckets[identity]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(p.rps, p.burst)}
		p.buckets[identity] = b
	}
	b.lastSeen = now
	return b.lim
}

// RateLimit applies a per-caller token bucket across the v1 surface. The
// identity is the authenticated API key when Auth ran, otherwise the
// client IP. Throttled responses carry Retry-After so clients polling
// crawl and search jobs know when to come back.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	pool := newLimiterPool(cfg)

	return func(c *gin.Context) {
		identity := c.GetString(identityKey)
		if identity == "" {
			identity = c.ClientIP()
		}

		res := pool.get(identity).Reserve()
		if !res.OK() || res.Delay() > 0 {
			if res.OK() {
				retry := int(math.Ceil(res.Delay().Seconds()))
				res.Cancel()
				c.Header("Retry-After", strconv.Itoa(max(retry, 1)))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "request rate exceeded for this key",
				},
			})
			return
		}

		c.Next()
	}
}
