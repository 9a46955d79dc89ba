package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"wizard_client/internal/metrics"
)

type clientInfo struct {
	start time.Time
	count int
}

// MemoryRateLimiter is the in-process fixed window used when redis is not
// configured. Counts are per client IP.
type MemoryRateLimiter struct {
	max     int
	window  time.Duration
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*clientInfo
}

func NewMemoryRateLimiter(maxRequests int, window time.Duration, m *metrics.Metrics) *MemoryRateLimiter {
	if m == nil {
		m = metrics.Discard()
	}
	return &MemoryRateLimiter{
		max:     maxRequests,
		window:  window,
		metrics: m,
		now:     time.Now,
		clients: make(map[string]*clientInfo),
	}
}

// allow counts one request and returns the count inside the current window
func (l *MemoryRateLimiter) allow(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	ci, ok := l.clients[ip]
	if !ok || now.Sub(ci.start) > l.window {
		l.clients[ip] = &clientInfo{start: now, count: 1}
		l.sweep(now)
		return 1
	}
	ci.count++
	return ci.count
}

// sweep drops expired windows; called with mu held
func (l *MemoryRateLimiter) sweep(now time.Time) {
	for ip, ci := range l.clients {
		if now.Sub(ci.start) > l.window {
			delete(l.clients, ip)
		}
	}
}

func (l *MemoryRateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		count := l.allow(c.ClientIP())
		c.Header("X-RateLimit-Limit", strconv.Itoa(l.max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(0, l.max-count)))

		if count > l.max {
			l.metrics.RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		l.metrics.RLRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}
