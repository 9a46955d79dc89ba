package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"wizard_client/internal/metrics"
)

// NewRedisClient connects to redis for the rate limiter. It returns nil
// when addr is empty or the ping fails, so callers fall back to the
// in-memory limiter and the API stays available.
func NewRedisClient(addr, password string, db int, log *slog.Logger) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		if log != nil {
			log.Warn("NewRedisClient: ping failed, using in-memory rate limit", "addr", addr, "error", err)
		}
		_ = client.Close()
		return nil
	}
	return client
}

// RedisRateLimit is a fixed-window limiter on INCR/EXPIRE.
// key format: rl:<window_seconds>:<client ip>
// A redis error lets the request through.
func RedisRateLimit(client *redis.Client, maxRequests int, window time.Duration, m *metrics.Metrics) gin.HandlerFunc {
	if m == nil {
		m = metrics.Discard()
	}
	return func(c *gin.Context) {
		key := "rl:" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + c.ClientIP()
		ctx := c.Request.Context()

		val, err := client.Incr(ctx, key).Result()
		if err != nil {
			c.Header("X-RateLimit-Error", "redis-error")
			c.Next()
			return
		}
		if val == 1 {
			client.Expire(ctx, key, window)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(maxRequests)-val), 10))

		if val > int64(maxRequests) {
			m.RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": int(window.Seconds()),
			})
			return
		}

		m.RLRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// RateLimit picks redis when a client is available, memory otherwise
func RateLimit(client *redis.Client, maxRequests int, window time.Duration, m *metrics.Metrics) gin.HandlerFunc {
	if client == nil {
		return NewMemoryRateLimiter(maxRequests, window, m).Handler()
	}
	return RedisRateLimit(client, maxRequests, window, m)
}
