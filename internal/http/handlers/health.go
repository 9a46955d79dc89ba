package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"wizard_client/internal/session"
)

// StateSource reports the game server connection
type StateSource interface {
	State() session.ConnState
	LastError() error
}

type HealthHandler struct {
	session   StateSource
	redis     *redis.Client
	startTime time.Time
	version   string
}

// NewHealthHandler builds the liveness and readiness handlers. rdb may be
// nil when the rate limiter counts in memory.
func NewHealthHandler(s StateSource, rdb *redis.Client, version string) *HealthHandler {
	return &HealthHandler{
		session:   s,
		redis:     rdb,
		startTime: time.Now(),
		version:   version,
	}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Liveness only says the process answers
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness is healthy only while the game server connection is up. The
// rate limiter backend is reported but never fails readiness, it fails open.
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := map[string]string{}

	state := h.session.State()
	checks["session"] = state.String()
	if err := h.session.LastError(); err != nil && state == session.Failed {
		checks["session_error"] = err.Error()
	}

	checks["rate_limiter"] = h.limiterCheck(c.Request.Context())

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	checks["memory_alloc_mb"] = formatMB(m.Alloc)

	status, code := "healthy", http.StatusOK
	if state != session.Connected {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(code, HealthResponse{
		Status:    status,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

func (h *HealthHandler) limiterCheck(ctx context.Context) string {
	if h.redis == nil {
		return "memory"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return "redis unreachable: " + err.Error()
	}
	return "redis"
}

func formatMB(bytes uint64) string {
	return fmt.Sprintf("%.2f", float64(bytes)/1024/1024)
}
