package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"wizard_client/internal/http/handlers"
	"wizard_client/internal/http/middleware"
	"wizard_client/internal/metrics"
	"wizard_client/internal/reconciler"
)

// Deps is everything the control API needs
type Deps struct {
	// Base is the app lifetime; join subscriptions live as long as it does
	Base     context.Context
	Game     *reconciler.Reconciler
	Session  handlers.StateSource
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// Redis may be nil; the rate limiter then counts in memory
	Redis      *redis.Client
	RateLimit  int
	RateWindow time.Duration
	Version    string
	Log        *slog.Logger
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	if d.Base == nil {
		d.Base = context.Background()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	h := handlers.NewHandler(d.Base, d.Game, d.Log)
	healthHandler := handlers.NewHealthHandler(d.Session, d.Redis, d.Version)

	// Health checks (no rate limiting)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	v1.GET("/state", h.State)

	cmds := v1.Group("")
	if d.RateLimit > 0 {
		cmds.Use(middleware.RateLimit(d.Redis, d.RateLimit, d.RateWindow, d.Metrics))
	}
	{
		cmds.POST("/join", h.Join)
		cmds.POST("/start", h.Start())
		cmds.POST("/predict", h.Predict)
		cmds.POST("/play", h.Play)
		cmds.POST("/proceed", h.Proceed())
		cmds.POST("/force-end", h.ForceEnd())
		cmds.POST("/return-to-lobby", h.ReturnToLobby())
		cmds.POST("/cheat/:playerId", h.ToggleCheat)
	}

	// local-only state changes, nothing is sent
	v1.POST("/trick-winner/clear", h.ClearTrickWinner)
	v1.POST("/end-early", h.EndEarly)
	v1.POST("/reset", h.Reset)
}
