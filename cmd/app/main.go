package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"wizard_client/internal/auth"
	"wizard_client/internal/config"
	httpServer "wizard_client/internal/http"
	"wizard_client/internal/http/middleware"
	"wizard_client/internal/logger"
	"wizard_client/internal/metrics"
	"wizard_client/internal/reconciler"
	"wizard_client/internal/session"
	"wizard_client/internal/transport"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", "error", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogJSON)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var game *reconciler.Reconciler

	dialer := transport.NewStompDialer(logger.Component("transport"), m)
	dialer.Heartbeat = cfg.Heartbeat
	if cfg.AuthSecret != "" {
		signer, err := auth.NewSigner(cfg.AuthSecret, auth.DefaultTTL)
		if err != nil {
			logger.Fatal("auth", "error", err)
		}
		dialer.Token = func() (string, error) {
			return signer.Generate(game.View().PlayerID)
		}
	}

	client := session.New(dialer,
		session.WithAddress(cfg.WSURL),
		session.WithLogger(logger.Component("session")),
		session.WithMetrics(m),
		session.WithJoinGrace(cfg.JoinGrace),
	)
	torch := reconciler.NewLogTorch(logger.Component("torch"))
	game = reconciler.New(client,
		reconciler.WithTorch(torch),
		reconciler.WithLogger(logger.Component("reconciler")),
	)

	redisClient := middleware.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger.Get())
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	httpServer.RegisterRoutes(r, httpServer.Deps{
		Base:       ctx,
		Game:       game,
		Session:    client,
		Metrics:    m,
		Gatherer:   reg,
		Redis:      redisClient,
		RateLimit:  cfg.APIRateLimit,
		RateWindow: cfg.APIRateWindow,
		Version:    version,
		Log:        logger.Component("http"),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	g.Go(func() error {
		err := game.Run(ctx, game.Inbox())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		logger.Info("server started", "port", cfg.AppPort, "ws_url", cfg.WSURL, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		torch.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("session close", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}
