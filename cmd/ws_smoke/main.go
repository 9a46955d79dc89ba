package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"

	"wizard_client/internal/auth"
	"wizard_client/internal/config"
	"wizard_client/internal/domain"
	"wizard_client/internal/logger"
	"wizard_client/internal/session"
	"wizard_client/internal/transport"
)

// Joins a running game server as a throwaway player, logs every push for a
// few seconds, then asks the server to start the game.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", "error", err)
	}

	url := flag.String("url", cfg.WSURL, "STOMP websocket endpoint")
	gameID := flag.String("game", os.Getenv("SMOKE_GAME_ID"), "game id to join")
	name := flag.String("name", "smoke", "player name")
	wait := flag.Duration("wait", 3*time.Second, "how long to listen before sending start")
	start := flag.Bool("start", true, "send start after listening")
	flag.Parse()

	logger.Init("debug", cfg.LogJSON)

	if *gameID == "" {
		logger.Fatal("game id not set (use -game or SMOKE_GAME_ID)")
	}
	playerID := uuid.NewString()

	dialer := transport.NewStompDialer(logger.Component("transport"), nil)
	dialer.Heartbeat = cfg.Heartbeat
	if cfg.AuthSecret != "" {
		signer, err := auth.NewSigner(cfg.AuthSecret, auth.DefaultTTL)
		if err != nil {
			logger.Fatal("auth", "error", err)
		}
		dialer.Token = func() (string, error) { return signer.Generate(playerID) }
	}

	client := session.New(dialer,
		session.WithAddress(*url),
		session.WithLogger(logger.Component("session")),
		session.WithJoinGrace(cfg.JoinGrace),
	)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *wait+5*time.Second)
	defer cancel()

	err = client.ConnectAndJoin(ctx, *gameID, playerID, *name, session.Handlers{
		OnUpdate: func(g domain.GameSnapshot) {
			logger.Info("game update",
				"status", g.Status,
				"round", g.CurrentRound,
				"players", len(g.Players),
				"hand", len(g.HandCards),
			)
		},
		OnScoreboard: func(entries []domain.ScoreboardEntry) {
			logger.Info("scoreboard", "entries", len(entries))
		},
		OnError: func(msg string) {
			logger.Warn("server error", "message", msg)
		},
	})
	if err != nil {
		logger.Fatal("join failed", "error", err, "state", client.State().String())
	}
	logger.Info("joined", "game", *gameID, "player", playerID)

	select {
	case <-time.After(*wait):
	case <-ctx.Done():
	}

	if *start {
		if err := client.SendStartGame(ctx, *gameID); err != nil {
			logger.Fatal("start failed", "error", err)
		}
		logger.Info("start sent")
		time.Sleep(time.Second)
	}

	logger.Info("smoke test finished", "state", client.State().String())
}
