// Package reconciler turns session pushes into SessionState, the current
// game snapshot and the scoreboard, and wraps the user-facing commands.
// It is the only writer of that state; readers take a View.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"wizard_client/internal/domain"
	"wizard_client/internal/logger"
	"wizard_client/internal/session"
)

const (
	MsgConnectionFailed = "Connection to server failed"
	MsgMissingIDs       = "Game ID or Player ID not set. Cannot play card."
	MsgPredictionIDs    = "Game ID or Player ID not set. Cannot submit prediction."
	MsgMissingGameID    = "Game ID not set. Cannot send game command."
	MsgPredictionSum    = "! Vorhersage nicht erlaubt – die Summe entspricht der Rundenzahl. Gib bitte einen anderen Wert ein."

	// the server's sum-equals-round rejection contains this
	predictionSumMarker = "exakt die Anzahl der Stiche"

	defaultInboxSize = 64
)

// Session is the part of session.Client the reconciler drives
type Session interface {
	State() session.ConnState
	ConnectAndJoin(ctx context.Context, gameID, playerID, playerName string, h session.Handlers) error
	SendPrediction(ctx context.Context, gameID, playerID string, prediction int) error
	SendPlayCard(ctx context.Context, gameID, playerID, cardToken string, cheating bool) error
	SendStartGame(ctx context.Context, gameID string) error
	SendProceedToNextRound(ctx context.Context, gameID string) error
	SendForceEndGame(ctx context.Context, gameID string) error
	SendReturnToLobby(ctx context.Context, gameID string) error
}

type Option func(*Reconciler)

func WithTorch(t Torch) Option {
	return func(r *Reconciler) { r.torch = t }
}

func WithLogger(log *slog.Logger) Option {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

type Reconciler struct {
	client Session
	torch  Torch
	log    *slog.Logger
	inbox  chan Event

	mu         sync.RWMutex
	state      SessionState
	snapshot   *domain.GameSnapshot
	scoreboard []domain.ScoreboardEntry
	cheats     map[string]bool
}

func New(client Session, opts ...Option) *Reconciler {
	r := &Reconciler{
		client: client,
		log:    logger.Component("reconciler"),
		inbox:  make(chan Event, defaultInboxSize),
		state:  initialState(),
		cheats: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Inbox is where Join's subscriptions publish. Feed it to Run.
func (r *Reconciler) Inbox() <-chan Event { return r.inbox }

// Run applies events until ctx is done or events is closed
func (r *Reconciler) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.Apply(ev)
		}
	}
}

func (r *Reconciler) Apply(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e := ev.(type) {
	case SnapshotEvent:
		r.applySnapshot(e.Snapshot)
	case ScoreboardEvent:
		r.scoreboard = cloneScoreboard(e.Entries)
		if r.scoreboard == nil {
			r.scoreboard = []domain.ScoreboardEntry{}
		}
	case ErrorEvent:
		msg := e.Message
		r.state.ActiveError = &msg
		r.state.HasSubmittedPrediction = false
		r.log.Info("Reconciler.Apply: server error", "message", msg)
	default:
		r.log.Warn("Reconciler.Apply: unknown event", "type", fmt.Sprintf("%T", ev))
	}
}

// applySnapshot: round change resets per-round state first, then the
// summary flag follows the status, then the snapshot is replaced.
func (r *Reconciler) applySnapshot(g domain.GameSnapshot) {
	if g.CurrentRound != r.state.LastKnownRound {
		r.state.HasSubmittedPrediction = false
		r.state.ActiveError = nil
		r.state.LastKnownRound = g.CurrentRound
		r.log.Debug("Reconciler.Apply: new round", "round", g.CurrentRound)
	}

	if g.Status == domain.StatusRoundEndSummary {
		r.state.ShowRoundSummary = true
	} else if r.state.ShowRoundSummary {
		r.state.ShowRoundSummary = false
		r.log.Debug("Reconciler.Apply: leaving round summary", "status", g.Status)
	}

	s := g.Clone()
	r.snapshot = &s
}

func (r *Reconciler) View() View {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v := View{
		SessionState:   r.state,
		Scoreboard:     cloneScoreboard(r.scoreboard),
		Cheats:         make(map[string]bool, len(r.cheats)),
		HasGameStarted: r.hasGameStartedLocked(),
	}
	if r.state.ActiveError != nil {
		msg := *r.state.ActiveError
		v.ActiveError = &msg
	}
	if r.snapshot != nil {
		s := r.snapshot.Clone()
		v.Snapshot = &s
	}
	for id, on := range r.cheats {
		v.Cheats[id] = on
	}
	return v
}

// HasGameStarted: PLAYING and not on the round summary
func (r *Reconciler) HasGameStarted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasGameStartedLocked()
}

func (r *Reconciler) hasGameStartedLocked() bool {
	return r.snapshot != nil && r.snapshot.Status == domain.StatusPlaying && !r.state.ShowRoundSummary
}

// Join records the routing ids, connects and subscribes. Pushes land in
// Inbox until ctx is done.
func (r *Reconciler) Join(ctx context.Context, gameID, playerID, playerName string) error {
	r.mu.Lock()
	r.state.GameID = gameID
	r.state.PlayerID = playerID
	r.state.PlayerName = playerName
	r.mu.Unlock()

	err := r.client.ConnectAndJoin(ctx, gameID, playerID, playerName, session.Handlers{
		OnUpdate:     func(g domain.GameSnapshot) { r.publish(ctx, SnapshotEvent{Snapshot: g}) },
		OnScoreboard: func(b []domain.ScoreboardEntry) { r.publish(ctx, ScoreboardEvent{Entries: b}) },
		OnError:      func(msg string) { r.publish(ctx, ErrorEvent{Message: msg}) },
	})
	if err != nil {
		if errors.Is(err, domain.ErrConnectionFailure) {
			r.setError(MsgConnectionFailed)
		} else {
			r.setError("Error: " + err.Error())
		}
		r.log.Error("Reconciler.Join: join failed", "game_id", gameID, "player_id", playerID, "error", err)
		return err
	}

	r.log.Info("Reconciler.Join: joined", "game_id", gameID, "player_id", playerID)
	return nil
}

func (r *Reconciler) publish(ctx context.Context, ev Event) {
	select {
	case r.inbox <- ev:
	case <-ctx.Done():
	}
}

// SubmitPrediction sends the prediction for the current game and player.
// A rejection is turned into a user message; the sum-equals-round rule
// gets its own. Without a live connection nothing is sent and the
// prediction is not marked as submitted.
func (r *Reconciler) SubmitPrediction(ctx context.Context, prediction int) error {
	gameID, playerID := r.ids()
	if gameID == "" || playerID == "" {
		r.setError(MsgPredictionIDs)
		return fmt.Errorf("%w: %s", domain.ErrPreconditionNotMet, MsgPredictionIDs)
	}
	if r.client.State() != session.Connected {
		r.log.Warn("Reconciler.SubmitPrediction: not connected, prediction not sent", "game_id", gameID)
		return nil
	}

	if err := r.client.SendPrediction(ctx, gameID, playerID, prediction); err != nil {
		if strings.Contains(err.Error(), predictionSumMarker) {
			r.setError(MsgPredictionSum)
		} else {
			r.setError("! Fehler: " + err.Error())
		}
		return err
	}

	r.mu.Lock()
	r.state.ActiveError = nil
	r.state.HasSubmittedPrediction = true
	r.mu.Unlock()
	return nil
}

// PlayCard plays a card token, carrying the player's cheat flag, which
// is then disarmed whatever the outcome.
func (r *Reconciler) PlayCard(ctx context.Context, cardToken string) error {
	gameID, playerID := r.ids()
	if gameID == "" || playerID == "" {
		r.setError(MsgMissingIDs)
		return fmt.Errorf("%w: %s", domain.ErrPreconditionNotMet, MsgMissingIDs)
	}

	cheating := r.IsCheating(playerID)
	err := r.client.SendPlayCard(ctx, gameID, playerID, cardToken, cheating)

	r.mu.Lock()
	r.cheats[playerID] = false
	if err != nil {
		msg := "! Fehler: " + err.Error()
		r.state.ActiveError = &msg
	} else {
		r.state.ActiveError = nil
	}
	r.mu.Unlock()

	return err
}

func (r *Reconciler) StartGame(ctx context.Context) error {
	return r.gameCommand(ctx, "start", r.client.SendStartGame)
}

func (r *Reconciler) ProceedToNextRound(ctx context.Context) error {
	return r.gameCommand(ctx, "proceed", r.client.SendProceedToNextRound)
}

// ForceEndGame ends the game for every player
func (r *Reconciler) ForceEndGame(ctx context.Context) error {
	return r.gameCommand(ctx, "force-end", r.client.SendForceEndGame)
}

// ReturnToLobby sends every player back to the lobby
func (r *Reconciler) ReturnToLobby(ctx context.Context) error {
	return r.gameCommand(ctx, "return-to-lobby", r.client.SendReturnToLobby)
}

func (r *Reconciler) gameCommand(ctx context.Context, name string, send func(context.Context, string) error) error {
	gameID, _ := r.ids()
	if gameID == "" {
		r.log.Error("Reconciler: game id is empty", "command", name)
		r.setError(MsgMissingGameID)
		return fmt.Errorf("%w: %s: %s", domain.ErrPreconditionNotMet, name, MsgMissingGameID)
	}
	if err := send(ctx, gameID); err != nil {
		r.setError("! Fehler: " + err.Error())
		return err
	}
	return nil
}

// ClearLastTrickWinner drops the trick winner from the local snapshot
// once it has been shown
func (r *Reconciler) ClearLastTrickWinner() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot == nil {
		return
	}
	s := r.snapshot.Clone()
	s.LastTrickWinnerID = nil
	r.snapshot = &s
}

// EndGameEarly marks the local snapshot ENDED without asking the server
func (r *Reconciler) EndGameEarly() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot != nil {
		s := r.snapshot.Clone()
		s.Status = domain.StatusEnded
		r.snapshot = &s
	}
	r.state.ShowRoundSummary = false
}

// Reset forgets the game state and the player. The game id and the cheat
// flags are kept so the player can rejoin the same game.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	gameID := r.state.GameID
	r.state = initialState()
	r.state.GameID = gameID
	r.snapshot = nil
	r.scoreboard = nil
}

func (r *Reconciler) IsCheating(playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cheats[playerID]
}

// ToggleCheat flips the player's cheat flag and flashes the torch when
// it turns on. It returns the new value.
func (r *Reconciler) ToggleCheat(playerID string) bool {
	r.mu.Lock()
	on := !r.cheats[playerID]
	r.cheats[playerID] = on
	r.mu.Unlock()

	if on && r.torch != nil {
		r.torch.Flash(CheatFlashDuration)
	}
	r.log.Debug("Reconciler.ToggleCheat", "player_id", playerID, "cheating", on)
	return on
}

func (r *Reconciler) ids() (string, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.GameID, r.state.PlayerID
}

func (r *Reconciler) setError(msg string) {
	r.mu.Lock()
	r.state.ActiveError = &msg
	r.mu.Unlock()
}
