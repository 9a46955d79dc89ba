// Package session owns the single connection to the game server: it
// connects, sends commands and runs one goroutine per topic subscription.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wizard_client/internal/codec"
	"wizard_client/internal/domain"
	"wizard_client/internal/logger"
	"wizard_client/internal/metrics"
	"wizard_client/internal/transport"
)

// DefaultJoinGracePeriod is how long ConnectAndJoin waits between
// subscribing and sending join, so the server has registered the
// subscriptions before it answers. It is a heuristic, not a guarantee.
const DefaultJoinGracePeriod = 100 * time.Millisecond

const DefaultAddress = "ws://127.0.0.1:8080/ws"

type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Failed
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type Option func(*Client)

func WithAddress(address string) Option {
	return func(c *Client) { c.address = address }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithJoinGrace overrides DefaultJoinGracePeriod; 0 disables the wait
func WithJoinGrace(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.grace = d
		}
	}
}

// Client is safe for concurrent use
type Client struct {
	dialer  transport.Dialer
	address string
	grace   time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics

	// serializes Connect so two attempts never race to install a conn
	connectMu sync.Mutex

	mu      sync.Mutex
	state   ConnState
	conn    transport.Conn
	lastErr error
	subs    map[*Subscription]struct{}
}

func New(dialer transport.Dialer, opts ...Option) *Client {
	c := &Client{
		dialer:  dialer,
		address: DefaultAddress,
		grace:   DefaultJoinGracePeriod,
		log:     logger.Component("session"),
		metrics: metrics.Discard(),
		subs:    make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError is the most recent connection failure, wrapping
// domain.ErrConnectionFailure, or nil
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Client) JoinGracePeriod() time.Duration { return c.grace }

// Connect makes one connection attempt and reports whether it succeeded.
// An existing connection and its subscriptions are torn down first.
// There is no retry; on failure the state is Failed and LastError says why.
func (c *Client) Connect(ctx context.Context) bool {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	old, subs := c.detachLocked()
	c.state = Connecting
	c.mu.Unlock()
	c.teardown(old, subs)

	c.log.Info("Client.Connect: connecting", "address", c.address)
	conn, err := c.dialer.Connect(ctx, c.address)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = Failed
		c.lastErr = fmt.Errorf("%w: %v", domain.ErrConnectionFailure, err)
		c.metrics.ConnectAttempts.WithLabelValues("error").Inc()
		c.log.Error("Client.Connect: connection failed", "address", c.address, "error", err)
		return false
	}

	c.conn = conn
	c.state = Connected
	c.lastErr = nil
	c.metrics.ConnectAttempts.WithLabelValues("ok").Inc()
	c.log.Info("Client.Connect: connected", "address", c.address)
	go c.watch(conn)
	return true
}

// watch flips the state to Failed if the connection dies underneath us
func (c *Client) watch(conn transport.Conn) {
	<-conn.Done()

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.state = Failed
	c.lastErr = fmt.Errorf("%w: connection lost", domain.ErrConnectionFailure)
	c.mu.Unlock()

	c.log.Warn("Client.watch: connection lost", "address", c.address)
}

// Close cancels every subscription and closes the connection.
// Calling it again is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	conn, subs := c.detachLocked()
	c.state = Disconnected
	c.mu.Unlock()

	return c.teardown(conn, subs)
}

func (c *Client) detachLocked() (transport.Conn, []*Subscription) {
	conn := c.conn
	c.conn = nil
	subs := make([]*Subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
		delete(c.subs, s)
	}
	return conn, subs
}

func (c *Client) teardown(conn transport.Conn, subs []*Subscription) error {
	for _, s := range subs {
		s.Cancel()
	}
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		c.log.Warn("Client.Close: close failed", "error", err)
		return err
	}
	return nil
}

// live returns the connection if it is usable, nil otherwise
func (c *Client) live() transport.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return nil
	}
	return c.conn
}

func (c *Client) SendJoin(ctx context.Context, gameID, playerID, playerName string) error {
	return c.send(ctx, domain.JoinRequest{GameID: gameID, PlayerID: playerID, PlayerName: playerName})
}

func (c *Client) SendPrediction(ctx context.Context, gameID, playerID string, prediction int) error {
	return c.send(ctx, domain.PredictionRequest{GameID: gameID, PlayerID: playerID, Prediction: prediction})
}

func (c *Client) SendPlayCard(ctx context.Context, gameID, playerID, cardToken string, cheating bool) error {
	return c.send(ctx, domain.PlayCardRequest{GameID: gameID, PlayerID: playerID, Card: cardToken, Cheating: cheating})
}

func (c *Client) SendStartGame(ctx context.Context, gameID string) error {
	return c.send(ctx, domain.GameIDCommand{Kind: domain.KindStartGame, GameID: gameID})
}

func (c *Client) SendProceedToNextRound(ctx context.Context, gameID string) error {
	return c.send(ctx, domain.GameIDCommand{Kind: domain.KindProceedToNextRound, GameID: gameID})
}

func (c *Client) SendForceEndGame(ctx context.Context, gameID string) error {
	return c.send(ctx, domain.GameIDCommand{Kind: domain.KindForceEndGame, GameID: gameID})
}

func (c *Client) SendReturnToLobby(ctx context.Context, gameID string) error {
	return c.send(ctx, domain.GameIDCommand{Kind: domain.KindReturnToLobby, GameID: gameID})
}

// send validates and encodes before looking at the connection, so a
// command with missing ids is rejected even while disconnected. A valid
// command without a live connection is dropped and nil is returned.
func (c *Client) send(ctx context.Context, cmd domain.Command) error {
	dest := cmd.Destination()

	body, err := codec.EncodeCommand(cmd)
	if err != nil {
		c.metrics.CommandsSent.WithLabelValues(dest, "invalid").Inc()
		c.log.Warn("Client.send: command not sent", "destination", dest, "error", err)
		if errors.Is(err, domain.ErrPreconditionNotMet) || errors.Is(err, domain.ErrInvalidCommand) {
			return err
		}
		return fmt.Errorf("encode %s: %w", dest, err)
	}

	conn := c.live()
	if conn == nil {
		c.metrics.CommandsSent.WithLabelValues(dest, "dropped").Inc()
		c.log.Debug("Client.send: not connected, dropping command", "destination", dest)
		return nil
	}

	if err := conn.Send(ctx, dest, body); err != nil {
		c.metrics.CommandsSent.WithLabelValues(dest, "error").Inc()
		c.markFailed(conn, err)
		c.log.Error("Client.send: send failed", "destination", dest, "error", err)
		return fmt.Errorf("%w: %s: %v", domain.ErrCommandRejected, dest, err)
	}

	c.metrics.CommandsSent.WithLabelValues(dest, "ok").Inc()
	c.log.Debug("Client.send: sent", "destination", dest)
	return nil
}

// markFailed moves to Failed so the next Send* is a quiet no-op
// rather than a second report of the same broken connection
func (c *Client) markFailed(conn transport.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	c.state = Failed
	c.lastErr = fmt.Errorf("%w: %v", domain.ErrConnectionFailure, err)
}

// Handlers are the callbacks ConnectAndJoin subscribes. Nil entries are
// not subscribed.
type Handlers struct {
	OnUpdate     func(domain.GameSnapshot)
	OnScoreboard func([]domain.ScoreboardEntry)
	OnError      func(string)
}

// ConnectAndJoin connects, subscribes to the player's game and error
// topics, waits the join grace period, sends join and then subscribes
// to the game scoreboard. A connection failure returns LastError.
func (c *Client) ConnectAndJoin(ctx context.Context, gameID, playerID, playerName string, h Handlers) error {
	if !c.Connect(ctx) {
		return c.LastError()
	}

	if h.OnUpdate != nil {
		if _, err := c.SubscribeGameUpdates(ctx, playerID, h.OnUpdate); err != nil {
			return err
		}
	}
	if h.OnError != nil {
		if _, err := c.SubscribeErrors(ctx, playerID, h.OnError); err != nil {
			return err
		}
	}

	if err := c.waitGrace(ctx); err != nil {
		return err
	}

	if err := c.SendJoin(ctx, gameID, playerID, playerName); err != nil {
		return err
	}

	if h.OnScoreboard != nil {
		if _, err := c.SubscribeScoreboard(ctx, gameID, h.OnScoreboard); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) waitGrace(ctx context.Context) error {
	if c.grace <= 0 {
		return nil
	}
	t := time.NewTimer(c.grace)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
