package session

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"wizard_client/internal/codec"
	"wizard_client/internal/domain"
	"wizard_client/internal/transport"
)

// Subscription is one live topic subscription drained by its own goroutine
type Subscription struct {
	dest   string
	kind   codec.TopicKind
	ts     transport.Subscription
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Destination() string { return s.dest }

// Done is closed when the subscription goroutine has returned
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Cancel stops the subscription. It is idempotent and safe after the
// connection is gone.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		s.ts.Cancel()
	})
}

// SubscribeGameUpdates delivers decoded snapshots from /topic/game/{playerId}.
// Without a live connection it does nothing and returns (nil, nil).
func (c *Client) SubscribeGameUpdates(ctx context.Context, playerID string, onUpdate func(domain.GameSnapshot)) (*Subscription, error) {
	return subscribe(c, ctx, codec.TopicGame, domain.GameTopic(playerID), codec.DecodeGameSnapshot, onUpdate)
}

// SubscribeScoreboard delivers decoded scoreboards from /topic/game/{gameId}/scoreboard
func (c *Client) SubscribeScoreboard(ctx context.Context, gameID string, onScoreboard func([]domain.ScoreboardEntry)) (*Subscription, error) {
	return subscribe(c, ctx, codec.TopicScoreboard, domain.ScoreboardTopic(gameID), codec.DecodeScoreboard, onScoreboard)
}

// SubscribeErrors delivers error texts from /topic/errors/{playerId}
func (c *Client) SubscribeErrors(ctx context.Context, playerID string, onError func(string)) (*Subscription, error) {
	return subscribe(c, ctx, codec.TopicError, domain.ErrorTopic(playerID), codec.DecodeError, onError)
}

func subscribe[T any](c *Client, ctx context.Context, kind codec.TopicKind, dest string, decode func(string) (T, error), callback func(T)) (*Subscription, error) {
	conn := c.live()
	if conn == nil {
		c.log.Debug("Client.subscribe: not connected, skipping", "destination", dest)
		return nil, nil
	}

	ts, err := conn.Subscribe(ctx, dest)
	if err != nil {
		c.log.Error("Client.subscribe: subscribe failed", "destination", dest, "error", err)
		return nil, fmt.Errorf("subscribe %s: %w", dest, err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		dest:   dest,
		kind:   kind,
		ts:     ts,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if c.conn != conn {
		// replaced or closed while we were subscribing
		c.mu.Unlock()
		s.Cancel()
		close(s.done)
		return nil, nil
	}
	c.subs[s] = struct{}{}
	c.mu.Unlock()

	c.log.Info("Client.subscribe: subscribed", "destination", dest, "topic", kind.String())
	go c.drain(sctx, s, func(text string) error {
		v, err := decode(text)
		if err != nil {
			return err
		}
		c.invoke(s, func() { callback(v) })
		return nil
	})
	return s, nil
}

// drain reads frames in order until the subscription ends. A frame that
// fails to decode is logged, counted and skipped.
func (c *Client) drain(ctx context.Context, s *Subscription, handle func(string) error) {
	defer close(s.done)
	defer c.forget(s)
	defer s.Cancel()

	topic := s.kind.String()
	frames := s.ts.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-frames:
			if !ok {
				c.log.Debug("Client.drain: stream ended", "destination", s.dest)
				return
			}
			c.metrics.FramesReceived.WithLabelValues(topic).Inc()
			if err := handle(text); err != nil {
				c.metrics.FramesMalformed.WithLabelValues(topic).Inc()
				c.log.Warn("Client.drain: skipping frame", "destination", s.dest, "error", err)
			}
		}
	}
}

func (c *Client) invoke(s *Subscription, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Client.drain: callback panicked", "destination", s.dest, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (c *Client) forget(s *Subscription) {
	c.mu.Lock()
	delete(c.subs, s)
	c.mu.Unlock()
}
