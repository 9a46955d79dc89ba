package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wizard_client/internal/logger"
	"wizard_client/internal/metrics"
	"wizard_client/internal/stomp"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 30 * time.Second
	pingPeriod       = 25 * time.Second
	handshakeTimeout = 10 * time.Second
	disconnectWait   = time.Second
	maxMessageSize   = 1 << 20
	defaultBuffer    = 64
)

// TokenFunc supplies the bearer token for the CONNECT frame
type TokenFunc func() (string, error)

// StompDialer connects to a STOMP broker over WebSocket
type StompDialer struct {
	// Heartbeat is proposed in both directions; 0 disables STOMP heart-beats
	Heartbeat        time.Duration
	HandshakeTimeout time.Duration
	// BufferSize is the per-subscription frame buffer
	BufferSize int
	Token      TokenFunc
	WSDialer   *websocket.Dialer

	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewStompDialer(log *slog.Logger, m *metrics.Metrics) *StompDialer {
	if log == nil {
		log = logger.Component("transport")
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &StompDialer{
		HandshakeTimeout: handshakeTimeout,
		BufferSize:       defaultBuffer,
		log:              log,
		metrics:          m,
	}
}

func (d *StompDialer) Connect(ctx context.Context, address string) (Conn, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parse address: %w", err)
	}

	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = handshakeTimeout
	}

	wsd := d.WSDialer
	if wsd == nil {
		wsd = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
			Subprotocols:     stomp.Subprotocols,
		}
	}

	ws, resp, err := wsd.DialContext(ctx, address, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http %d)", address, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	// unblock the handshake read if ctx is cancelled
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	hb := d.Heartbeat.Milliseconds()
	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2,1.1,1.0",
		frame.Host, u.Hostname(),
		frame.HeartBeat, fmt.Sprintf("%d,%d", hb, hb),
	)
	if d.Token != nil {
		tok, err := d.Token()
		if err != nil {
			_ = ws.Close()
			return nil, fmt.Errorf("auth token: %w", err)
		}
		connect.Header.Set("Authorization", "Bearer "+tok)
	}

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	data, err := stomp.Encode(connect)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	_ = ws.SetWriteDeadline(deadline)
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("send CONNECT: %w", err)
	}

	_ = ws.SetReadDeadline(deadline)
	var reply *frame.Frame
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			_ = ws.Close()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("await CONNECTED: %w", err)
		}
		if stomp.IsHeartbeat(data) {
			continue
		}
		if reply, err = stomp.Decode(data); err != nil {
			_ = ws.Close()
			return nil, fmt.Errorf("await CONNECTED: %w", err)
		}
		break
	}

	switch reply.Command {
	case frame.CONNECTED:
	case frame.ERROR:
		_ = ws.Close()
		msg := reply.Header.Get(frame.Message)
		return nil, fmt.Errorf("broker refused connection: %s %s", msg, strings.TrimSpace(string(reply.Body)))
	default:
		_ = ws.Close()
		return nil, fmt.Errorf("unexpected %s frame during handshake", reply.Command)
	}

	_ = ws.SetReadDeadline(time.Time{})
	_ = ws.SetWriteDeadline(time.Time{})

	bufSize := d.BufferSize
	if bufSize <= 0 {
		bufSize = defaultBuffer
	}

	c := &stompConn{
		ws:       ws,
		outbound: make(chan writeReq, 16),
		subs:     make(map[string]*stompSub),
		done:     make(chan struct{}),
		bufSize:  bufSize,
		readWait: pongWait,
		log:      d.log.With("address", address),
		metrics:  d.metrics,
	}
	c.negotiateHeartbeat(d.Heartbeat, reply)

	version := reply.Header.Get(frame.Version)
	c.log.Info("StompConn: connected", "version", version, "send_heartbeat", c.sendBeat, "read_wait", c.readWait)

	go c.writePump()
	go c.readPump()

	return c, nil
}

type writeReq struct {
	data   []byte
	result chan error
}

type stompConn struct {
	ws       *websocket.Conn
	outbound chan writeReq

	mu     sync.RWMutex
	subs   map[string]*stompSub
	closed bool

	done      chan struct{}
	closeOnce sync.Once
	err       error

	bufSize  int
	sendBeat time.Duration
	readWait time.Duration

	log     *slog.Logger
	metrics *metrics.Metrics
}

// negotiateHeartbeat applies the STOMP rule: each side uses the max of what
// one offers and the other wants, and 0 on either side disables it.
func (c *stompConn) negotiateHeartbeat(client time.Duration, connected *frame.Frame) {
	sx, sy := stomp.HeartBeat(connected)
	if client > 0 && sy > 0 {
		c.sendBeat = max(client, sy)
	}
	if client > 0 && sx > 0 {
		if in := 3 * max(client, sx); in > c.readWait {
			c.readWait = in
		}
	}
}

func (c *stompConn) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended (nil for a clean Close)
func (c *stompConn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *stompConn) Send(ctx context.Context, destination, body string) error {
	f := frame.New(frame.SEND,
		frame.Destination, destination,
		frame.ContentType, "application/json;charset=UTF-8",
	)
	f.Body = []byte(body)
	if err := c.writeFrame(ctx, f); err != nil {
		return fmt.Errorf("send to %s: %w", destination, err)
	}
	return nil
}

func (c *stompConn) Subscribe(ctx context.Context, destination string) (Subscription, error) {
	s := &stompSub{
		id:     uuid.NewString(),
		dest:   destination,
		conn:   c,
		frames: make(chan string, c.bufSize),
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.subs[s.id] = s
	c.mu.Unlock()

	f := frame.New(frame.SUBSCRIBE,
		frame.Id, s.id,
		frame.Destination, destination,
		frame.Ack, "auto",
	)
	if err := c.writeFrame(ctx, f); err != nil {
		c.mu.Lock()
		delete(c.subs, s.id)
		c.mu.Unlock()
		s.finish()
		return nil, fmt.Errorf("subscribe %s: %w", destination, err)
	}

	c.log.Debug("StompConn.Subscribe: subscribed", "destination", destination, "id", s.id)
	return s, nil
}

func (c *stompConn) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), disconnectWait)
	defer cancel()
	if err := c.writeFrame(ctx, frame.New(frame.DISCONNECT)); err != nil {
		c.log.Debug("StompConn.Close: DISCONNECT not sent", "error", err)
	}

	c.shutdown(nil)
	return nil
}

func (c *stompConn) writeFrame(ctx context.Context, f *frame.Frame) error {
	data, err := stomp.Encode(f)
	if err != nil {
		return err
	}
	return c.write(ctx, data)
}

func (c *stompConn) write(ctx context.Context, data []byte) error {
	req := writeReq{data: data, result: make(chan error, 1)}

	select {
	case c.outbound <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *stompConn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.err = err

		c.mu.Lock()
		c.closed = true
		subs := make([]*stompSub, 0, len(c.subs))
		for id, s := range c.subs {
			subs = append(subs, s)
			delete(c.subs, id)
		}
		c.mu.Unlock()

		close(c.done)
		for _, s := range subs {
			s.finish()
		}

		if err != nil {
			c.log.Warn("StompConn: connection lost", "error", err)
		} else {
			c.log.Info("StompConn: closed")
		}
	})
}

//read
func (c *stompConn) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.readWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.readWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				c.shutdown(nil)
			default:
				c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.readWait))

		if stomp.IsHeartbeat(data) {
			continue
		}

		f, err := stomp.Decode(data)
		if err != nil {
			c.log.Warn("StompConn.readPump: unparseable frame", "error", err, "bytes", len(data))
			continue
		}

		switch f.Command {
		case frame.MESSAGE:
			c.route(f)
		case frame.RECEIPT:
			c.log.Debug("StompConn.readPump: receipt", "receipt_id", f.Header.Get(frame.ReceiptId))
		case frame.ERROR:
			msg := f.Header.Get(frame.Message)
			c.log.Error("StompConn.readPump: broker error", "message", msg, "body", string(f.Body))
			c.shutdown(fmt.Errorf("%w: broker error: %s", ErrClosed, msg))
			_ = c.ws.Close()
			return
		default:
			c.log.Debug("StompConn.readPump: ignoring frame", "command", f.Command)
		}
	}
}

func (c *stompConn) route(f *frame.Frame) {
	id := f.Header.Get(frame.Subscription)

	c.mu.RLock()
	s := c.subs[id]
	c.mu.RUnlock()

	if s == nil {
		c.metrics.FramesUnrouted.Inc()
		c.log.Debug("StompConn.route: no subscription", "subscription", id)
		return
	}
	s.deliver(string(f.Body))
}

//write
func (c *stompConn) writePump() {
	ping := time.NewTicker(pingPeriod)
	var beat <-chan time.Time
	if c.sendBeat > 0 {
		t := time.NewTicker(c.sendBeat)
		defer t.Stop()
		beat = t.C
	}
	defer func() {
		ping.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case req := <-c.outbound:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.ws.WriteMessage(websocket.TextMessage, req.data)
			req.result <- err
			if err != nil {
				c.shutdown(fmt.Errorf("%w: write: %v", ErrClosed, err))
				return
			}

		case <-beat:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte("\n")); err != nil {
				c.shutdown(fmt.Errorf("%w: heart-beat: %v", ErrClosed, err))
				return
			}

		case <-ping.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown(fmt.Errorf("%w: ping: %v", ErrClosed, err))
				return
			}

		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *stompConn) unsubscribe(s *stompSub) {
	c.mu.Lock()
	delete(c.subs, s.id)
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		if err := c.writeFrame(ctx, frame.New(frame.UNSUBSCRIBE, frame.Id, s.id)); err != nil {
			c.log.Debug("StompConn.unsubscribe: UNSUBSCRIBE not sent", "id", s.id, "error", err)
		}
	}()
}

type stompSub struct {
	id     string
	dest   string
	conn   *stompConn
	frames chan string
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (s *stompSub) Destination() string   { return s.dest }
func (s *stompSub) Frames() <-chan string { return s.frames }

func (s *stompSub) Cancel() {
	if s.finish() {
		s.conn.unsubscribe(s)
	}
}

// deliver blocks while the buffer is full; frames are never dropped
func (s *stompSub) deliver(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.frames <- body:
	case <-s.done:
	case <-s.conn.done:
	}
}

// finish closes the subscription; true only for the call that did it
func (s *stompSub) finish() bool {
	first := false
	s.once.Do(func() {
		first = true
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.frames)
		s.mu.Unlock()
	})
	return first
}
