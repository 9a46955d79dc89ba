// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"sync"

	"wizard_client/internal/transport"
)

// Sent is one recorded Send call
type Sent struct {
	Destination string
	Body        string
}

// Dialer hands out FakeConns. Set Err to make Connect fail.
type Dialer struct {
	mu        sync.Mutex
	Err       error
	Conns     []*Conn
	Addresses []string
}

func (d *Dialer) Connect(ctx context.Context, address string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Addresses = append(d.Addresses, address)
	if d.Err != nil {
		return nil, d.Err
	}
	c := NewConn()
	d.Conns = append(d.Conns, c)
	return c, nil
}

// Last returns the most recent connection, or nil
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Conns) == 0 {
		return nil
	}
	return d.Conns[len(d.Conns)-1]
}

func (d *Dialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Addresses)
}

type Conn struct {
	mu      sync.Mutex
	sent    []Sent
	subs    map[string][]*Sub
	subbed  chan string
	SendErr error
	closed  bool
	done    chan struct{}
}

func NewConn() *Conn {
	return &Conn{
		subs:   make(map[string][]*Sub),
		subbed: make(chan string, 64),
		done:   make(chan struct{}),
	}
}

func (c *Conn) Send(ctx context.Context, destination, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.sent = append(c.sent, Sent{Destination: destination, Body: body})
	return nil
}

func (c *Conn) Subscribe(ctx context.Context, destination string) (transport.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, transport.ErrClosed
	}
	s := &Sub{dest: destination, frames: make(chan string, 64)}
	c.subs[destination] = append(c.subs[destination], s)
	c.subbed <- destination
	return s, nil
}

func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	for _, subs := range c.subs {
		for _, s := range subs {
			s.Cancel()
		}
	}
	return nil
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Sent returns a copy of everything sent so far
func (c *Conn) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Subscribed is fed the destination of every Subscribe call
func (c *Conn) Subscribed() <-chan string { return c.subbed }

// Push delivers a frame to every live subscription on destination.
// It reports how many subscriptions received it.
func (c *Conn) Push(destination, body string) int {
	c.mu.Lock()
	subs := append([]*Sub(nil), c.subs[destination]...)
	c.mu.Unlock()

	n := 0
	for _, s := range subs {
		if s.push(body) {
			n++
		}
	}
	return n
}

type Sub struct {
	dest   string
	frames chan string
	mu     sync.Mutex
	closed bool
}

func (s *Sub) Destination() string   { return s.dest }
func (s *Sub) Frames() <-chan string { return s.frames }

func (s *Sub) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.frames)
}

func (s *Sub) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Sub) push(body string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.frames <- body
	return true
}
