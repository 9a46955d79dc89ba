// Package stomptest runs a minimal STOMP broker over httptest for tests.
package stomptest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"

	"wizard_client/internal/stomp"
)

// Broker accepts one client at a time. Every frame the client sends after
// CONNECT shows up on Next; Publish pushes MESSAGE frames back.
type Broker struct {
	srv    *httptest.Server
	refuse string

	// Connects receives every CONNECT frame
	Connects chan *frame.Frame
	frames   chan *frame.Frame

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	subs    map[string]string // destination -> subscription id
}

// NewBroker starts a broker closed on test cleanup. A non-empty refuse
// answers CONNECT with an ERROR frame carrying it.
func NewBroker(t *testing.T, refuse string) *Broker {
	t.Helper()
	b := &Broker{
		refuse:   refuse,
		Connects: make(chan *frame.Frame, 4),
		frames:   make(chan *frame.Frame, 64),
		subs:     make(map[string]string),
	}
	upgrader := websocket.Upgrader{Subprotocols: stomp.Subprotocols}

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		b.serve(conn)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *Broker) serve(conn *websocket.Conn) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	f, err := stomp.Decode(data)
	if err != nil {
		return
	}
	b.Connects <- f

	if b.refuse != "" {
		if out, err := stomp.Encode(frame.New(frame.ERROR, frame.Message, b.refuse)); err == nil {
			_ = conn.WriteMessage(websocket.TextMessage, out)
		}
		return
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	b.Write(frame.New(frame.CONNECTED, frame.Version, "1.2", frame.HeartBeat, "0,0"))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if stomp.IsHeartbeat(data) {
			continue
		}
		f, err := stomp.Decode(data)
		if err != nil {
			continue
		}
		if f.Command == frame.SUBSCRIBE {
			b.mu.Lock()
			b.subs[f.Header.Get(frame.Destination)] = f.Header.Get(frame.Id)
			b.mu.Unlock()
		}
		b.frames <- f
		if f.Command == frame.DISCONNECT {
			return
		}
	}
}

// URL is the ws:// endpoint
func (b *Broker) URL() string {
	return strings.Replace(b.srv.URL, "http", "ws", 1) + "/ws"
}

// Write sends a raw frame to the connected client
func (b *Broker) Write(f *frame.Frame) {
	out, err := stomp.Encode(f)
	if err != nil {
		return
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, out)
}

// Publish sends a MESSAGE to whoever subscribed to dest
func (b *Broker) Publish(dest, body string) {
	b.mu.Lock()
	id := b.subs[dest]
	b.mu.Unlock()
	f := frame.New(frame.MESSAGE, frame.Subscription, id, frame.Destination, dest, frame.MessageId, "m-1")
	f.Body = []byte(body)
	b.Write(f)
}

// Subscribed reports whether a SUBSCRIBE for dest has been seen
func (b *Broker) Subscribed(dest string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[dest]
	return ok
}

// Next returns the next client frame with the given command, skipping others
func (b *Broker) Next(t *testing.T, command string) *frame.Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-b.frames:
			if f.Command == command {
				return f
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s frame", command)
		}
	}
}
