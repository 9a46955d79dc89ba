// Package transport is the narrow pub/sub contract the session layer depends
// on, plus a STOMP-over-WebSocket implementation of it.
package transport

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("transport: connection closed")

type Dialer interface {
	Connect(ctx context.Context, address string) (Conn, error)
}

// Conn is one live pub/sub connection
type Conn interface {
	Send(ctx context.Context, destination, body string) error
	Subscribe(ctx context.Context, destination string) (Subscription, error)
	// Done is closed once the connection is gone, for whatever reason
	Done() <-chan struct{}
	Close() error
}

// Subscription delivers text frames for one destination in receipt order.
// Frames is closed after Cancel or when the connection ends. Cancel is
// idempotent and safe on a closed connection.
type Subscription interface {
	Destination() string
	Frames() <-chan string
	Cancel()
}
