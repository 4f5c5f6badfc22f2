// Package transport opens stream connections and turns them into frame sources.
package transport

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
)

// DefaultReadLimit caps a single inbound message (one encoded frame).
const DefaultReadLimit = 32 << 20

// Conn is the subset of *websocket.Conn the renderer reads from.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a connection to a stream address.
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// WebSocketDialer dials binary frame streams with gorilla/websocket.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64
	Header           http.Header
}

func (d WebSocketDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	conn, resp, err := dialer.DialContext(ctx, address, d.Header)
	if err != nil {
		if resp != nil {
			return nil, errors.Annotatef(err, "dial %s (HTTP %d)", address, resp.StatusCode)
		}
		return nil, errors.Annotatef(err, "dial %s", address)
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)
	return conn, nil
}

// IsClosed reports whether err marks an orderly end of stream rather than a failure.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	cause := errors.Cause(err)
	if cause == io.EOF {
		return true
	}
	return websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
