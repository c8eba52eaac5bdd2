// Package client talks to a ronkey evaluation endpoint.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/codefionn/ronkey/internal/protocol"
	"github.com/gorilla/websocket"
)

// ErrClosed is returned after Close
var ErrClosed = errors.New("client closed")

// Client is one REPL session on a server. Eval calls are serialized; the
// protocol pairs each request with exactly one response.
type Client struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// Dial connects to url, e.g. ws://127.0.0.1:8000/eval
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	return &Client{conn: conn}, nil
}

// Eval sends source and waits for its response. A syntax error is a
// successful call returning an err envelope; the returned error is only
// set for transport failures.
func (c *Client) Eval(ctx context.Context, source string) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return protocol.Response{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return protocol.Response{}, err
	}

	// Unblock reads and writes if ctx ends first
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
		_ = c.conn.SetWriteDeadline(time.Now())
		close(fired)
	})
	defer func() {
		if !stop() {
			// ctx ended after the exchange finished; the expired deadlines
			// must not leak into the next call.
			<-fired
			_ = c.conn.SetReadDeadline(time.Time{})
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}()

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(source)); err != nil {
		return protocol.Response{}, c.fail(ctx, "send", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Response{}, c.fail(ctx, "receive", err)
	}

	return protocol.Decode(data)
}

// Close sends a normal closure and closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

// fail closes the client after a transport error. A failed read or write
// leaves the connection unusable and the request/response pairing unknown.
// c.mu must be held.
func (c *Client) fail(ctx context.Context, op string, err error) error {
	c.closed = true
	_ = c.conn.Close()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("failed to %s: %w", op, ctxErr)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
