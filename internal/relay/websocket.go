package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSDialer connects to a controller over a WebSocket
type WSDialer struct {
	URL              string
	HandshakeTimeout time.Duration
	Header           http.Header
}

// Dial implements Dialer
func (d WSDialer) Dial(ctx context.Context) (Controller, error) {
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}

	//nolint:bodyclose // WebSocket upgrade - response body handled by gorilla/websocket
	conn, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, fmt.Errorf("websocket connect %s: %w", d.URL, err)
	}
	return NewWSController(conn), nil
}

// WSController is a Controller over a gorilla websocket connection
type WSController struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWSController wraps an established connection
func NewWSController(conn *websocket.Conn) *WSController {
	return &WSController{conn: conn}
}

// Send writes v as a JSON text message
func (c *WSController) Send(ctx context.Context, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Receive blocks for the next directive. Cancelling ctx closes the connection.
func (c *WSController) Receive(ctx context.Context) (Directive, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	var d Directive
	if err := c.conn.ReadJSON(&d); err != nil {
		if ctx.Err() != nil {
			return Directive{}, ctx.Err()
		}
		return Directive{}, err
	}
	return d, nil
}

// Close sends a close frame and closes the connection
func (c *WSController) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
