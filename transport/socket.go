package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vinayprograms/wsrpc/errors"
)

// Socket is one open, message-oriented connection. *websocket.Conn
// satisfies it.
type Socket interface {
	ReadMessage() (frameType int, data []byte, err error)
	WriteMessage(frameType int, data []byte) error
	WriteControl(frameType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// Dialer opens sockets. A dial must give up when ctx is done.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebSocketDialer creates a dialer with the given handshake timeout.
func NewWebSocketDialer(handshakeTimeout time.Duration) *WebSocketDialer {
	return &WebSocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

// Dial performs the websocket handshake.
func (d *WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// conn is the client's handle on one connected socket.
type conn struct {
	id      string
	sock    Socket
	writeMu sync.Mutex
	open    atomic.Bool
	done    chan struct{} // closed when the read loop exits
}

func newConn(id string, sock Socket) *conn {
	c := &conn{id: id, sock: sock, done: make(chan struct{})}
	c.open.Store(true)
	return c
}

func (c *conn) isOpen() bool {
	return c.open.Load()
}

// write sends one frame. Writes are serialized; the socket allows only one
// concurrent writer. A write after the close frame fails with CLOSED.
func (c *conn) write(frameType int, data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if timeout > 0 {
		if d, ok := c.sock.(writeDeadliner); ok {
			if err := d.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				return err
			}
		}
	}
	err := c.sock.WriteMessage(frameType, data)
	if err == websocket.ErrCloseSent {
		return errors.WrapWithCode(err, errors.ErrCodeClosed, "connection is closing")
	}
	return err
}

// ping sends a keepalive ping frame.
func (c *conn) ping(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = time.Second
	}
	return c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// shutdown marks the socket closed and, if it was open, sends a close frame
// and closes it. It reports whether this call did the closing. The socket is
// closed even if sending the close frame panics.
func (c *conn) shutdown() (closed bool, err error) {
	if !c.open.Swap(false) {
		return false, nil
	}
	defer func() { err = c.sock.Close() }()
	_ = c.sock.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return true, nil
}
