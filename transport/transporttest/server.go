// Package transporttest provides a scriptable websocket peer for testing
// code built on the transport package.
package transporttest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/wsrpc/telemetry"
)

// ErrClosed is returned by Accept and Peer.Next after the server or peer
// has gone away.
var ErrClosed = errors.New("transporttest: closed")

// Server accepts websocket handshakes on a local httptest server.
//
// In echo mode every text or binary frame is written back unchanged.
// Otherwise each accepted connection is handed out by Accept.
type Server struct {
	srv      *httptest.Server
	upgrader *websocket.Upgrader
	echo     bool

	mu       sync.Mutex
	refuse   int
	attempts int
	headers  []http.Header
	peers    []*Peer

	accepted chan *Peer
	done     chan struct{}
	once     sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithEcho makes the server echo every frame back to the sender.
func WithEcho() Option {
	return func(s *Server) { s.echo = true }
}

// WithRefusals makes the server reject the first n handshakes.
func WithRefusals(n int) Option {
	return func(s *Server) { s.refuse = n }
}

// NewServer starts a server. Callers must Close it.
func NewServer(opts ...Option) *Server {
	s := &Server{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		accepted: make(chan *Peer, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the server's http:// address.
func (s *Server) URL() string {
	return s.srv.URL
}

// WSURL returns the server's ws:// address.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// RefuseNext makes the next n handshakes fail with 503.
func (s *Server) RefuseNext(n int) {
	s.mu.Lock()
	s.refuse = n
	s.mu.Unlock()
}

// Attempts returns how many handshakes were attempted, refused or not.
func (s *Server) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// LastHeader returns the headers of the most recent handshake request.
func (s *Server) LastHeader() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.headers) == 0 {
		return nil
	}
	return s.headers[len(s.headers)-1].Clone()
}

// LastSpanContext returns the trace context propagated in the most recent
// handshake. It is invalid when the client sent none.
func (s *Server) LastSpanContext() trace.SpanContext {
	header := s.LastHeader()
	if header == nil {
		return trace.SpanContext{}
	}
	return trace.SpanContextFromContext(telemetry.ExtractHeader(context.Background(), header))
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.attempts++
	s.headers = append(s.headers, r.Header.Clone())
	refused := s.refuse > 0
	if refused {
		s.refuse--
	}
	s.mu.Unlock()

	if refused {
		http.Error(w, "refused", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p := newPeer(conn)
	s.mu.Lock()
	s.peers = append(s.peers, p)
	s.mu.Unlock()

	if s.echo {
		go p.echo()
		return
	}
	go p.readLoop()
	select {
	case s.accepted <- p:
	case <-s.done:
		p.Drop()
	}
}

// Accept waits for the next connection. It is unused in echo mode.
func (s *Server) Accept(ctx context.Context) (*Peer, error) {
	select {
	case p := <-s.accepted:
		return p, nil
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close drops every connection and stops the server.
func (s *Server) Close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		peers := s.peers
		s.peers = nil
		s.mu.Unlock()
		for _, p := range peers {
			p.Drop()
		}
		s.srv.Close()
	})
}

// Frame is one data frame received by a Peer.
type Frame struct {
	Type int
	Data []byte
}

// Peer is the server side of one accepted connection.
type Peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	frames  chan Frame
	closed  chan struct{}
	once    sync.Once
}

func newPeer(conn *websocket.Conn) *Peer {
	return &Peer{
		conn:   conn,
		frames: make(chan Frame, 64),
		closed: make(chan struct{}),
	}
}

func (p *Peer) readLoop() {
	defer p.markClosed()
	for {
		ft, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case p.frames <- Frame{Type: ft, Data: data}:
		case <-p.closed:
			return
		}
	}
}

func (p *Peer) echo() {
	defer p.markClosed()
	for {
		ft, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if err := p.Send(ft, data); err != nil {
			return
		}
	}
}

func (p *Peer) markClosed() {
	p.once.Do(func() { close(p.closed) })
}

// Send writes one frame of the given type.
func (p *Peer) Send(frameType int, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(frameType, data)
}

// SendText writes one text frame.
func (p *Peer) SendText(s string) error {
	return p.Send(websocket.TextMessage, []byte(s))
}

// SendJSON marshals v and writes it as a text frame.
func (p *Peer) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Send(websocket.TextMessage, data)
}

// Next returns the next frame sent by the client.
func (p *Peer) Next(ctx context.Context) (Frame, error) {
	select {
	case f := <-p.frames:
		return f, nil
	case <-p.closed:
		// Frames read before the close are still delivered.
		select {
		case f := <-p.frames:
			return f, nil
		default:
			return Frame{}, ErrClosed
		}
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Done is closed once the connection has stopped reading.
func (p *Peer) Done() <-chan struct{} {
	return p.closed
}

// CloseNormal sends a normal-closure close frame and closes the connection.
func (p *Peer) CloseNormal() error {
	p.writeMu.Lock()
	err := p.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	p.writeMu.Unlock()
	if cerr := p.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// Drop closes the underlying network connection without a close frame.
func (p *Peer) Drop() {
	_ = p.conn.NetConn().Close()
}
