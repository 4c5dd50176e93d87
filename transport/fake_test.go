package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

var errFakeClosed = fmt.Errorf("use of closed network connection")

type frame struct {
	ft   int
	data []byte
}

// fakeSocket is an in-memory Socket. Inbound frames are queued with push;
// writes are recorded and can be made to fail through writeHook.
type fakeSocket struct {
	mu        sync.Mutex
	writes    [][]byte
	attempts  int
	controls  []int
	readLimit int64

	// writeHook runs on every write attempt, counted from 1. A non-nil
	// result fails the write.
	writeHook func(n int) error

	inbound   chan frame
	closed    chan struct{}
	closeOnce sync.Once
	closes    int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		inbound: make(chan frame, 16),
		closed:  make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case f := <-s.inbound:
		return f.ft, f.data, nil
	case <-s.closed:
		return 0, nil, errFakeClosed
	}
}

func (s *fakeSocket) WriteMessage(ft int, data []byte) error {
	s.mu.Lock()
	s.attempts++
	n, hook := s.attempts, s.writeHook
	s.mu.Unlock()

	if hook != nil {
		if err := hook(n); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.writes = append(s.writes, append([]byte(nil), data...))
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) WriteControl(ft int, data []byte, deadline time.Time) error {
	s.mu.Lock()
	s.controls = append(s.controls, ft)
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) SetReadLimit(limit int64) {
	s.mu.Lock()
	s.readLimit = limit
	s.mu.Unlock()
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) push(ft int, data string) {
	s.inbound <- frame{ft: ft, data: []byte(data)}
}

// drop ends the read loop as if the peer went away.
func (s *fakeSocket) drop() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *fakeSocket) written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.writes...)
}

func (s *fakeSocket) writeAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *fakeSocket) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// fakeDialer fails the first `failures` dials, then hands out fake sockets.
type fakeDialer struct {
	clock clock.Clock

	mu       sync.Mutex
	failures int
	block    bool
	onDial   func(n int)
	times    []time.Time
	headers  []http.Header
	sockets  []*fakeSocket
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	d.mu.Lock()
	n := len(d.times) + 1
	if d.clock != nil {
		d.times = append(d.times, d.clock.Now())
	} else {
		d.times = append(d.times, time.Now())
	}
	d.headers = append(d.headers, header)
	fail, block, hook := n <= d.failures, d.block, d.onDial
	d.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, fmt.Errorf("dial %s: connection refused", url)
	}

	s := newFakeSocket()
	d.mu.Lock()
	d.sockets = append(d.sockets, s)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.times)
}

func (d *fakeDialer) gaps() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []time.Duration
	for i := 1; i < len(d.times); i++ {
		out = append(out, d.times[i].Sub(d.times[i-1]))
	}
	return out
}

func (d *fakeDialer) last() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sockets[len(d.sockets)-1]
}

// recorder is an Observer that keeps every event.
type recorder struct {
	mu       sync.Mutex
	messages []*Message
	errs     []error
	closes   int

	msgCh   chan *Message
	errCh   chan error
	closeCh chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		msgCh:   make(chan *Message, 16),
		errCh:   make(chan error, 16),
		closeCh: make(chan struct{}, 16),
	}
}

func (r *recorder) OnMessage(msg *Message) {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	r.msgCh <- msg
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.errCh <- err
}

func (r *recorder) OnClose() {
	r.mu.Lock()
	r.closes++
	r.mu.Unlock()
	r.closeCh <- struct{}{}
}

func (r *recorder) errList() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *recorder) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

func (r *recorder) nextMessage(t *testing.T) *Message {
	t.Helper()
	select {
	case m := <-r.msgCh:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func (r *recorder) nextError(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error")
		return nil
	}
}

func (r *recorder) waitClose(t *testing.T) {
	t.Helper()
	select {
	case <-r.closeCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for close")
	}
}

// drive runs fn on a goroutine and advances mock until it returns.
func drive(t *testing.T, mock *clock.Mock, fn func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			return err
		case <-deadline:
			require.FailNow(t, "operation did not finish")
		case <-time.After(time.Millisecond):
			mock.Add(100 * time.Millisecond)
		}
	}
}
