package transporttest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, s *Server, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(s.WSURL(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEcho(t *testing.T) {
	s := NewServer(WithEcho())
	defer s.Close()

	conn := dial(t, s, nil)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"a":1}`)))

	ft, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, ft)
	assert.Equal(t, `{"a":1}`, string(data))
}

func TestRefusals(t *testing.T) {
	s := NewServer(WithRefusals(2))
	defer s.Close()

	for i := 0; i < 2; i++ {
		_, resp, err := websocket.DefaultDialer.Dial(s.WSURL(), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		resp.Body.Close()
	}
	dial(t, s, nil)
	assert.Equal(t, 3, s.Attempts())
}

func TestAcceptAndExchange(t *testing.T) {
	s := NewServer()
	defer s.Close()

	header := http.Header{}
	header.Set("X-Token", "abc")
	conn := dial(t, s, header)
	assert.Equal(t, "abc", s.LastHeader().Get("X-Token"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peer, err := s.Accept(ctx)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("hi")))
	f, err := peer.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, f.Type)
	assert.Equal(t, "hi", string(f.Data))

	require.NoError(t, peer.SendJSON(map[string]int{"x": 1}))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(data))
}

func TestCloseNormal(t *testing.T) {
	s := NewServer()
	defer s.Close()

	conn := dial(t, s, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peer, err := s.Accept(ctx)
	require.NoError(t, err)

	require.NoError(t, peer.CloseNormal())
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestAcceptAfterClose(t *testing.T) {
	s := NewServer()
	s.Close()
	_, err := s.Accept(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
