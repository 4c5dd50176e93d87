package transport

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallbacksNilSlots(t *testing.T) {
	var cb Callbacks
	assert.NotPanics(t, func() {
		cb.OnMessage(&Message{})
		cb.OnError(fmt.Errorf("x"))
		cb.OnClose()
	})
}

func TestCallbacksDispatch(t *testing.T) {
	var got []string
	cb := Callbacks{
		Message: func(m *Message) { got = append(got, "message:"+m.Method) },
		Close:   func() { got = append(got, "close") },
	}
	cb.OnMessage(&Message{Method: "ping"})
	cb.OnError(fmt.Errorf("dropped"))
	cb.OnClose()
	assert.Equal(t, []string{"message:ping", "close"}, got)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "DISCONNECTED", StateDisconnected.String())
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "CONNECTED", StateConnected.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "UNKNOWN", State(9).String())
}
