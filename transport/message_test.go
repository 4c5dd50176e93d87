package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	msg, err := NewRequest(42, "tools/call", map[string]string{"name": "echo"})
	require.NoError(t, err)
	assert.Equal(t, Version, msg.JSONRPC)
	assert.JSONEq(t, `42`, string(msg.ID))
	assert.JSONEq(t, `{"name":"echo"}`, string(msg.Params))
	assert.True(t, msg.IsRequest())
	assert.False(t, msg.IsNotification())
	assert.False(t, msg.IsResponse())

	_, err = NewRequest(nil, "x", nil)
	assert.Error(t, err)
}

func TestNewNotification(t *testing.T) {
	msg, err := NewNotification("progress", []int{1})
	require.NoError(t, err)
	assert.Empty(t, msg.ID)
	assert.True(t, msg.IsNotification())

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"progress","params":[1]}`, string(data))
}

func TestNewResult(t *testing.T) {
	msg, err := NewResult(json.RawMessage(`"a"`), nil)
	require.NoError(t, err)
	assert.True(t, msg.IsResponse())

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"a","result":null}`, string(data))
}

func TestNewErrorResponse(t *testing.T) {
	msg, err := NewErrorResponse(nil, ParseError, "Parse error", nil)
	require.NoError(t, err)
	assert.True(t, msg.IsResponse())
	assert.Equal(t, "RPC error -32700: Parse error", msg.Error.Error())

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`, string(data))
}

func TestRawParamsPassThrough(t *testing.T) {
	raw := json.RawMessage(`{"keep":"as-is"}`)
	msg, err := NewRequest("x", "m", raw)
	require.NoError(t, err)
	assert.Equal(t, raw, msg.Params)
}
