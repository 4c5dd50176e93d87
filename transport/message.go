package transport

import (
	"encoding/json"
	"fmt"
)

// Version is the only protocol version accepted on the wire.
const Version = "2.0"

// Standard JSON-RPC error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Message is one JSON-RPC 2.0 envelope. Members other than Method are kept
// as raw JSON so the transport can carry them without interpreting them.
// A member is present on the wire when its raw value is non-empty, so an
// explicit null id or result survives a round trip.
type Message struct {
	JSONRPC string          `json:"jsonrpc" validate:"eq=2.0"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a JSON-RPC response. Code is a pointer so
// a missing code is distinguishable from code 0.
type RPCError struct {
	Code    *int            `json:"code" validate:"required"`
	Message string          `json:"message" validate:"required"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Code == nil {
		return "RPC error: " + e.Message
	}
	return fmt.Sprintf("RPC error %d: %s", *e.Code, e.Message)
}

// IsRequest reports whether m is a call that expects a response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

// IsNotification reports whether m is a call without an id.
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IsResponse reports whether m answers a request.
func (m *Message) IsResponse() bool {
	return m.Method == "" && (len(m.Result) > 0 || m.Error != nil)
}

// NewRequest builds a request. id must be a string or a number.
func NewRequest(id interface{}, method string, params interface{}) (*Message, error) {
	rawID, err := rawJSON(id)
	if err != nil {
		return nil, fmt.Errorf("encoding id: %w", err)
	}
	if len(rawID) == 0 {
		return nil, fmt.Errorf("request id must not be nil")
	}
	rawParams, err := rawJSON(params)
	if err != nil {
		return nil, fmt.Errorf("encoding params: %w", err)
	}
	return &Message{JSONRPC: Version, ID: rawID, Method: method, Params: rawParams}, nil
}

// NewNotification builds a notification.
func NewNotification(method string, params interface{}) (*Message, error) {
	rawParams, err := rawJSON(params)
	if err != nil {
		return nil, fmt.Errorf("encoding params: %w", err)
	}
	return &Message{JSONRPC: Version, Method: method, Params: rawParams}, nil
}

// NewResult builds a successful response to the request with the given id.
// A nil result is sent as an explicit null.
func NewResult(id json.RawMessage, result interface{}) (*Message, error) {
	rawResult, err := rawJSON(result)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	if len(rawResult) == 0 {
		rawResult = json.RawMessage("null")
	}
	return &Message{JSONRPC: Version, ID: nullIfEmpty(id), Result: rawResult}, nil
}

// NewErrorResponse builds an error response. A nil id is sent as null, which
// is what a peer expects when the request id could not be read.
func NewErrorResponse(id json.RawMessage, code int, message string, data interface{}) (*Message, error) {
	rawData, err := rawJSON(data)
	if err != nil {
		return nil, fmt.Errorf("encoding error data: %w", err)
	}
	return &Message{
		JSONRPC: Version,
		ID:      nullIfEmpty(id),
		Error:   &RPCError{Code: &code, Message: message, Data: rawData},
	}, nil
}

func rawJSON(v interface{}) (json.RawMessage, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return val, nil
	default:
		return json.Marshal(v)
	}
}

func nullIfEmpty(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
