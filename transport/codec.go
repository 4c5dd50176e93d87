package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/vinayprograms/wsrpc/errors"
)

// Schema validates a parsed message. Implementations must not modify it.
type Schema interface {
	Validate(msg *Message) error
}

// SchemaFunc adapts a function to Schema.
type SchemaFunc func(msg *Message) error

func (f SchemaFunc) Validate(msg *Message) error {
	return f(msg)
}

// jsonRPCSchema enforces the JSON-RPC 2.0 envelope rules.
type jsonRPCSchema struct {
	v *validator.Validate
}

// JSONRPCSchema returns the default JSON-RPC 2.0 envelope schema:
//   - jsonrpc must be "2.0"
//   - a message with a method must not carry result or error
//   - a message without a method needs an id and exactly one of result/error
//   - an error member needs an integer code and a message
//   - an id, when present, is a string, a number or null
func JSONRPCSchema() Schema {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateEnvelope, Message{})
	return &jsonRPCSchema{v: v}
}

func (s *jsonRPCSchema) Validate(msg *Message) error {
	return s.v.Struct(msg)
}

func validateEnvelope(sl validator.StructLevel) {
	m := sl.Current().Interface().(Message)
	hasID := len(m.ID) > 0
	hasResult := len(m.Result) > 0

	if m.Method != "" {
		if hasResult {
			sl.ReportError(m.Result, "result", "Result", "excluded_with_method", "")
		}
		if m.Error != nil {
			sl.ReportError(m.Error, "error", "Error", "excluded_with_method", "")
		}
	} else {
		if !hasID {
			sl.ReportError(m.ID, "id", "ID", "required_for_response", "")
		}
		if hasResult == (m.Error != nil) {
			sl.ReportError(m.Result, "result", "Result", "result_xor_error", "")
		}
	}

	if hasID && !validID(m.ID) {
		sl.ReportError(m.ID, "id", "ID", "jsonrpc_id", "")
	}
}

func validID(raw json.RawMessage) bool {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch v.(type) {
	case nil, string, float64:
		return true
	default:
		return false
	}
}

// Codec converts between messages and websocket frames.
type Codec struct {
	schema Schema
}

// NewCodec returns a codec validating against schema. Nil means
// JSONRPCSchema.
func NewCodec(schema Schema) *Codec {
	if schema == nil {
		schema = JSONRPCSchema()
	}
	return &Codec{schema: schema}
}

// Encode serializes msg for a text frame.
func (c *Codec) Encode(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.InvalidInput("cannot encode nil message")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "encoding message")
	}
	return data, nil
}

// Decode parses one inbound frame. Text frames and UTF-8 binary frames are
// accepted; other frame types fail with UNSUPPORTED_PAYLOAD. Parse and schema
// failures fail with MALFORMED_MESSAGE carrying the cause.
func (c *Codec) Decode(frameType int, data []byte) (*Message, error) {
	switch frameType {
	case websocket.TextMessage:
	case websocket.BinaryMessage:
		if !utf8.Valid(data) {
			return nil, errors.MalformedMessage(fmt.Errorf("binary payload is not valid UTF-8"))
		}
	default:
		return nil, errors.UnsupportedPayload(frameType)
	}

	var msg Message
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&msg); err != nil {
		return nil, errors.MalformedMessage(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.MalformedMessage(fmt.Errorf("trailing data after message"))
	}
	if err := c.schema.Validate(&msg); err != nil {
		return nil, errors.MalformedMessage(err)
	}
	return &msg, nil
}
