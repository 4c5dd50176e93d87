package errors

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TransportError is the interface for all structured errors raised by the
// transport. It extends error with the code, category and retry hint callers
// use to decide what to do next.
type TransportError interface {
	error

	// Code returns the specific error code identifying the failure type.
	Code() ErrorCode

	// Category returns the error category for retry/handling decisions.
	Category() ErrorCategory

	// Retryable returns true if the operation may succeed on retry.
	Retryable() bool

	// Metadata returns additional context as key-value pairs.
	Metadata() map[string]string

	// Unwrap returns the underlying error, if any.
	Unwrap() error
}

// Error is the concrete implementation of TransportError.
type Error struct {
	code      ErrorCode
	category  ErrorCategory
	message   string
	cause     error
	metadata  map[string]string
	timestamp time.Time
	endpoint  string // websocket URL involved, if any
	attempts  int    // attempts made before giving up, if any
}

var (
	_ TransportError = (*Error)(nil)
	_ json.Marshaler = (*Error)(nil)
)

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Retryable returns whether this error is retryable.
func (e *Error) Retryable() bool {
	return e.category.IsRetryable()
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Endpoint returns the websocket URL the error relates to, if set.
func (e *Error) Endpoint() string {
	return e.endpoint
}

// Attempts returns how many attempts were made before the error was raised.
func (e *Error) Attempts() int {
	return e.attempts
}

type errorJSON struct {
	Code      ErrorCode         `json:"code"`
	Category  ErrorCategory     `json:"category"`
	Message   string            `json:"message"`
	Cause     string            `json:"cause,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Retryable bool              `json:"retryable"`
	Timestamp string            `json:"timestamp,omitempty"`
	Endpoint  string            `json:"endpoint,omitempty"`
	Attempts  int               `json:"attempts,omitempty"`
}

// MarshalJSON implements json.Marshaler. The cause is reported as the root
// of the chain.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:      e.code,
		Category:  e.category,
		Message:   e.message,
		Metadata:  e.metadata,
		Retryable: e.Retryable(),
		Endpoint:  e.endpoint,
		Attempts:  e.attempts,
	}
	if e.cause != nil {
		j.Cause = Cause(e.cause).Error()
	}
	if !e.timestamp.IsZero() {
		j.Timestamp = e.timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(j)
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithEndpoint records the websocket URL involved.
func WithEndpoint(url string) Option {
	return func(e *Error) {
		e.endpoint = url
	}
}

// WithAttempts records how many attempts were made.
func WithAttempts(n int) Option {
	return func(e *Error) {
		e.attempts = n
		WithMetadata("attempts", strconv.Itoa(n))(e)
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// FromCode creates an error with the default description for the code.
func FromCode(code ErrorCode, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

// ConnectionFailed reports that every connect attempt against url failed.
func ConnectionFailed(url string, attempts int, cause error) *Error {
	return New(ErrCodeConnectionFailed,
		fmt.Sprintf("failed to connect to %s after %d attempts", url, attempts),
		WithEndpoint(url), WithAttempts(attempts), WithCause(cause))
}

// NotConnected reports a send attempted without a live connection.
func NotConnected(opts ...Option) *Error {
	return FromCode(ErrCodeNotConnected, opts...)
}

// SocketNotOpen reports a socket that left the open state before a write.
func SocketNotOpen(opts ...Option) *Error {
	return FromCode(ErrCodeSocketNotOpen, opts...)
}

// DeliveryFailed reports a write that failed on the final attempt.
func DeliveryFailed(attempts int, cause error, opts ...Option) *Error {
	opts = append([]Option{WithAttempts(attempts), WithCause(cause)}, opts...)
	return New(ErrCodeDeliveryFailed,
		fmt.Sprintf("message delivery failed after %d attempts", attempts), opts...)
}

// UnsupportedPayload reports an inbound frame of an unknown type.
func UnsupportedPayload(frameType int, opts ...Option) *Error {
	opts = append([]Option{WithMetadata("frame_type", strconv.Itoa(frameType))}, opts...)
	return New(ErrCodeUnsupportedPayload,
		fmt.Sprintf("unsupported payload type %d", frameType), opts...)
}

// MalformedMessage reports an inbound frame that failed to parse or validate.
func MalformedMessage(cause error, opts ...Option) *Error {
	opts = append([]Option{WithCause(cause)}, opts...)
	return New(ErrCodeMalformedMessage, "malformed message", opts...)
}

// InvalidInput creates an invalid input error.
func InvalidInput(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidInput, message, opts...)
}
