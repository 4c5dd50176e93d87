package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

const (
	// CategoryTransient indicates failures where a later attempt may succeed.
	// Examples: refused handshake, failed write, socket closed mid-send.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures that another attempt will not fix.
	// Examples: malformed inbound frame, send while disconnected, closed client.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates bugs or unexpected failures.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies a specific transport failure.
type ErrorCode string

const (
	// Connection lifecycle
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED" // All connect attempts exhausted
	ErrCodeNotConnected     ErrorCode = "NOT_CONNECTED"     // Send without a live connection
	ErrCodeClosed           ErrorCode = "CLOSED"            // Client was closed
	ErrCodeCanceled         ErrorCode = "CANCELED"          // Connect aborted by Close or ctx

	// Send path
	ErrCodeSocketNotOpen  ErrorCode = "SOCKET_NOT_OPEN" // Socket left the open state between attempts
	ErrCodeDeliveryFailed ErrorCode = "DELIVERY_FAILED" // Write failed on every attempt

	// Receive path
	ErrCodeUnsupportedPayload ErrorCode = "UNSUPPORTED_PAYLOAD" // Frame type is not text or binary
	ErrCodeMalformedMessage   ErrorCode = "MALFORMED_MESSAGE"   // Frame failed parse or schema validation

	// General
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT" // Caller passed something unusable
	ErrCodeInternal     ErrorCode = "INTERNAL"      // Unexpected internal error
	ErrCodePanic        ErrorCode = "PANIC"         // Recovered from panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeConnectionFailed, ErrCodeSocketNotOpen, ErrCodeDeliveryFailed:
		return CategoryTransient

	case ErrCodeNotConnected, ErrCodeClosed, ErrCodeCanceled,
		ErrCodeUnsupportedPayload, ErrCodeMalformedMessage, ErrCodeInvalidInput:
		return CategoryPermanent

	case ErrCodeInternal, ErrCodePanic:
		return CategoryInternal

	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeConnectionFailed:   "connection failed",
	ErrCodeNotConnected:       "not connected",
	ErrCodeClosed:             "transport closed",
	ErrCodeCanceled:           "operation canceled",
	ErrCodeSocketNotOpen:      "socket is not open",
	ErrCodeDeliveryFailed:     "message delivery failed",
	ErrCodeUnsupportedPayload: "unsupported payload type",
	ErrCodeMalformedMessage:   "malformed message",
	ErrCodeInvalidInput:       "invalid input provided",
	ErrCodeInternal:           "internal error",
	ErrCodePanic:              "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
