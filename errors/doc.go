// Package errors provides the structured error taxonomy used by the wsrpc
// transport. Every failure surfaced by Start, Send or the error observer is an
// *Error carrying a code, a category and, where relevant, the endpoint and the
// number of attempts made.
//
// # Error Categories
//
//   - Transient: another attempt may succeed (connect or write failures)
//   - Permanent: another attempt will not help (malformed frames, not connected)
//   - Internal: bugs and recovered panics
//
// Send stops retrying as soon as a write fails with a permanent error.
//
// # Error Codes
//
//   - CONNECTION_FAILED: every connect attempt failed
//   - NOT_CONNECTED: send without a live connection
//   - SOCKET_NOT_OPEN: socket left the open state between send attempts
//   - DELIVERY_FAILED: write failed on every attempt
//   - UNSUPPORTED_PAYLOAD: inbound frame was neither text nor binary
//   - MALFORMED_MESSAGE: inbound frame failed JSON parse or schema validation
//   - CLOSED: client closed, or a write raced the close frame
//
// # Usage
//
// Check the failure class of a Send:
//
//	if err := client.Send(ctx, msg); errors.Is(err, errors.ErrCodeNotConnected) {
//	    // start again before sending
//	}
//
// Errors marshal to JSON with the root cause as a string; the wsrpc command
// prints failures this way:
//
//	data, _ := json.Marshal(err)
package errors
