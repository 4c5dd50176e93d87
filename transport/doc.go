// Package transport carries JSON-RPC 2.0 messages over a single websocket
// connection with bounded retry on connect and on send.
//
// # Overview
//
// A Client owns one endpoint and at most one live socket. Start dials with
// up to three attempts one second apart; Send writes one message per text
// frame with the same policy; inbound frames are decoded, validated and
// handed to an Observer from a single read goroutine, in arrival order.
//
// # Usage
//
//	c, err := transport.NewClient("http://localhost:8080",
//	    transport.WithObserver(transport.Callbacks{
//	        Message: func(m *transport.Message) { ... },
//	        Error:   func(err error) { log.Println(err) },
//	    }))
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	if err := c.Start(ctx); err != nil {
//	    return err
//	}
//	req, _ := transport.NewRequest(1, "ping", nil)
//	err = c.Send(ctx, req)
//
// # Design Decisions
//
//   - No outbound queue: Send while not connected fails with NOT_CONNECTED,
//     including during a reconnect
//   - No automatic reconnection: an unsolicited disconnect calls OnClose and
//     leaves the client Disconnected; call Start again
//   - Decode failures go to OnError only and never end the connection
//   - Close never fails and calls OnClose on every call
//
// # Thread Safety
//
// All Client methods are safe for concurrent use. Concurrent Send calls are
// not ordered relative to each other.
package transport
