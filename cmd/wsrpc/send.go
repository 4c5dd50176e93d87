package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/vinayprograms/wsrpc/transport"
)

func newSendCmd(opts *globalOptions) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one JSON-RPC message and print what comes back",
		Long: `Send connects, writes one JSON-RPC message and prints every inbound
message as a JSON line. For a request it returns as soon as the matching
response arrives or --wait elapses; for anything else it prints until
--wait elapses.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := transport.NewCodec(nil).Decode(websocket.TextMessage, []byte(args[0]))
			if err != nil {
				return fmt.Errorf("invalid message: %w", err)
			}

			out := &lineWriter{w: cmd.OutOrStdout()}
			replied := make(chan struct{})
			var once bool
			obs := transport.Callbacks{
				Message: func(m *transport.Message) {
					if err := out.write(m); err != nil {
						return
					}
					// Callbacks run on the single read goroutine.
					if !once && msg.IsRequest() && m.IsResponse() && bytes.Equal(m.ID, msg.ID) {
						once = true
						close(replied)
					}
				},
				Error: func(err error) {
					fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
				},
			}

			ctx := cmd.Context()
			s, err := opts.openSession(ctx, cmd, obs)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.client.Start(ctx); err != nil {
				return err
			}
			if err := s.client.Send(ctx, msg); err != nil {
				return err
			}
			if wait <= 0 {
				return nil
			}

			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-replied:
			case <-timer.C:
			case <-ctx.Done():
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "how long to wait for replies (0 to exit after sending)")
	return cmd
}
