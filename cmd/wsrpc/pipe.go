package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/vinayprograms/wsrpc/transport"
)

var errPeerClosed = errors.New("connection closed by peer")

func newPipeCmd(opts *globalOptions) *cobra.Command {
	var drain time.Duration

	cmd := &cobra.Command{
		Use:   "pipe",
		Short: "Send stdin lines as messages and print inbound messages",
		Long: `Pipe reads one JSON-RPC message per line from stdin and sends each one.
Inbound messages are printed to stdout, one per line. Lines that are not
valid messages are reported on stderr and skipped. At end of input pipe
keeps printing for --drain, then closes the connection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancelCause(cmd.Context())
			defer cancel(nil)

			out := &lineWriter{w: cmd.OutOrStdout()}
			var closing atomic.Bool
			obs := transport.Callbacks{
				Message: func(m *transport.Message) { _ = out.write(m) },
				Error: func(err error) {
					fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
				},
				Close: func() {
					if !closing.Load() {
						cancel(errPeerClosed)
					}
				},
			}

			s, err := opts.openSession(ctx, cmd, obs)
			if err != nil {
				return err
			}
			defer func() {
				closing.Store(true)
				s.close()
			}()

			if err := s.client.Start(ctx); err != nil {
				return err
			}

			if err := pipeLines(ctx, cmd, s.client); err != nil {
				if cmd.Context().Err() != nil {
					// Interrupted by a signal.
					return nil
				}
				return err
			}

			timer := time.NewTimer(drain)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				if errors.Is(context.Cause(ctx), errPeerClosed) {
					return errPeerClosed
				}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&drain, "drain", time.Second, "how long to keep reading after end of input")
	return cmd
}

// pipeLines sends each stdin line until EOF or ctx ends.
func pipeLines(ctx context.Context, cmd *cobra.Command, client *transport.Client) error {
	codec := transport.NewCodec(nil)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		if err := context.Cause(ctx); err != nil {
			return err
		}

		msg, err := codec.Decode(websocket.TextMessage, text)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "line %d: %v\n", line, err)
			continue
		}
		if err := client.Send(ctx, msg); err != nil {
			if cause := context.Cause(ctx); cause != nil {
				return cause
			}
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return scanner.Err()
}
