// Command wsrpc sends JSON-RPC messages over a websocket connection.
//
//	wsrpc --endpoint http://localhost:8080 send '{"jsonrpc":"2.0","id":1,"method":"ping"}'
//	wsrpc --config wsrpc.toml pipe < requests.jsonl
//
// Transport failures are also printed to stderr as one JSON line. The exit
// status is 75 for failures worth retrying, 2 for permanent ones and 1 for
// everything else.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/vinayprograms/wsrpc/errors"
)

const (
	exitFailure   = 1
	exitPermanent = 2
	exitTransient = 75 // EX_TEMPFAIL
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}

// reportError writes err to w and returns the exit status for it.
func reportError(w io.Writer, err error) int {
	te := errors.AsTransportError(err)
	if te == nil {
		fmt.Fprintln(w, "Error:", err)
		return exitFailure
	}

	fmt.Fprintf(w, "Error [%s]: %v\n", errors.Code(err), err)
	if data, jerr := json.Marshal(te); jerr == nil {
		fmt.Fprintf(w, "%s\n", data)
	}
	switch {
	case errors.IsTransient(err):
		return exitTransient
	case errors.IsPermanent(err):
		return exitPermanent
	default:
		return exitFailure
	}
}
