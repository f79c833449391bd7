// Command ghostline records, replays, and inspects HTTP traffic captured in
// the ghostline container format.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ghostline",
		Short:         "Deterministic capture and replay for HTTP-speaking agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRecordCommand(),
		newReplayCommand(),
		newForkCommand(),
		newInspectCommand(),
		newExportCommand(),
	)
	return root
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, mirroring the
// graceful-shutdown pattern used by every long-running ghostline server.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
