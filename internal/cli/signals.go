package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// withShutdownSignals returns a context cancelled on SIGINT or SIGTERM.
func withShutdownSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
