package utils

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/srand/espilot/pkg/log"
)

// Returns a context that is cancelled when the process receives one of
// the given signals, SIGINT and SIGTERM by default. The signal is
// available through context.Cause.
func SignalContext(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancelCause(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)

	go func() {
		defer signal.Stop(ch)

		select {
		case sig := <-ch:
			log.Info("Caught signal:", sig)
			cancel(fmt.Errorf("caught signal: %s", sig))
		case <-ctx.Done():
		}
	}()

	return ctx, func() { cancel(context.Canceled) }
}
