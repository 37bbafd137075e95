package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// forceExit ends the process on a second interrupt. Tests replace it.
var forceExit = os.Exit

// shutdownContext derives a context that is canceled by the first SIGINT or
// SIGTERM. Canceling aborts in-flight requests; deferred cleanup then drops
// the account key and closes the catalog. A second signal exits at once.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go watchSignals(parent, ctx, cancel, sigCh, logger)

	return ctx
}

func watchSignals(parent, ctx context.Context, cancel context.CancelFunc, sigCh chan os.Signal, logger *slog.Logger) {
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("interrupted, canceling transfers", slog.String("signal", sig.String()))
		cancel()
	case <-ctx.Done():
		return
	}

	select {
	case sig := <-sigCh:
		logger.Warn("interrupted again, exiting now", slog.String("signal", sig.String()))
		forceExit(1)
	case <-parent.Done():
	}
}
