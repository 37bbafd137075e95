package main

import (
	"context"
	"log/slog"
	"os"
)

func main() {
	ctx := shutdownContext(context.Background(), slog.Default())

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
