package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"agrichain/pkg/app"
)

// main is a thin adapter so process managers can keep using cmd/server.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args[1:], nil); err != nil {
		fmt.Fprintf(os.Stderr, "agrichain: %v\n", err)
		stop()
		os.Exit(1)
	}
}
