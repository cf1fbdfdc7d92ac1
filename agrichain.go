package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"agrichain/pkg/app"
)

// main exposes a root-level entry point so operators can simply run `go run agrichain.go`.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args[1:], nil); err != nil {
		fmt.Fprintf(os.Stderr, "agrichain: %v\n", err)
		stop()
		os.Exit(1)
	}
}
