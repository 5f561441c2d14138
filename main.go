// ircc - a chat-protocol client that keeps its connection alive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ircc/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ircc: %v\n", err)
		os.Exit(1)
	}
}
