// Command currybot is the entry point for the CurryBot Discord soundboard.
//
// With no subcommand it runs the bot. The catalog and stats subcommands are
// offline tools for operators.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "currybot: %v\n", err)
		return 1
	}
	return 0
}
