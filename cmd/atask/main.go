// Package main is the entry point for the atask CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"atask/internal/app"
	"atask/internal/cli"
	"atask/internal/commands"
)

func main() {
	// Cancel on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, app.New)

	code := dispatcher.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
