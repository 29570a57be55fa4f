// Package main provides the entry point for the hitlfeed CLI.
package main

import (
	"context"
	"os"

	"github.com/agentstation/hitlfeed/cmd/hitlfeed/app"
)

// Version information populated by goreleaser.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
	builtBy = "unknown"
)

func main() {
	application, err := app.New(version, commit, date, builtBy)
	if err != nil {
		app.ExitOnError(err)
	}

	// cancelled on SIGINT/SIGTERM so commands can shut down gracefully
	ctx, cancel := app.ContextWithSignals(context.Background())
	defer cancel()

	if err := application.Execute(ctx, os.Args[1:]); err != nil {
		cancel()
		app.ExitOnError(err)
	}
}
