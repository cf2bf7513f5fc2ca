// Package commands provides the command interface and implementations.
package commands

import (
	"context"
	"flag"
	"io"

	"atask/internal/app"
	"atask/internal/config"
)

// Command defines the interface for CLI commands.
type Command interface {
	// Name returns the primary command name.
	Name() string

	// Aliases returns alternative names for the command.
	Aliases() []string

	// Synopsis returns a short description for help output.
	Synopsis() string

	// Usage returns the usage string for help output.
	Usage() string

	// NeedsApp returns false for commands that touch neither storage nor
	// the backend (help, version).
	NeedsApp() bool

	// NeedsAuth returns true if the command requires a signed-in session.
	NeedsAuth() bool

	// RegisterFlags registers command-specific flags.
	RegisterFlags(fs *flag.FlagSet)

	// Run executes the command.
	// cfg is always provided.
	// a is nil if NeedsApp() returns false.
	// args contains positional arguments after flag parsing.
	// Returns exit code.
	Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int
}
