package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"atask/internal/app"
	"atask/internal/config"
	"atask/internal/exitcode"
)

func init() {
	Register(&RefreshCmd{})
}

// RefreshCmd implements the refresh command.
type RefreshCmd struct{}

func (c *RefreshCmd) Name() string      { return "refresh" }
func (c *RefreshCmd) Aliases() []string { return nil }
func (c *RefreshCmd) Synopsis() string  { return "Reload tasks from the server" }
func (c *RefreshCmd) Usage() string     { return "atask refresh" }
func (c *RefreshCmd) NeedsApp() bool    { return true }
func (c *RefreshCmd) NeedsAuth() bool   { return true }

func (c *RefreshCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *RefreshCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	all, err := a.Tasks.Refresh(ctx)
	if err != nil {
		return failure(errOut, a, err)
	}
	if !cfg.Quiet {
		fmt.Fprintf(out, "%d tasks\n", len(all))
	}
	return exitcode.Success
}
