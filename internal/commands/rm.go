package commands

import (
	"context"
	"flag"
	"io"

	"atask/internal/app"
	"atask/internal/config"
	"atask/internal/exitcode"
)

func init() {
	Register(&RmCmd{})
}

// RmCmd implements the rm command.
type RmCmd struct{}

func (c *RmCmd) Name() string      { return "rm" }
func (c *RmCmd) Aliases() []string { return []string{"delete"} }
func (c *RmCmd) Synopsis() string  { return "Delete a task" }
func (c *RmCmd) Usage() string     { return "atask rm <ref>" }
func (c *RmCmd) NeedsApp() bool    { return true }
func (c *RmCmd) NeedsAuth() bool   { return true }

func (c *RmCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *RmCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	task, code := lookupTask(ctx, a, args, errOut)
	if code != exitcode.Success {
		return code
	}

	if err := a.Tasks.Delete(ctx, task.ID); err != nil {
		return failure(errOut, a, err)
	}
	return ok(out, cfg.Quiet)
}
