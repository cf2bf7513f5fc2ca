package commands

import (
	"context"
	"flag"
	"io"

	"atask/internal/app"
	"atask/internal/config"
	"atask/internal/exitcode"
	"atask/internal/output"
)

func init() {
	Register(&ShowCmd{})
}

// ShowCmd implements the show command.
type ShowCmd struct{}

func (c *ShowCmd) Name() string      { return "show" }
func (c *ShowCmd) Aliases() []string { return nil }
func (c *ShowCmd) Synopsis() string  { return "Print every field of a task" }
func (c *ShowCmd) Usage() string     { return "atask show <ref>" }
func (c *ShowCmd) NeedsApp() bool    { return true }
func (c *ShowCmd) NeedsAuth() bool   { return true }

func (c *ShowCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ShowCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	task, code := lookupTask(ctx, a, args, errOut)
	if code != exitcode.Success {
		return code
	}

	// Fetch the single task so the detail view is current.
	if _, err := a.Tasks.Get(ctx, task.ID); err != nil {
		return failure(errOut, a, err)
	}
	if sel := a.Tasks.State().Selected; sel != nil {
		task = *sel
	}
	output.FormatTaskDetail(out, task)
	return exitcode.Success
}
