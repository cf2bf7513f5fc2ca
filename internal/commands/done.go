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
	Register(&DoneCmd{})
}

// DoneCmd implements the done command. It toggles: a completed task is
// reopened.
type DoneCmd struct{}

func (c *DoneCmd) Name() string      { return "done" }
func (c *DoneCmd) Aliases() []string { return []string{"toggle"} }
func (c *DoneCmd) Synopsis() string  { return "Toggle a task's completion" }
func (c *DoneCmd) Usage() string     { return "atask done <ref>" }
func (c *DoneCmd) NeedsApp() bool    { return true }
func (c *DoneCmd) NeedsAuth() bool   { return true }

func (c *DoneCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *DoneCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	task, code := lookupTask(ctx, a, args, errOut)
	if code != exitcode.Success {
		return code
	}

	updated, err := a.Tasks.ToggleCompletion(ctx, task.ID, task.Completed)
	if err != nil {
		return failure(errOut, a, err)
	}

	if !cfg.Quiet {
		if updated.Completed {
			fmt.Fprintln(out, "ok: done")
		} else {
			fmt.Fprintln(out, "ok: reopened")
		}
	}
	return exitcode.Success
}
