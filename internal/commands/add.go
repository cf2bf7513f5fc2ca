package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"atask/internal/app"
	"atask/internal/config"
	"atask/internal/exitcode"
	"atask/internal/service"
)

func init() {
	Register(&AddCmd{})
}

// AddCmd implements the add command.
type AddCmd struct {
	desc     string
	priority string
	due      string
	tags     string
}

func (c *AddCmd) Name() string      { return "add" }
func (c *AddCmd) Aliases() []string { return []string{"create"} }
func (c *AddCmd) Synopsis() string  { return "Create a task" }
func (c *AddCmd) Usage() string {
	return "atask add [--desc <text>] [--priority low|medium|high] [--due <date>] [--tags <a,b>] <title...>"
}
func (c *AddCmd) NeedsApp() bool  { return true }
func (c *AddCmd) NeedsAuth() bool { return true }

func (c *AddCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.desc, "desc", "", "")
	fs.StringVar(&c.desc, "d", "", "")
	fs.StringVar(&c.priority, "priority", "medium", "")
	fs.StringVar(&c.priority, "p", "medium", "")
	fs.StringVar(&c.due, "due", "", "")
	fs.StringVar(&c.tags, "tags", "", "")
}

func (c *AddCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	title := strings.TrimSpace(strings.Join(args, " "))
	if title == "" {
		fmt.Fprintln(errOut, "error: title required")
		return exitcode.UserError
	}

	draft := service.TaskDraft{Title: title, Description: c.desc, Tags: parseTags(c.tags)}

	var err error
	if draft.Priority, err = parsePriority(c.priority); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	if c.due != "" {
		if draft.DueDate, err = parseDue(c.due); err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.UserError
		}
	}

	if _, err := a.Tasks.Create(ctx, draft); err != nil {
		return failure(errOut, a, err)
	}
	return ok(out, cfg.Quiet)
}
