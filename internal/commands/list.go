package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"atask/internal/app"
	"atask/internal/config"
	"atask/internal/exitcode"
	"atask/internal/output"
	"atask/internal/tasks"
)

func init() {
	Register(&ListCmd{})
}

// ListCmd implements the list command.
// Handles both `atask` (no args) and `atask list`.
type ListCmd struct {
	done   bool
	open   bool
	search string
}

func (c *ListCmd) Name() string      { return "list" }
func (c *ListCmd) Aliases() []string { return []string{"ls"} }
func (c *ListCmd) Synopsis() string  { return "List tasks, newest first" }
func (c *ListCmd) Usage() string     { return "atask list [--done|--open] [--search <text>]" }
func (c *ListCmd) NeedsApp() bool    { return true }
func (c *ListCmd) NeedsAuth() bool   { return true }

func (c *ListCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.done, "done", false, "")
	fs.BoolVar(&c.open, "open", false, "")
	fs.StringVar(&c.search, "search", "", "")
	fs.StringVar(&c.search, "s", "", "")
}

func (c *ListCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	if c.done && c.open {
		fmt.Fprintln(errOut, "error: cannot use both --done and --open")
		return exitcode.UserError
	}
	if len(args) > 0 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", args[0])
		return exitcode.UserError
	}

	filters := tasks.Filters{SearchTerm: c.search}
	switch {
	case c.done:
		filters.Completed = boolPtr(true)
	case c.open:
		filters.Completed = boolPtr(false)
	}
	a.Tasks.SetFilters(filters)

	if _, err := a.Tasks.Load(ctx); err != nil {
		return failure(errOut, a, err)
	}

	// Numbers always refer to the unfiltered view so that a filtered
	// listing prints references `done` and `rm` accept.
	st := a.Tasks.State()
	numbers := make(map[string]int, len(st.Tasks))
	for i, t := range tasks.Project(st.Tasks, tasks.Filters{}) {
		numbers[t.ID] = i + 1
	}

	view := a.Tasks.View()
	for _, t := range view {
		output.FormatTask(out, numbers[t.ID], t)
	}

	if len(view) == 0 && !cfg.Quiet {
		fmt.Fprintln(out, "no tasks found")
	}
	return exitcode.Success
}

func boolPtr(b bool) *bool { return &b }
