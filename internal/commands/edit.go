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
	Register(&EditCmd{})
}

// EditCmd implements the edit command. Only the given fields change.
type EditCmd struct {
	title    optString
	desc     optString
	priority optString
	due      optString
	tags     optString
}

func (c *EditCmd) Name() string      { return "edit" }
func (c *EditCmd) Aliases() []string { return nil }
func (c *EditCmd) Synopsis() string  { return "Change a task" }
func (c *EditCmd) Usage() string {
	return "atask edit [--title <text>] [--desc <text>] [--priority <p>] [--due <date>] [--tags <a,b>] <ref>"
}
func (c *EditCmd) NeedsApp() bool  { return true }
func (c *EditCmd) NeedsAuth() bool { return true }

func (c *EditCmd) RegisterFlags(fs *flag.FlagSet) {
	*c = EditCmd{}
	fs.Var(&c.title, "title", "")
	fs.Var(&c.desc, "desc", "")
	fs.Var(&c.priority, "priority", "")
	fs.Var(&c.due, "due", "")
	fs.Var(&c.tags, "tags", "")
}

func (c *EditCmd) changes() (service.TaskChanges, error) {
	var ch service.TaskChanges
	if c.title.set {
		title := strings.TrimSpace(c.title.value)
		if title == "" {
			return ch, fmt.Errorf("title cannot be empty")
		}
		ch.Title = &title
	}
	if c.desc.set {
		desc := c.desc.value
		ch.Description = &desc
	}
	if c.priority.set {
		p, err := parsePriority(c.priority.value)
		if err != nil {
			return ch, err
		}
		ch.Priority = &p
	}
	if c.due.set {
		due, err := parseDue(c.due.value)
		if err != nil {
			return ch, err
		}
		ch.DueDate = due
	}
	if c.tags.set {
		ch.Tags = parseTags(c.tags.value)
	}
	return ch, nil
}

func (c *EditCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	if !c.title.set && !c.desc.set && !c.priority.set && !c.due.set && !c.tags.set {
		fmt.Fprintln(errOut, "error: nothing to change")
		return exitcode.UserError
	}
	changes, err := c.changes()
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	task, code := lookupTask(ctx, a, args, errOut)
	if code != exitcode.Success {
		return code
	}

	if _, err := a.Tasks.Update(ctx, task.ID, changes); err != nil {
		return failure(errOut, a, err)
	}
	return ok(out, cfg.Quiet)
}
