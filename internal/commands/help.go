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
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string      { return "help" }
func (c *HelpCmd) Aliases() []string { return nil }
func (c *HelpCmd) Synopsis() string  { return "Print usage" }
func (c *HelpCmd) Usage() string     { return "atask help" }
func (c *HelpCmd) NeedsApp() bool    { return false }
func (c *HelpCmd) NeedsAuth() bool   { return false }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	fmt.Fprint(out, helpText)
	return exitcode.Success
}

const helpText = `Usage:
  atask                                          List tasks, newest first
  atask list [--done|--open] [--search <text>]
  atask add [--desc <text>] [--priority <p>] [--due <date>] [--tags <a,b>] <title...>
  atask done <ref>                               Toggle completion
  atask edit [--title <text>] [--desc <text>] [--priority <p>] [--due <date>] [--tags <a,b>] <ref>
  atask show <ref>
  atask rm <ref>
  atask refresh
  atask login [--name <name>] [--register] <email>
  atask register [--name <name>] [--photo <url>] <email>
  atask login-google
  atask logout
  atask whoami
  atask import-google [--list <list-name>] [--dry-run]
  atask help
  atask version

A <ref> is the number shown by 'atask list' or a task id.

Common flags:
  --config <dir>    Override config directory
  --api-url <url>   Override the backend URL
  --quiet           Suppress informational output
  --debug           Print debug logs to stderr
`
