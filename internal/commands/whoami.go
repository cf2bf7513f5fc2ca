package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"atask/internal/app"
	"atask/internal/config"
	"atask/internal/exitcode"
	"atask/internal/output"
)

func init() {
	Register(&WhoamiCmd{})
}

// WhoamiCmd implements the whoami command.
type WhoamiCmd struct{}

func (c *WhoamiCmd) Name() string      { return "whoami" }
func (c *WhoamiCmd) Aliases() []string { return nil }
func (c *WhoamiCmd) Synopsis() string  { return "Print the signed-in user" }
func (c *WhoamiCmd) Usage() string     { return "atask whoami" }
func (c *WhoamiCmd) NeedsApp() bool    { return true }
func (c *WhoamiCmd) NeedsAuth() bool   { return false }

func (c *WhoamiCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *WhoamiCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	u := a.Session.Current()
	if u == nil {
		fmt.Fprintln(errOut, "error: not logged in (run: atask login)")
		return exitcode.AuthError
	}

	output.FormatUser(out, u)
	if exp, ok := a.Session.TokenExpiry(); ok && !cfg.Quiet {
		fmt.Fprintf(out, "token expires %s\n", exp.UTC().Format(time.RFC3339))
	}
	return exitcode.Success
}
