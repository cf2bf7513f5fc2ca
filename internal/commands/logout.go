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
	Register(&LogoutCmd{})
}

// LogoutCmd implements the logout command.
type LogoutCmd struct{}

func (c *LogoutCmd) Name() string      { return "logout" }
func (c *LogoutCmd) Aliases() []string { return nil }
func (c *LogoutCmd) Synopsis() string  { return "Sign out and remove stored credentials" }
func (c *LogoutCmd) Usage() string     { return "atask logout [common flags]" }
func (c *LogoutCmd) NeedsApp() bool    { return true }
func (c *LogoutCmd) NeedsAuth() bool   { return false }

func (c *LogoutCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *LogoutCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	if a.Session.Current() == nil && !cfg.HasGoogleToken() {
		if !cfg.Quiet {
			fmt.Fprintln(out, "not logged in")
		}
		return exitcode.Success
	}

	if err := a.Auth.Logout(ctx); err != nil {
		fmt.Fprintf(errOut, "error: failed to clear session: %v\n", err)
		return exitcode.AuthError
	}
	if err := cfg.RemoveGoogleToken(); err != nil {
		fmt.Fprintf(errOut, "error: failed to remove token: %v\n", err)
		return exitcode.AuthError
	}
	return ok(out, cfg.Quiet)
}
