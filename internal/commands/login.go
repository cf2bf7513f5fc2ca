package commands

import (
	"context"
	"errors"
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
	Register(&LoginCmd{})
	Register(&RegisterCmd{})
}

// LoginCmd implements the login command. With --register an unknown email
// is registered instead of rejected.
type LoginCmd struct {
	name     string
	register bool
}

func (c *LoginCmd) Name() string      { return "login" }
func (c *LoginCmd) Aliases() []string { return nil }
func (c *LoginCmd) Synopsis() string  { return "Sign in with an email address" }
func (c *LoginCmd) Usage() string     { return "atask login [--name <display name>] [--register] <email>" }
func (c *LoginCmd) NeedsApp() bool    { return true }
func (c *LoginCmd) NeedsAuth() bool   { return false }

func (c *LoginCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.name, "name", "", "")
	fs.BoolVar(&c.register, "register", false, "")
}

func (c *LoginCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	email, code := emailArg(args, errOut)
	if code != exitcode.Success {
		return code
	}

	res, err := a.Auth.Login(ctx, email, c.name)
	if err != nil {
		return authFailure(errOut, err)
	}
	if !res.UserExists {
		if !c.register {
			fmt.Fprintf(errOut, "error: no account for %s (run: atask login --register %s)\n", email, email)
			return exitcode.UserError
		}
		return runRegister(ctx, cfg, a, email, c.name, "", out, errOut)
	}
	if res.User == nil {
		fmt.Fprintln(errOut, "error: incomplete server response")
		return exitcode.BackendError
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "signed in as %s\n", res.User.Email)
	}
	return exitcode.Success
}

// RegisterCmd implements the register command.
type RegisterCmd struct {
	name  string
	photo string
}

func (c *RegisterCmd) Name() string      { return "register" }
func (c *RegisterCmd) Aliases() []string { return []string{"signup"} }
func (c *RegisterCmd) Synopsis() string  { return "Create an account and sign in" }
func (c *RegisterCmd) Usage() string {
	return "atask register [--name <display name>] [--photo <url>] <email>"
}
func (c *RegisterCmd) NeedsApp() bool  { return true }
func (c *RegisterCmd) NeedsAuth() bool { return false }

func (c *RegisterCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.name, "name", "", "")
	fs.StringVar(&c.photo, "photo", "", "")
}

func (c *RegisterCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	email, code := emailArg(args, errOut)
	if code != exitcode.Success {
		return code
	}
	return runRegister(ctx, cfg, a, email, c.name, c.photo, out, errOut)
}

func runRegister(ctx context.Context, cfg *config.Config, a *app.App, email, name, photo string, out, errOut io.Writer) int {
	res, err := a.Auth.Register(ctx, email, name, photo)
	if err != nil {
		return authFailure(errOut, err)
	}
	if res.User == nil {
		msg := res.Message
		if msg == "" {
			msg = "registration failed"
		}
		fmt.Fprintf(errOut, "error: %s\n", msg)
		return exitcode.BackendError
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "registered and signed in as %s\n", res.User.Email)
	}
	return exitcode.Success
}

func emailArg(args []string, errOut io.Writer) (string, int) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		fmt.Fprintln(errOut, "error: email required")
		return "", exitcode.UserError
	}
	if len(args) > 1 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", args[1])
		return "", exitcode.UserError
	}
	email := strings.TrimSpace(args[0])
	if !strings.Contains(email, "@") {
		fmt.Fprintf(errOut, "error: invalid email: %s\n", email)
		return "", exitcode.UserError
	}
	return email, exitcode.Success
}

// authFailure reports a failed sign-in. Rejections are auth errors; a
// backend message such as "User already exists" is shown as is.
func authFailure(errOut io.Writer, err error) int {
	var se *service.StatusError
	switch {
	case service.IsAuthError(err):
		fmt.Fprintf(errOut, "error: sign-in rejected: %v\n", err)
		return exitcode.AuthError
	case errors.As(err, &se) && se.Code < 500:
		msg := se.Message
		if msg == "" {
			msg = se.Error()
		}
		fmt.Fprintf(errOut, "error: %s\n", msg)
		return exitcode.UserError
	}
	fmt.Fprintf(errOut, "error: backend error: %v\n", err)
	return exitcode.BackendError
}
