package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"golang.org/x/oauth2"

	"atask/internal/app"
	"atask/internal/config"
	"atask/internal/exitcode"
	"atask/internal/googleauth"
)

func init() {
	Register(&LoginGoogleCmd{})
}

// GoogleSignIn obtains a Google token, printing anything the user must do
// to prompt.
type GoogleSignIn func(ctx context.Context, cfg *config.Config, prompt io.Writer) (*oauth2.Token, error)

// LoginGoogleCmd implements the login-google command.
type LoginGoogleCmd struct {
	signIn GoogleSignIn
}

// SetSignIn replaces the browser flow (for testing).
func (c *LoginGoogleCmd) SetSignIn(fn GoogleSignIn) {
	c.signIn = fn
}

func (c *LoginGoogleCmd) Name() string      { return "login-google" }
func (c *LoginGoogleCmd) Aliases() []string { return nil }
func (c *LoginGoogleCmd) Synopsis() string  { return "Sign in with a Google account" }
func (c *LoginGoogleCmd) Usage() string     { return "atask login-google [common flags]" }
func (c *LoginGoogleCmd) NeedsApp() bool    { return true }
func (c *LoginGoogleCmd) NeedsAuth() bool   { return false }

func (c *LoginGoogleCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *LoginGoogleCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	signIn := c.signIn
	if signIn == nil {
		if !cfg.HasGoogleClient() {
			printGoogleClientHelp(errOut, cfg)
			return exitcode.AuthError
		}
		signIn = browserSignIn
	}

	token, err := signIn(ctx, cfg, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.AuthError
	}

	// The Google token is kept for import-google; sign-in does not need it.
	if err := saveGoogleToken(cfg, token); err != nil {
		a.Log.WithError(err).Warn("failed to save google token")
	}

	idToken, err := googleauth.IDToken(token)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.AuthError
	}

	res, err := a.Auth.LoginWithGoogle(ctx, idToken)
	if err != nil {
		return authFailure(errOut, err)
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "signed in as %s\n", res.User.Email)
	}
	return exitcode.Success
}

func browserSignIn(ctx context.Context, cfg *config.Config, prompt io.Writer) (*oauth2.Token, error) {
	oauthConfig, err := googleauth.LoadClient(cfg.GoogleClientPath())
	if err != nil {
		return nil, err
	}
	return googleauth.NewFlow(oauthConfig, prompt).Run(ctx)
}

func saveGoogleToken(cfg *config.Config, token *oauth2.Token) error {
	if err := cfg.EnsureDir(); err != nil {
		return err
	}
	return googleauth.SaveToken(cfg.GoogleTokenPath(), token)
}

func printGoogleClientHelp(errOut io.Writer, cfg *config.Config) {
	fmt.Fprintf(errOut, "error: %s not found in %s\n\n", config.GoogleClientFile, cfg.Dir)
	fmt.Fprintln(errOut, "To sign in with Google you need OAuth credentials:")
	fmt.Fprintln(errOut, "")
	fmt.Fprintln(errOut, "1. Go to https://console.cloud.google.com/apis/credentials")
	fmt.Fprintln(errOut, "2. Create a project (or select an existing one)")
	fmt.Fprintln(errOut, "3. Enable the Google Tasks API if you want to use import-google:")
	fmt.Fprintln(errOut, "   https://console.cloud.google.com/apis/library/tasks.googleapis.com")
	fmt.Fprintln(errOut, "4. Create OAuth 2.0 credentials:")
	fmt.Fprintln(errOut, "   - Click 'Create Credentials' > 'OAuth client ID'")
	fmt.Fprintln(errOut, "   - Choose 'Desktop app' as application type")
	fmt.Fprintln(errOut, "   - Download the JSON file")
	fmt.Fprintln(errOut, "5. Save it as:")
	fmt.Fprintf(errOut, "   %s\n", cfg.GoogleClientPath())
	fmt.Fprintln(errOut, "")
	fmt.Fprintln(errOut, "Then run 'atask login-google' again.")
}
