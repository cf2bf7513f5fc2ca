package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"atask/internal/app"
	"atask/internal/backend/googletasks"
	"atask/internal/config"
	"atask/internal/exitcode"
	"atask/internal/service"
)

// maxParallelCreates bounds concurrent creates during an import.
const maxParallelCreates = 4

func init() {
	Register(&ImportGoogleCmd{})
}

// DraftSource supplies the tasks to import.
type DraftSource interface {
	Drafts(ctx context.Context, listName string) ([]service.TaskDraft, error)
}

// DraftSourceFactory opens a DraftSource.
type DraftSourceFactory func(ctx context.Context, cfg *config.Config) (DraftSource, error)

// ImportGoogleCmd implements the import-google command.
type ImportGoogleCmd struct {
	list   string
	dryRun bool
	source DraftSourceFactory
}

// SetSource replaces the Google Tasks reader (for testing).
func (c *ImportGoogleCmd) SetSource(fn DraftSourceFactory) {
	c.source = fn
}

func (c *ImportGoogleCmd) Name() string      { return "import-google" }
func (c *ImportGoogleCmd) Aliases() []string { return nil }
func (c *ImportGoogleCmd) Synopsis() string  { return "Import open Google Tasks" }
func (c *ImportGoogleCmd) Usage() string {
	return "atask import-google [--list <list-name>] [--dry-run]"
}
func (c *ImportGoogleCmd) NeedsApp() bool  { return true }
func (c *ImportGoogleCmd) NeedsAuth() bool { return true }

func (c *ImportGoogleCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.list, "list", "", "")
	fs.StringVar(&c.list, "l", "", "")
	fs.BoolVar(&c.dryRun, "dry-run", false, "")
}

func (c *ImportGoogleCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", args[0])
		return exitcode.UserError
	}

	open := c.source
	if open == nil {
		if !cfg.HasGoogleClient() || !cfg.HasGoogleToken() {
			fmt.Fprintln(errOut, "error: not signed in to Google (run: atask login-google)")
			return exitcode.AuthError
		}
		open = googleSource
	}

	src, err := open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.AuthError
	}

	drafts, err := src.Drafts(ctx, c.list)
	switch {
	case errors.Is(err, googletasks.ErrListNotFound), errors.Is(err, googletasks.ErrAmbiguousList):
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	case service.IsAuthError(err):
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.AuthError
	case err != nil:
		fmt.Fprintf(errOut, "error: google tasks: %v\n", err)
		return exitcode.BackendError
	}

	existing, err := a.Tasks.Load(ctx)
	if err != nil {
		return failure(errOut, a, err)
	}
	fresh := newDrafts(drafts, existing)
	skipped := len(drafts) - len(fresh)

	if c.dryRun {
		for _, d := range fresh {
			fmt.Fprintf(out, "would import: %s\n", d.Title)
		}
		return exitcode.Success
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelCreates)
	for _, d := range fresh {
		d := d
		g.Go(func() error {
			_, err := a.Tasks.Create(gctx, d)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return failure(errOut, a, err)
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "imported %d tasks", len(fresh))
		if skipped > 0 {
			fmt.Fprintf(out, " (%d already imported)", skipped)
		}
		fmt.Fprintln(out)
	}
	return exitcode.Success
}

func googleSource(ctx context.Context, cfg *config.Config) (DraftSource, error) {
	return googletasks.New(ctx, cfg)
}

// newDrafts drops drafts whose title matches a task imported earlier.
func newDrafts(drafts []service.TaskDraft, existing []service.Task) []service.TaskDraft {
	imported := make(map[string]bool)
	for _, t := range existing {
		if slices.Contains(t.Tags, googletasks.ImportTag) {
			imported[strings.ToLower(strings.TrimSpace(t.Title))] = true
		}
	}

	var out []service.TaskDraft
	for _, d := range drafts {
		key := strings.ToLower(strings.TrimSpace(d.Title))
		if imported[key] {
			continue
		}
		imported[key] = true
		out = append(out, d)
	}
	return out
}
