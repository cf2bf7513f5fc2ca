// Package googletasks reads open Google Tasks so they can be imported as
// atask tasks.
package googletasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"atask/internal/config"
	"atask/internal/googleauth"
	"atask/internal/service"
)

const (
	// PageSize is the number of items per API page.
	PageSize = 100

	// APITimeout is the timeout for API calls.
	APITimeout = 10 * time.Second

	// ImportTag marks imported tasks.
	ImportTag = "google-tasks"

	// maxConcurrentLists bounds parallel list fetches.
	maxConcurrentLists = 4
)

// List resolution failures.
var (
	ErrListNotFound  = errors.New("list not found")
	ErrAmbiguousList = errors.New("ambiguous list name")
)

// List is a Google Tasks list.
type List struct {
	ID    string
	Title string
}

// Client reads Google Tasks.
type Client struct {
	svc *tasks.Service
}

// New creates a client from google_client.json and the token saved by
// login-google.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	oauthConfig, err := googleauth.LoadClient(cfg.GoogleClientPath())
	if err != nil {
		return nil, err
	}
	token, err := googleauth.LoadToken(cfg.GoogleTokenPath())
	if err != nil {
		return nil, err
	}

	httpClient := oauth2.NewClient(ctx, oauthConfig.TokenSource(ctx, token))
	return NewWithHTTPClient(ctx, httpClient)
}

// NewWithHTTPClient creates a client with a custom HTTP client (for testing).
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// Lists returns all task lists in API order.
func (c *Client) Lists(ctx context.Context) ([]List, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	var result []List
	err := c.svc.Tasklists.List().MaxResults(PageSize).Pages(ctx, func(resp *tasks.TaskLists) error {
		for _, l := range resp.Items {
			result = append(result, List{ID: l.Id, Title: l.Title})
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(err)
	}
	return result, nil
}

// ResolveList finds a list by name (case-insensitive, trimmed).
func ResolveList(lists []List, name string) (List, error) {
	name = strings.TrimSpace(name)
	nameLower := strings.ToLower(name)

	var matches []List
	for _, l := range lists {
		if strings.ToLower(strings.TrimSpace(l.Title)) == nameLower {
			matches = append(matches, l)
		}
	}

	switch len(matches) {
	case 0:
		return List{}, fmt.Errorf("%w: %s", ErrListNotFound, name)
	case 1:
		return matches[0], nil
	default:
		return List{}, fmt.Errorf("%w: %s", ErrAmbiguousList, name)
	}
}

// OpenTasks returns the open tasks of one list as drafts, in API order.
func (c *Client) OpenTasks(ctx context.Context, list List) ([]service.TaskDraft, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	var drafts []service.TaskDraft
	err := c.svc.Tasks.List(list.ID).
		MaxResults(PageSize).
		ShowCompleted(false).
		ShowDeleted(false).
		ShowHidden(false).
		Pages(ctx, func(resp *tasks.Tasks) error {
			for _, t := range resp.Items {
				if d, ok := toDraft(t, list); ok {
					drafts = append(drafts, d)
				}
			}
			return nil
		})
	if err != nil {
		return nil, wrapError(err)
	}
	return drafts, nil
}

// Drafts returns the open tasks of the named list, or of every list when
// listName is empty. Lists are fetched concurrently; the result keeps list
// order.
func (c *Client) Drafts(ctx context.Context, listName string) ([]service.TaskDraft, error) {
	lists, err := c.Lists(ctx)
	if err != nil {
		return nil, err
	}
	if listName != "" {
		l, err := ResolveList(lists, listName)
		if err != nil {
			return nil, err
		}
		lists = []List{l}
	}

	perList := make([][]service.TaskDraft, len(lists))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLists)
	for i, l := range lists {
		i, l := i, l
		g.Go(func() error {
			drafts, err := c.OpenTasks(gctx, l)
			if err != nil {
				return fmt.Errorf("list %q: %w", l.Title, err)
			}
			perList[i] = drafts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []service.TaskDraft
	for _, drafts := range perList {
		all = append(all, drafts...)
	}
	return all, nil
}

// toDraft converts an open Google task. Untitled tasks are skipped.
func toDraft(t *tasks.Task, list List) (service.TaskDraft, bool) {
	title := strings.TrimSpace(t.Title)
	if title == "" || t.Status == "completed" || t.Deleted {
		return service.TaskDraft{}, false
	}
	d := service.TaskDraft{
		Title:       title,
		Description: t.Notes,
		Priority:    service.PriorityMedium,
		Tags:        []string{ImportTag},
	}
	if list.Title != "" {
		d.Tags = append(d.Tags, list.Title)
	}
	if t.Due != "" {
		if due, err := time.Parse(time.RFC3339, t.Due); err == nil {
			d.DueDate = &due
		}
	}
	return d, true
}

// wrapError maps Google API errors onto the service error taxonomy.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return service.ErrTimeout
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: google token expired or revoked (run: atask login-google)", service.ErrUnauthorized)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: google token expired or revoked (run: atask login-google)", service.ErrUnauthorized)
		case http.StatusNotFound:
			return service.ErrNotFound
		}
	}
	return err
}
