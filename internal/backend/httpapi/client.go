// Package httpapi implements the service.Service interface against the task
// backend's JSON HTTP API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"atask/internal/normalize"
	"atask/internal/service"
)

const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 15 * time.Second

	// maxBody caps how much of a response is read.
	maxBody = 10 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration

	// Tokens supplies the bearer token. May be nil.
	Tokens TokenSource

	// OnUnauthorized is called whenever the backend answers 401.
	OnUnauthorized func()

	// Transport is the underlying round tripper. Defaults to
	// http.DefaultTransport.
	Transport http.RoundTripper

	Log logrus.FieldLogger
}

// Client implements service.Service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	log     logrus.FieldLogger
	now     func() time.Time
}

// New creates a client for the API at opts.BaseURL.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid api_url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Log = l
	}

	return &Client{
		baseURL: strings.TrimSuffix(u.String(), "/"),
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &authTransport{
				base:           opts.Transport,
				tokens:         opts.Tokens,
				onUnauthorized: opts.OnUnauthorized,
				log:            opts.Log,
			},
		},
		log: opts.Log,
		now: time.Now,
	}, nil
}

// authEnvelope is the response of the three auth endpoints.
type authEnvelope struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	UserExists *bool  `json:"userExists"`
	Data       struct {
		User  json.RawMessage `json:"user"`
		Token string          `json:"token"`
	} `json:"data"`
}

func (e authEnvelope) result(method service.AuthMethod) service.AuthResult {
	res := service.AuthResult{
		Status:  e.Status,
		Message: e.Message,
		Token:   e.Data.Token,
		User:    normalize.User(e.Data.User),
	}
	if e.UserExists != nil {
		res.UserExists = *e.UserExists
		res.ExistsReported = true
	}
	if res.User != nil && res.User.AuthType == "" {
		res.User.AuthType = method
	}
	return res
}

// defaultDisplayName is the local part of the email.
func defaultDisplayName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// Login implements service.Service.
func (c *Client) Login(ctx context.Context, email, displayName string) (service.AuthResult, error) {
	if displayName == "" {
		displayName = defaultDisplayName(email)
	}
	body := map[string]string{"email": email, "displayName": displayName}
	return c.auth(ctx, "/auth/login", body, service.AuthEmail)
}

// Register implements service.Service.
func (c *Client) Register(ctx context.Context, email, displayName, photoURL string) (service.AuthResult, error) {
	if displayName == "" {
		displayName = defaultDisplayName(email)
	}
	body := map[string]string{"email": email, "displayName": displayName}
	if photoURL != "" {
		body["photoURL"] = photoURL
	}
	return c.auth(ctx, "/auth/register", body, service.AuthEmail)
}

// GoogleAuth implements service.Service.
func (c *Client) GoogleAuth(ctx context.Context, idToken string) (service.AuthResult, error) {
	return c.auth(ctx, "/auth/google", map[string]string{"idToken": idToken}, service.AuthGoogle)
}

func (c *Client) auth(ctx context.Context, path string, body any, method service.AuthMethod) (service.AuthResult, error) {
	raw, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return service.AuthResult{}, err
	}
	var env authEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return service.AuthResult{}, fmt.Errorf("decode auth response: %w", err)
	}
	return env.result(method), nil
}

// ListTasks implements service.Service.
func (c *Client) ListTasks(ctx context.Context) ([]service.Task, error) {
	raw, err := c.do(ctx, http.MethodGet, "/tasks", nil)
	if err != nil {
		return nil, err
	}
	return normalize.Tasks(raw, c.now(), c.log), nil
}

// GetTask implements service.Service.
func (c *Client) GetTask(ctx context.Context, id string) (service.Task, error) {
	raw, err := c.do(ctx, http.MethodGet, taskPath(id), nil)
	if err != nil {
		return service.Task{}, err
	}
	return normalize.Task(raw, c.now())
}

// CreateTask implements service.Service.
func (c *Client) CreateTask(ctx context.Context, draft service.TaskDraft) (service.Task, error) {
	raw, err := c.do(ctx, http.MethodPost, "/tasks", draft)
	if err != nil {
		return service.Task{}, err
	}
	return normalize.Task(raw, c.now())
}

// UpdateTask implements service.Service.
func (c *Client) UpdateTask(ctx context.Context, id string, changes service.TaskChanges) (service.Task, error) {
	raw, err := c.do(ctx, http.MethodPut, taskPath(id), changes)
	if err != nil {
		return service.Task{}, err
	}
	return normalize.Task(raw, c.now())
}

// DeleteTask implements service.Service.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, taskPath(id), nil)
	return err
}

func taskPath(id string) string {
	return "/tasks/" + url.PathEscape(id)
}

// do sends one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, wrapError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, wrapError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, data)
	}
	return data, nil
}

// wrapError maps a transport failure onto the service error taxonomy.
func wrapError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return service.ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return service.ErrTimeout
	}
	return fmt.Errorf("%w: %v", service.ErrNetworkUnavailable, err)
}

// statusError maps a non-2xx response. The backend's message, when present,
// is kept.
func statusError(code int, body []byte) error {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	msg := payload.Message
	if msg == "" {
		msg = payload.Error
	}

	var sentinel error
	switch code {
	case http.StatusUnauthorized:
		sentinel = service.ErrUnauthorized
	case http.StatusForbidden:
		sentinel = service.ErrForbidden
	case http.StatusNotFound:
		sentinel = service.ErrNotFound
	default:
		return &service.StatusError{Code: code, Message: msg}
	}
	if msg == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}
