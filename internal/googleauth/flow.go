// Package googleauth obtains a Google ID token through the OAuth2 loopback
// flow with PKCE.
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// TasksReadOnlyScope lets import-google read Google Tasks.
	TasksReadOnlyScope = "https://www.googleapis.com/auth/tasks.readonly"

	// DefaultStartPort is the first port tried for the callback server.
	DefaultStartPort = 8085

	// DefaultPortAttempts is how many consecutive ports are tried.
	DefaultPortAttempts = 5

	// CallbackTimeout bounds the wait for the browser redirect.
	CallbackTimeout = 5 * time.Minute

	// tokenExchangeTimeout bounds the code exchange.
	tokenExchangeTimeout = 30 * time.Second
)

// Scopes requested by the sign-in flow.
var Scopes = []string{"openid", "email", "profile", TasksReadOnlyScope}

// ErrNoIDToken means the token response carried no id_token.
var ErrNoIDToken = errors.New("google did not return an ID token")

// LoadClient reads the OAuth client credentials downloaded from the Google
// Cloud console.
func LoadClient(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read google_client.json: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("invalid google_client.json: %w", err)
	}
	return cfg, nil
}

// Flow is one interactive sign-in.
type Flow struct {
	OAuth *oauth2.Config

	// Prompt receives the URL the user must open.
	Prompt io.Writer

	// StartPort is the first callback port tried; 0 picks any free port.
	StartPort    int
	PortAttempts int

	// Timeout bounds the wait for the callback. Defaults to CallbackTimeout.
	Timeout time.Duration

	// Open, when set, is called with the authorization URL in addition to
	// printing it.
	Open func(authURL string)
}

// NewFlow creates a flow with the default ports and timeout.
func NewFlow(oauth *oauth2.Config, prompt io.Writer) *Flow {
	return &Flow{
		OAuth:        oauth,
		Prompt:       prompt,
		StartPort:    DefaultStartPort,
		PortAttempts: DefaultPortAttempts,
		Timeout:      CallbackTimeout,
	}
}

// Run performs the authorization-code flow and returns the Google token.
func (f *Flow) Run(ctx context.Context) (*oauth2.Token, error) {
	listener, port, err := f.listen()
	if err != nil {
		return nil, errors.New("could not bind to local port for OAuth callback")
	}
	defer listener.Close()

	conf := *f.OAuth
	conf.RedirectURL = fmt.Sprintf("http://localhost:%d/callback", port)

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	fmt.Fprintln(f.Prompt, "Open this URL in your browser:")
	fmt.Fprintln(f.Prompt, authURL)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			sendErr(errCh, errors.New("oauth state mismatch"))
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "Authorization denied", http.StatusBadRequest)
			sendErr(errCh, fmt.Errorf("authorization denied: %s", e))
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "No code in callback", http.StatusBadRequest)
			sendErr(errCh, errors.New("no code in callback"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>Signed in</h1><p>You may close this window.</p></body></html>")
		select {
		case codeCh <- code:
		default:
		}
	})

	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			sendErr(errCh, err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if f.Open != nil {
		f.Open(authURL)
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = CallbackTimeout
	}

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-time.After(timeout):
		return nil, errors.New("oauth callback timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, tokenExchangeTimeout)
	defer cancel()

	token, err := conf.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	return token, nil
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

// listen binds the callback server, trying consecutive ports.
func (f *Flow) listen() (net.Listener, int, error) {
	if f.StartPort == 0 {
		l, err := net.Listen("tcp", "localhost:0")
		if err != nil {
			return nil, 0, err
		}
		return l, l.Addr().(*net.TCPAddr).Port, nil
	}
	attempts := f.PortAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		port := f.StartPort + i
		l, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
		if err == nil {
			return l, port, nil
		}
	}
	return nil, 0, errors.New("no available port found")
}

// IDToken extracts the OpenID Connect ID token from a token response.
func IDToken(token *oauth2.Token) (string, error) {
	if token == nil {
		return "", ErrNoIDToken
	}
	id, _ := token.Extra("id_token").(string)
	if id == "" {
		return "", ErrNoIDToken
	}
	return id, nil
}

// SaveToken saves an OAuth token to a file with mode 0600.
func SaveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadToken reads a token saved by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read google_token.json: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid google_token.json: %w", err)
	}
	return &token, nil
}
