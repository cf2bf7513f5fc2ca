// Package auth implements the sign-in flows on top of the backend and the
// session store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"atask/internal/service"
)

// ErrIncompleteResponse means a sign-in answer lacked the user or the token.
var ErrIncompleteResponse = errors.New("incomplete server response")

// Session is the part of session.Store the flows write to.
type Session interface {
	SetIdentity(ctx context.Context, user *service.User, token string) error
	Clear(ctx context.Context) error
}

// Flows runs login, registration, Google sign-in and logout.
type Flows struct {
	svc     service.Service
	session Session
	log     logrus.FieldLogger
}

// New creates the auth flows.
func New(svc service.Service, session Session, log logrus.FieldLogger) *Flows {
	return &Flows{svc: svc, session: session, log: log}
}

// Login signs in an existing user. An unknown user is not an error: the
// result has UserExists false so the caller can offer registration.
func (f *Flows) Login(ctx context.Context, email, displayName string) (service.AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return service.AuthResult{}, errors.New("email is required")
	}

	res, err := f.svc.Login(ctx, email, displayName)
	if errors.Is(err, service.ErrNotFound) {
		f.log.WithField("email", email).Debug("login: user does not exist")
		return service.AuthResult{
			Status:         "error",
			Message:        "User not found",
			UserExists:     false,
			ExistsReported: true,
		}, nil
	}
	if err != nil {
		return service.AuthResult{}, err
	}

	if !res.ExistsReported {
		res.UserExists = inferUserExists(res)
	}
	if res.UserExists && res.User != nil {
		if err := f.session.SetIdentity(ctx, res.User, res.Token); err != nil {
			return res, fmt.Errorf("save session: %w", err)
		}
	}
	return res, nil
}

// inferUserExists decides for backends that omit userExists: a successful
// login message carrying both user and token means the user exists.
func inferUserExists(res service.AuthResult) bool {
	hasData := res.User != nil && res.Token != ""
	loggedIn := res.Status == "success" &&
		(res.Message == "Login successful" || strings.Contains(res.Message, "logged in"))
	return hasData && loggedIn
}

// Register creates a user and signs it in when the backend returns one.
func (f *Flows) Register(ctx context.Context, email, displayName, photoURL string) (service.AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return service.AuthResult{}, errors.New("email is required")
	}

	res, err := f.svc.Register(ctx, email, displayName, photoURL)
	if err != nil {
		return service.AuthResult{}, err
	}
	if res.User != nil {
		if err := f.session.SetIdentity(ctx, res.User, res.Token); err != nil {
			return res, fmt.Errorf("save session: %w", err)
		}
	}
	return res, nil
}

// LoginWithGoogle exchanges a Google ID token for a session.
func (f *Flows) LoginWithGoogle(ctx context.Context, idToken string) (service.AuthResult, error) {
	if idToken == "" {
		return service.AuthResult{}, errors.New("missing Google ID token")
	}

	res, err := f.svc.GoogleAuth(ctx, idToken)
	if err != nil {
		return service.AuthResult{}, err
	}
	if res.User == nil || res.Token == "" {
		return res, ErrIncompleteResponse
	}
	if res.User.AuthType == "" {
		res.User.AuthType = service.AuthGoogle
	}
	if err := f.session.SetIdentity(ctx, res.User, res.Token); err != nil {
		return res, fmt.Errorf("save session: %w", err)
	}
	return res, nil
}

// Logout clears the session.
func (f *Flows) Logout(ctx context.Context) error {
	return f.session.Clear(ctx)
}
